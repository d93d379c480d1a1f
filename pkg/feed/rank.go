package feed

import "time"

// RankRecord is one observation of an item's position in a category.
// Rank is 1-indexed.
type RankRecord struct {
	ID        int64     `json:"id" db:"id"`
	Rank      int       `json:"rank" db:"rank"`
	Category  Category  `json:"category" db:"category"`
	Timestamp time.Time `json:"ts" db:"ts"`
}

// ListSnapshot is the current membership of a category.
type ListSnapshot struct {
	Category  Category  `json:"category"`
	IDs       []int64   `json:"ids"`
	UpdatedAt time.Time `json:"updated_at"`
}
