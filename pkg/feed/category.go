package feed

import (
	"fmt"
	"strings"
)

// Category identifies one of the ranked lists published by Hacker News.
type Category string

const (
	CategoryTop  Category = "top"
	CategoryNew  Category = "new"
	CategoryBest Category = "best"
	CategoryAsk  Category = "ask"
	CategoryShow Category = "show"
	CategoryJob  Category = "job"
)

// AllCategories returns every category in a fixed order.
func AllCategories() []Category {
	return []Category{
		CategoryTop,
		CategoryNew,
		CategoryBest,
		CategoryAsk,
		CategoryShow,
		CategoryJob,
	}
}

func (c Category) String() string { return string(c) }

// ParseCategory resolves a category name, ignoring case and surrounding space.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCategories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid category %q", s)
}
