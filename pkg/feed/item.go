package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedKind is returned when decoding an item whose type is not mirrored
// (polls, poll options, or a payload without a type).
var ErrUnsupportedKind = errors.New("unsupported item kind")

// Kind names an item variant.
type Kind string

const (
	KindStory   Kind = "story"
	KindComment Kind = "comment"
	KindJob     Kind = "job"
)

// Item is one of *Story, *Comment or *Job.
type Item interface {
	GetID() int64
	Kind() Kind
	item()
}

// Base holds the fields shared by every variant.
type Base struct {
	ID      int64
	By      string
	Time    time.Time
	Dead    bool
	Deleted bool
}

func (b Base) GetID() int64 { return b.ID }

// Story is a submitted link or text post, including Ask HN and Show HN.
type Story struct {
	Base
	Score       int
	Descendants int
	Title       string
	URL         string
	Text        string
	Kids        []int64
}

// Comment is a reply to a story or another comment.
type Comment struct {
	Base
	Parent int64
	Text   string
	Kids   []int64
}

// Job is a job posting.
type Job struct {
	Base
	Score int
	Title string
	URL   string
	Text  string
}

func (*Story) Kind() Kind   { return KindStory }
func (*Comment) Kind() Kind { return KindComment }
func (*Job) Kind() Kind     { return KindJob }

func (*Story) item()   {}
func (*Comment) item() {}
func (*Job) item()     {}

// Fields is the flat, nullable projection of an item used by storage and the API.
type Fields struct {
	Author      *string
	Score       *int
	Descendants *int
	Title       *string
	URL         *string
	Body        *string
}

// Project flattens an item into its optional columns.
func Project(it Item) Fields {
	switch v := it.(type) {
	case *Story:
		return Fields{
			Author:      optString(v.By),
			Score:       &v.Score,
			Descendants: &v.Descendants,
			Title:       optString(v.Title),
			URL:         optString(v.URL),
			Body:        optString(v.Text),
		}
	case *Comment:
		return Fields{
			Author: optString(v.By),
			Body:   optString(v.Text),
		}
	case *Job:
		return Fields{
			Author: optString(v.By),
			Score:  &v.Score,
			Title:  optString(v.Title),
			URL:    optString(v.URL),
			Body:   optString(v.Text),
		}
	default:
		panic(fmt.Sprintf("feed: unknown item variant %T", it))
	}
}

// Timestamp returns the creation time of an item.
func Timestamp(it Item) time.Time {
	switch v := it.(type) {
	case *Story:
		return v.Time
	case *Comment:
		return v.Time
	case *Job:
		return v.Time
	default:
		panic(fmt.Sprintf("feed: unknown item variant %T", it))
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// wireItem mirrors the Hacker News item JSON.
type wireItem struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type,omitempty"`
	By          string  `json:"by,omitempty"`
	Time        int64   `json:"time"`
	Text        string  `json:"text,omitempty"`
	Dead        bool    `json:"dead,omitempty"`
	Deleted     bool    `json:"deleted,omitempty"`
	Parent      int64   `json:"parent,omitempty"`
	Kids        []int64 `json:"kids,omitempty"`
	URL         string  `json:"url,omitempty"`
	Score       int     `json:"score,omitempty"`
	Title       string  `json:"title,omitempty"`
	Descendants int     `json:"descendants,omitempty"`
}

// DecodeItem parses an item in the Hacker News wire format.
func DecodeItem(data []byte) (Item, error) {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}

	base := Base{
		ID:      w.ID,
		By:      w.By,
		Time:    time.Unix(w.Time, 0).UTC(),
		Dead:    w.Dead,
		Deleted: w.Deleted,
	}

	switch Kind(w.Type) {
	case KindStory:
		return &Story{
			Base:        base,
			Score:       w.Score,
			Descendants: w.Descendants,
			Title:       w.Title,
			URL:         w.URL,
			Text:        w.Text,
			Kids:        w.Kids,
		}, nil
	case KindComment:
		return &Comment{Base: base, Parent: w.Parent, Text: w.Text, Kids: w.Kids}, nil
	case KindJob:
		return &Job{Base: base, Score: w.Score, Title: w.Title, URL: w.URL, Text: w.Text}, nil
	default:
		return nil, fmt.Errorf("item %d type %q: %w", w.ID, w.Type, ErrUnsupportedKind)
	}
}

// EncodeItem renders an item back into the Hacker News wire format.
func EncodeItem(it Item) ([]byte, error) {
	var w wireItem
	switch v := it.(type) {
	case *Story:
		w = wireFromBase(v.Base, KindStory)
		w.Score, w.Descendants, w.Title, w.URL, w.Text, w.Kids = v.Score, v.Descendants, v.Title, v.URL, v.Text, v.Kids
	case *Comment:
		w = wireFromBase(v.Base, KindComment)
		w.Parent, w.Text, w.Kids = v.Parent, v.Text, v.Kids
	case *Job:
		w = wireFromBase(v.Base, KindJob)
		w.Score, w.Title, w.URL, w.Text = v.Score, v.Title, v.URL, v.Text
	default:
		return nil, fmt.Errorf("encode item: unknown variant %T", it)
	}
	return json.Marshal(w)
}

func wireFromBase(b Base, k Kind) wireItem {
	return wireItem{
		ID:      b.ID,
		Type:    string(k),
		By:      b.By,
		Time:    b.Time.Unix(),
		Dead:    b.Dead,
		Deleted: b.Deleted,
	}
}
