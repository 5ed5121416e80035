package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the type of a saved content item.
type Kind string

const (
	KindDocument Kind = "document"
	KindTweet    Kind = "tweet"
	KindVideo    Kind = "video"
	KindLink     Kind = "link"
)

// ParseKind maps user input to a Kind. "youtube" is accepted for videos.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "document":
		return KindDocument, nil
	case "tweet":
		return KindTweet, nil
	case "video", "youtube":
		return KindVideo, nil
	case "link":
		return KindLink, nil
	}
	return "", fmt.Errorf("unknown content kind %q", s)
}

type Tag struct {
	ID      string `json:"id"`
	OwnerID string `json:"-"`
	Name    string `json:"name"`
}

// ContentItem is a single saved note, link, tweet or video. It is owned by
// exactly one user.
type ContentItem struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title"`
	SourceLink string    `json:"link,omitempty"`
	Tags       []Tag     `json:"tags"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (c ContentItem) TagNames() []string {
	names := make([]string, len(c.Tags))
	for i, t := range c.Tags {
		names[i] = t.Name
	}
	return names
}

// Embedding links a vector to the content it was computed from. ContentID is
// a lookup reference only; the content item owns the lifecycle.
type Embedding struct {
	OwnerID   string
	ContentID string
	Vector    []float32
}

// RankedHit is one vector search result.
type RankedHit struct {
	ContentID string
	Score     float64
}

type AnswerResult struct {
	AnswerText     string
	MatchedContent []ContentItem
}

// Principal is the authenticated caller. It is decoded once at the edge and
// passed into every core call.
type Principal struct {
	OwnerID  string
	Username string
}

// ShareState describes whether an owner's vault is publicly readable.
type ShareState struct {
	OwnerID   string
	Username  string
	Shared    bool
	LinkToken string
	UpdatedAt time.Time
}
