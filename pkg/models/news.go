package models

import (
	"strings"
	"time"
)

// Article is one news item. URL is its identity across the system.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
	URL         string `json:"url"`
	URLToImage  string `json:"url_to_image,omitempty"`
	Source      string `json:"source,omitempty"`
	Author      string `json:"author,omitempty"`
	PublishedAt string `json:"published_at,omitempty"` // ISO-8601 as received, e.g. "2024-01-06T14:30:00Z"
}

// publishedLayouts are the timestamp shapes the news providers emit.
var publishedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// PublishedTime parses PublishedAt. ok is false when it is empty or unparseable.
func (a Article) PublishedTime() (t time.Time, ok bool) {
	s := strings.TrimSpace(a.PublishedAt)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// Text returns the text that gets scored: title and description joined by a space.
func (a Article) Text() string {
	return a.Title + " " + a.Description
}

// ScoredArticle is an article with its attached sentiment judgment.
type ScoredArticle struct {
	Article
	SentimentScore float64        `json:"sentiment_score"`
	Classification Classification `json:"sentiment_classification"`
	Confidence     *float64       `json:"confidence,omitempty"`
}

// NewScoredArticle attaches a score to an article, deriving the classification.
func NewScoredArticle(a Article, score float64) ScoredArticle {
	return ScoredArticle{
		Article:        a,
		SentimentScore: score,
		Classification: Classify(score),
	}
}
