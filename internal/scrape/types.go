// Package scrape discovers tool candidates from public sources and runs them
// through classification and persistence.
package scrape

import (
	"context"
	"time"
)

// Source names used in storage and metrics.
const (
	SourceGitHub      = "github"
	SourceHackerNews  = "hackernews"
	SourceShowHN      = "showhn"
	SourceProductHunt = "producthunt"
)

// RawTool is one candidate discovered by a scraper, before classification.
type RawTool struct {
	Name        string
	Description string
	URL         string
	Score       int
	FoundAt     time.Time
}

// Result is a scraper's output: the candidates plus the raw payload that
// produced them, kept for archiving.
type Result struct {
	Tools []RawTool
	Raw   []byte
}

// Scraper fetches candidates from one source.
type Scraper interface {
	Source() string
	Fetch(ctx context.Context) (Result, error)
}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}
