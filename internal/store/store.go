// Package store defines the persistence interface for discovered tools.
// Decoupling the pipeline and the API server from a concrete database lets
// tests and local runs use the NoOp implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Tool is one discovered developer tool.
type Tool struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Category    string    `json:"category,omitempty"`
	Score       int       `json:"score"`
	ScrapedAt   time.Time `json:"scraped_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the persistence surface used by the scrape pipeline and the API.
type Store interface {
	// SaveTool inserts the tool, reporting false when a tool with the same
	// URL already exists.
	SaveTool(ctx context.Context, tool Tool) (bool, error)
	// IsDuplicate reports whether a tool with this URL is already stored.
	IsDuplicate(ctx context.Context, url string) (bool, error)
	GetByID(ctx context.Context, id string) (Tool, error)
	List(ctx context.Context, limit, offset int) ([]Tool, error)
	CountAll(ctx context.Context) (int, error)
	ListBySource(ctx context.Context, source string, limit, offset int) ([]Tool, error)
	CountBySource(ctx context.Context, source string) (int, error)
	Search(ctx context.Context, query string, limit, offset int) ([]Tool, error)
	CountSearch(ctx context.Context, query string) (int, error)
	SourceCounts(ctx context.Context) (map[string]int, error)
	RecordScrapeCompletion(ctx context.Context, source string, completedAt time.Time, toolCount int) error
	// LastScrapeTime returns the zero time when the source has never run.
	LastScrapeTime(ctx context.Context, source string) (time.Time, error)
	Close()
}

// NoOpStore discards writes and returns empty reads. Useful for local runs
// without a database.
type NoOpStore struct{}

func (NoOpStore) SaveTool(context.Context, Tool) (bool, error)     { return true, nil }
func (NoOpStore) IsDuplicate(context.Context, string) (bool, error) {
	return false, nil
}
func (NoOpStore) GetByID(context.Context, string) (Tool, error) { return Tool{}, ErrNotFound }
func (NoOpStore) List(context.Context, int, int) ([]Tool, error) {
	return nil, nil
}
func (NoOpStore) CountAll(context.Context) (int, error) { return 0, nil }
func (NoOpStore) ListBySource(context.Context, string, int, int) ([]Tool, error) {
	return nil, nil
}
func (NoOpStore) CountBySource(context.Context, string) (int, error) { return 0, nil }
func (NoOpStore) Search(context.Context, string, int, int) ([]Tool, error) {
	return nil, nil
}
func (NoOpStore) CountSearch(context.Context, string) (int, error) { return 0, nil }
func (NoOpStore) SourceCounts(context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}
func (NoOpStore) RecordScrapeCompletion(context.Context, string, time.Time, int) error {
	return nil
}
func (NoOpStore) LastScrapeTime(context.Context, string) (time.Time, error) {
	return time.Time{}, nil
}
func (NoOpStore) Close() {}
