package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultTrendingURL = "https://github.com/trending"

// GitHubConfig controls the trending-page scraper.
type GitHubConfig struct {
	// BaseURL overrides the trending page location, for tests.
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// GitHubTrending scrapes the GitHub trending page for repositories.
type GitHubTrending struct {
	cfg   GitHubConfig
	clock Clock
}

// NewGitHubTrending builds the scraper.
func NewGitHubTrending(cfg GitHubConfig, clock Clock) *GitHubTrending {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTrendingURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &GitHubTrending{cfg: cfg, clock: clock}
}

// Source identifies this scraper in storage and metrics.
func (g *GitHubTrending) Source() string { return SourceGitHub }

// Fetch visits the trending page and extracts one candidate per repository
// row. A repository without a name link is skipped; a missing description
// falls back to the repository name so the classifier always has text.
func (g *GitHubTrending) Fetch(ctx context.Context) (Result, error) {
	collector := colly.NewCollector(colly.Async(false))
	if g.cfg.UserAgent != "" {
		collector.UserAgent = g.cfg.UserAgent
	}
	collector.SetRequestTimeout(g.cfg.Timeout)

	now := g.clock.Now()
	var (
		result   Result
		fetchErr error
	)

	collector.OnResponse(func(r *colly.Response) {
		result.Raw = append([]byte(nil), r.Body...)
	})

	collector.OnHTML("article.Box-row", func(e *colly.HTMLElement) {
		href := e.ChildAttr("h2 a", "href")
		if href == "" {
			return
		}
		// The row title renders "owner / repo" across nested spans; squash
		// the whitespace to get the canonical owner/repo form.
		name := strings.Join(strings.Fields(e.ChildText("h2 a")), "")
		description := strings.TrimSpace(e.ChildText("p"))
		if description == "" {
			description = name
		}
		result.Tools = append(result.Tools, RawTool{
			Name:        name,
			Description: description,
			URL:         "https://github.com" + href,
			FoundAt:     now,
		})
	})

	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(g.cfg.BaseURL)
	}()

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("trending fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Result{}, fmt.Errorf("visit trending page: %w", err)
		}
		if fetchErr != nil {
			return Result{}, fmt.Errorf("trending page response: %w", fetchErr)
		}
		return result, nil
	}
}
