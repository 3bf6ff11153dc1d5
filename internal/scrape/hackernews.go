package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultHNBaseURL = "https://hacker-news.firebaseio.com/v0"

// HNMode selects which story list the scraper reads.
type HNMode string

// Story lists served by the Hacker News API.
const (
	HNTop  HNMode = "topstories"
	HNShow HNMode = "showstories"
)

// HackerNewsConfig controls the Hacker News scraper.
type HackerNewsConfig struct {
	// BaseURL overrides the API location, for tests.
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// MinScore drops low-signal stories before classification.
	MinScore int
	// MaxStories caps how many story IDs from the list are fetched.
	MaxStories int
}

// HackerNews scrapes the Hacker News item API. Show HN runs with a lower
// score floor since those posts are younger when scraped.
type HackerNews struct {
	cfg    HackerNewsConfig
	mode   HNMode
	client *http.Client
	clock  Clock
}

// NewHackerNews builds a scraper for the given story list.
func NewHackerNews(cfg HackerNewsConfig, mode HNMode, clock Clock) *HackerNews {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHNBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxStories <= 0 {
		if mode == HNShow {
			cfg.MaxStories = 30
		} else {
			cfg.MaxStories = 50
		}
	}
	return &HackerNews{
		cfg:    cfg,
		mode:   mode,
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  clock,
	}
}

// Source identifies this scraper in storage and metrics.
func (h *HackerNews) Source() string {
	if h.mode == HNShow {
		return SourceShowHN
	}
	return SourceHackerNews
}

type hnItem struct {
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
	Score int    `json:"score"`
	Time  int64  `json:"time"`
}

// Fetch reads the story ID list and resolves each story, keeping linked
// stories at or above the score floor. Individual item failures are skipped
// rather than failing the whole run.
func (h *HackerNews) Fetch(ctx context.Context) (Result, error) {
	raw, err := h.get(ctx, fmt.Sprintf("%s/%s.json", h.cfg.BaseURL, h.mode))
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s list: %w", h.mode, err)
	}

	var ids []int
	if err := json.Unmarshal(raw, &ids); err != nil {
		return Result{}, fmt.Errorf("decode %s list: %w", h.mode, err)
	}
	if len(ids) > h.cfg.MaxStories {
		ids = ids[:h.cfg.MaxStories]
	}

	result := Result{Raw: raw}
	for _, id := range ids {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		item, err := h.fetchItem(ctx, id)
		if err != nil {
			continue
		}
		if item.Type != "story" || item.URL == "" || item.Score < h.cfg.MinScore {
			continue
		}

		foundAt := h.clock.Now()
		if item.Time > 0 {
			foundAt = time.Unix(item.Time, 0).UTC()
		}
		description := item.Title
		if item.Text != "" {
			description += "\n\n" + item.Text
		}
		result.Tools = append(result.Tools, RawTool{
			Name:        item.Title,
			Description: description,
			URL:         item.URL,
			Score:       item.Score,
			FoundAt:     foundAt,
		})
	}
	return result, nil
}

func (h *HackerNews) fetchItem(ctx context.Context, id int) (hnItem, error) {
	raw, err := h.get(ctx, h.cfg.BaseURL+"/item/"+strconv.Itoa(id)+".json")
	if err != nil {
		return hnItem{}, err
	}
	var item hnItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return hnItem{}, fmt.Errorf("decode item %d: %w", id, err)
	}
	return item, nil
}

func (h *HackerNews) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if h.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", h.cfg.UserAgent)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if strings.TrimSpace(string(body)) == "null" {
		return nil, fmt.Errorf("item not found at %s", url)
	}
	return body, nil
}
