package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultPHTokenURL   = "https://api.producthunt.com/v2/oauth/token"
	defaultPHGraphQLURL = "https://api.producthunt.com/v2/api/graphql"
)

// ProductHuntConfig controls the Product Hunt API scraper.
type ProductHuntConfig struct {
	ClientID     string
	ClientSecret string
	// TokenURL and GraphQLURL override the API endpoints, for tests.
	TokenURL   string
	GraphQLURL string
	UserAgent  string
	Timeout    time.Duration
}

// ProductHunt reads the newest posts from the Product Hunt GraphQL API.
type ProductHunt struct {
	cfg    ProductHuntConfig
	client *http.Client
	clock  Clock
}

// NewProductHunt builds the scraper.
func NewProductHunt(cfg ProductHuntConfig, clock Clock) *ProductHunt {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultPHTokenURL
	}
	if cfg.GraphQLURL == "" {
		cfg.GraphQLURL = defaultPHGraphQLURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &ProductHunt{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  clock,
	}
}

// Source identifies this scraper in storage and metrics.
func (p *ProductHunt) Source() string { return SourceProductHunt }

const postsQuery = `query {
	posts(first: 50, order: NEWEST) {
		edges {
			node {
				id
				name
				tagline
				description
				url
				votesCount
				createdAt
			}
		}
	}
}`

type phPostsResponse struct {
	Data struct {
		Posts struct {
			Edges []struct {
				Node struct {
					ID          string    `json:"id"`
					Name        string    `json:"name"`
					Tagline     string    `json:"tagline"`
					Description string    `json:"description"`
					URL         string    `json:"url"`
					VotesCount  int       `json:"votesCount"`
					CreatedAt   time.Time `json:"createdAt"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"posts"`
	} `json:"data"`
}

// Fetch exchanges client credentials for an access token and queries the
// newest posts. Descriptions prefer the tagline and fall back to the longer
// description field.
func (p *ProductHunt) Fetch(ctx context.Context) (Result, error) {
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		return Result{}, fmt.Errorf("product hunt credentials are not configured")
	}
	token, err := p.accessToken(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("product hunt token: %w", err)
	}

	body, err := json.Marshal(map[string]string{"query": postsQuery})
	if err != nil {
		return Result{}, fmt.Errorf("marshal graphql query: %w", err)
	}
	raw, err := p.post(ctx, p.cfg.GraphQLURL, body, token)
	if err != nil {
		return Result{}, fmt.Errorf("product hunt query: %w", err)
	}

	var parsed phPostsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode posts response: %w", err)
	}

	result := Result{Raw: raw}
	for _, edge := range parsed.Data.Posts.Edges {
		node := edge.Node
		if node.URL == "" || node.Name == "" {
			continue
		}
		description := node.Tagline
		if description == "" {
			description = node.Description
		}
		foundAt := node.CreatedAt
		if foundAt.IsZero() {
			foundAt = p.clock.Now()
		}
		result.Tools = append(result.Tools, RawTool{
			Name:        node.Name,
			Description: description,
			URL:         node.URL,
			Score:       node.VotesCount,
			FoundAt:     foundAt,
		})
	}
	return result, nil
}

func (p *ProductHunt) accessToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     p.cfg.ClientID,
		"client_secret": p.cfg.ClientSecret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}
	raw, err := p.post(ctx, p.cfg.TokenURL, body, "")
	if err != nil {
		return "", err
	}
	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	return parsed.AccessToken, nil
}

func (p *ProductHunt) post(ctx context.Context, url string, body []byte, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	return raw, nil
}
