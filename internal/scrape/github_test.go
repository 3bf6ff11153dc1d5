package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

const trendingHTML = `<!DOCTYPE html>
<html><body>
<article class="Box-row">
  <h2 class="h3"><a href="/jesseduffield/lazygit"> jesseduffield / lazygit </a></h2>
  <p>A simple terminal UI for git commands</p>
</article>
<article class="Box-row">
  <h2 class="h3"><a href="/charmbracelet/bubbletea"> charmbracelet / bubbletea </a></h2>
</article>
<article class="Box-row">
  <h2 class="h3"></h2>
  <p>row without a link is skipped</p>
</article>
</body></html>`

func TestGitHubTrendingFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(trendingHTML))
	}))
	defer server.Close()

	now := time.Unix(1700000000, 0).UTC()
	scraper := NewGitHubTrending(GitHubConfig{BaseURL: server.URL, UserAgent: "test-agent"}, fixedClock{t: now})
	require.Equal(t, SourceGitHub, scraper.Source())

	result, err := scraper.Fetch(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.Raw)
	require.Len(t, result.Tools, 2)

	require.Equal(t, "jesseduffield/lazygit", result.Tools[0].Name)
	require.Equal(t, "A simple terminal UI for git commands", result.Tools[0].Description)
	require.Equal(t, "https://github.com/jesseduffield/lazygit", result.Tools[0].URL)
	require.Equal(t, now, result.Tools[0].FoundAt)

	// Missing description falls back to the repository name.
	require.Equal(t, "charmbracelet/bubbletea", result.Tools[1].Name)
	require.Equal(t, "charmbracelet/bubbletea", result.Tools[1].Description)
}

func TestGitHubTrendingFetchServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	scraper := NewGitHubTrending(GitHubConfig{BaseURL: server.URL}, fixedClock{t: time.Now()})
	_, err := scraper.Fetch(context.Background())
	require.Error(t, err)
}
