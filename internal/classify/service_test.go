package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toolscout/toolscout/internal/llm"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   []llm.Request
	handler func(req llm.Request) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.handler(req)
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCompleter) batchCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, req := range f.calls {
		if req.JSONOnly {
			n++
		}
	}
	return n
}

// batchItems recovers the candidate list embedded in a batch prompt.
func batchItems(t *testing.T, req llm.Request) []Candidate {
	t.Helper()
	content := req.Messages[len(req.Messages)-1].Content
	idx := strings.Index(content, "Items:")
	require.GreaterOrEqual(t, idx, 0)
	var items []Candidate
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(content[idx+len("Items:"):])), &items))
	return items
}

func envelope(t *testing.T, results map[string]string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"results": results})
	require.NoError(t, err)
	return string(raw)
}

func TestClassifyCandidatesKeywordOnlyWithoutRemote(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{}, nil, nil)
	got := svc.ClassifyCandidates(context.Background(), []Candidate{
		{ID: "a", Name: "DevCLI", Text: "A command line tool for developers"},
		{ID: "b", Name: "GardenApp", Text: "A gardening community app"},
	})

	require.Equal(t, map[string]bool{"a": true, "b": false}, got)
}

func TestClassifyCandidatesPreFilterShortCircuits(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(llm.Request) (string, error) {
		return "yes", nil
	}}
	svc := NewService(Config{}, completer, nil)

	got := svc.ClassifyCandidates(context.Background(), []Candidate{
		{ID: "garden", Name: "Gardenify", Text: "plant care reminders for your balcony"},
	})

	require.Equal(t, map[string]bool{"garden": false}, got)
	require.Zero(t, completer.callCount(), "rejected candidates must not reach the remote classifier")
}

func TestClassifyCandidatesBatchResultsAreCached(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(req llm.Request) (string, error) {
		return `{"results": {"a": "yes", "b": "no"}}`, nil
	}}
	svc := NewService(Config{}, completer, nil)

	candidates := []Candidate{
		{ID: "a", Name: "Tool A", Text: "developer CLI"},
		{ID: "b", Name: "Tool B", Text: "developer API"},
	}

	first := svc.ClassifyCandidates(context.Background(), candidates)
	require.Equal(t, map[string]bool{"a": true, "b": false}, first)
	require.Equal(t, 1, completer.callCount())

	second := svc.ClassifyCandidates(context.Background(), candidates)
	require.Equal(t, first, second)
	require.Equal(t, 1, completer.callCount(), "cache hits must make zero remote calls")
}

func TestClassifyCandidatesMissingBatchIDsResolveIndividually(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(req llm.Request) (string, error) {
		if req.JSONOnly {
			// Truncated response: only two of the four IDs answered.
			return `{"results": {"a": "yes", "b": "no"}}`, nil
		}
		return "yes", nil
	}}
	svc := NewService(Config{}, completer, nil)

	got := svc.ClassifyCandidates(context.Background(), []Candidate{
		{ID: "a", Name: "Tool A", Text: "developer CLI"},
		{ID: "b", Name: "Tool B", Text: "developer API"},
		{ID: "c", Name: "Tool C", Text: "developer SDK"},
		{ID: "d", Name: "Tool D", Text: "developer IDE"},
	})

	require.Equal(t, map[string]bool{"a": true, "b": false, "c": true, "d": true}, got)
	require.Equal(t, 1, completer.batchCallCount())
	require.Equal(t, 3, completer.callCount(), "one batch call plus one single call per omitted ID")
}

func TestClassifyCandidatesBatchParseFailureFallsBackPerItem(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(req llm.Request) (string, error) {
		if req.JSONOnly {
			return "sorry, I cannot help with that", nil
		}
		return "no", nil
	}}
	svc := NewService(Config{}, completer, nil)

	got := svc.ClassifyCandidates(context.Background(), []Candidate{
		{ID: "a", Name: "Tool A", Text: "developer CLI"},
		{ID: "b", Name: "Tool B", Text: "developer API"},
	})

	require.Equal(t, map[string]bool{"a": false, "b": false}, got)
	require.Equal(t, 3, completer.callCount(), "one failed batch call plus one single call per item")
}

func TestClassifyCandidatesBatchTransportErrorFallsBackPerItem(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(req llm.Request) (string, error) {
		if req.JSONOnly {
			return "", errors.New("connection reset")
		}
		return "yes", nil
	}}
	svc := NewService(Config{}, completer, nil)

	got := svc.ClassifyCandidates(context.Background(), []Candidate{
		{ID: "a", Name: "Tool A", Text: "developer CLI"},
		{ID: "b", Name: "Tool B", Text: "developer API"},
	})

	require.Equal(t, map[string]bool{"a": true, "b": true}, got)
	require.Equal(t, 3, completer.callCount())
}

func TestClassifyCandidatesChunksLargeInputs(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{}
	completer.handler = func(req llm.Request) (string, error) {
		require.True(t, req.JSONOnly)
		results := map[string]string{}
		for _, item := range batchItems(t, req) {
			results[item.ID] = "yes"
		}
		require.LessOrEqual(t, len(results), 8)
		return envelope(t, results), nil
	}
	svc := NewService(Config{BatchSize: 8, MaxConcurrency: 2}, completer, nil)

	candidates := make([]Candidate, 0, 20)
	for i := 0; i < 20; i++ {
		candidates = append(candidates, Candidate{
			ID:   fmt.Sprintf("id-%d", i),
			Name: fmt.Sprintf("Tool %d", i),
			Text: "developer CLI for coding",
		})
	}

	got := svc.ClassifyCandidates(context.Background(), candidates)
	require.Len(t, got, 20)
	for id, verdict := range got {
		require.True(t, verdict, "candidate %s", id)
	}
	require.Equal(t, 3, completer.batchCallCount(), "20 candidates at chunk size 8 means 3 chunks")
}

func TestClassifyCandidatesSinglePendingSkipsBatchMode(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(req llm.Request) (string, error) {
		require.False(t, req.JSONOnly, "a single pending candidate must use single-item mode")
		return "no", nil
	}}
	svc := NewService(Config{}, completer, nil)

	got := svc.ClassifyCandidates(context.Background(), []Candidate{
		{ID: "only", Name: "Tool", Text: "developer CLI"},
	})

	require.Equal(t, map[string]bool{"only": false}, got)
	require.Equal(t, 1, completer.callCount())
}

func TestClassifyCandidatesBatchDisabledUsesSingleMode(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(req llm.Request) (string, error) {
		require.False(t, req.JSONOnly)
		return "yes", nil
	}}
	svc := NewService(Config{DisableBatch: true}, completer, nil)

	got := svc.ClassifyCandidates(context.Background(), []Candidate{
		{ID: "a", Name: "Tool A", Text: "developer CLI"},
		{ID: "b", Name: "Tool B", Text: "developer API"},
	})

	require.Equal(t, map[string]bool{"a": true, "b": true}, got)
	require.Equal(t, 2, completer.callCount())
}

func TestClassifyCandidatesDuplicateIDLastWriteWins(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{}, nil, nil)
	got := svc.ClassifyCandidates(context.Background(), []Candidate{
		{ID: "x", Name: "GardenApp", Text: "a gardening community"},
		{ID: "x", Name: "DevCLI", Text: "developer CLI"},
	})
	require.Equal(t, map[string]bool{"x": true}, got)

	got = svc.ClassifyCandidates(context.Background(), []Candidate{
		{ID: "y", Name: "DevCLI", Text: "developer CLI"},
		{ID: "y", Name: "GardenApp", Text: "a gardening community"},
	})
	require.Equal(t, map[string]bool{"y": false}, got)
}

func TestClassifyOneRepeatUsesCache(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(llm.Request) (string, error) {
		return "yes", nil
	}}
	svc := NewService(Config{}, completer, nil)

	require.True(t, svc.ClassifyOne(context.Background(), "Tool", "developer CLI"))
	require.True(t, svc.ClassifyOne(context.Background(), "Tool", "developer CLI"))
	require.Equal(t, 1, completer.callCount(), "exactly one remote call for a repeated candidate")
}

func TestClassifyOneUnrecognizedAnswerFallsBackToKeywords(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(llm.Request) (string, error) {
		return "maybe, it depends", nil
	}}
	svc := NewService(Config{}, completer, nil)

	// Keyword tier matched, so the fallback verdict is true.
	require.True(t, svc.ClassifyOne(context.Background(), "Tool", "developer monitoring with logs"))
	require.Equal(t, 1, completer.callCount())
}

func TestClassifyOneRemoteErrorFallsBackToKeywords(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(llm.Request) (string, error) {
		return "", errors.New("api down")
	}}
	svc := NewService(Config{}, completer, nil)

	require.True(t, svc.ClassifyOne(context.Background(), "Tool", "CI pipelines for code"))
}

func TestClassifyCandidatesCacheTTLExpiry(t *testing.T) {
	t.Parallel()

	answers := []string{"yes", "no"}
	var n int
	var mu sync.Mutex
	completer := &fakeCompleter{handler: func(llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		answer := answers[n%len(answers)]
		n++
		return answer, nil
	}}
	svc := NewService(Config{CacheTTL: 20 * time.Millisecond, DisableBatch: true}, completer, nil)

	candidate := []Candidate{{ID: "a", Name: "Tool A", Text: "developer CLI"}}

	first := svc.ClassifyCandidates(context.Background(), candidate)
	require.Equal(t, map[string]bool{"a": true}, first)
	require.Equal(t, 1, completer.callCount())

	time.Sleep(60 * time.Millisecond)

	second := svc.ClassifyCandidates(context.Background(), candidate)
	require.Equal(t, map[string]bool{"a": false}, second)
	require.Equal(t, 2, completer.callCount(), "expiry must force a fresh remote call")
}

func TestClassifyCandidatesCacheDisabled(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(llm.Request) (string, error) {
		return "yes", nil
	}}
	svc := NewService(Config{DisableCache: true, DisableBatch: true}, completer, nil)

	candidate := []Candidate{{ID: "a", Name: "Tool A", Text: "developer CLI"}}
	svc.ClassifyCandidates(context.Background(), candidate)
	svc.ClassifyCandidates(context.Background(), candidate)

	require.Equal(t, 2, completer.callCount(), "a disabled cache must classify fresh every time")
}

func TestCategoryWithoutRemoteIsAbsent(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{}, nil, nil)
	category, ok := svc.Category(context.Background(), "Tool", "developer CLI")
	require.False(t, ok)
	require.Empty(t, category)
}

func TestCategorySuccessIsCached(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(llm.Request) (string, error) {
		return "  CLI Tool \n", nil
	}}
	svc := NewService(Config{}, completer, nil)

	category, ok := svc.Category(context.Background(), "Tooler", "CLI utilities")
	require.True(t, ok)
	require.Equal(t, "CLI Tool", category)

	category, ok = svc.Category(context.Background(), "Tooler", "CLI utilities")
	require.True(t, ok)
	require.Equal(t, "CLI Tool", category)
	require.Equal(t, 1, completer.callCount())
}

func TestCategoryErrorYieldsAbsent(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{handler: func(llm.Request) (string, error) {
		return "", errors.New("bad request")
	}}
	svc := NewService(Config{}, completer, nil)

	_, ok := svc.Category(context.Background(), "API Helper", "API helper")
	require.False(t, ok)
}

func TestParseBatchResponseVariants(t *testing.T) {
	t.Parallel()

	got, err := parseBatchResponse("```json\n{\"results\": {\"a\": \"yes\"}}\n```")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "yes"}, got)

	got, err = parseBatchResponse(`{"a": "no"}`)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "no"}, got)

	_, err = parseBatchResponse("not json at all")
	require.Error(t, err)
}
