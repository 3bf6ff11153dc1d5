package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/toolscout/toolscout/internal/llm"
	"github.com/toolscout/toolscout/internal/metrics"
)

const (
	defaultBatchSize      = 8
	defaultMaxConcurrency = 4
	defaultCacheCapacity  = 1024
	defaultCacheTTL       = time.Hour

	// Batch responses must have room for every ID in the chunk; a fixed
	// budget independent of chunk size risks a truncated JSON mapping.
	batchTokenBase    = 64
	batchTokenPerItem = 16
)

// Completer is the remote text-completion capability the service depends on.
// A nil Completer puts the service in keyword-only degraded mode.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Config controls the classification service. Zero values enable caching and
// batching; the disable flags exist for benchmarking and short-lived runs
// that must classify fresh.
type Config struct {
	DisableCache   bool
	DisableBatch   bool
	CacheTTL       time.Duration
	CacheCapacity  int
	BatchSize      int
	MaxConcurrency int
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return defaultBatchSize
	}
	return c.BatchSize
}

func (c Config) maxConcurrency() int {
	if c.MaxConcurrency <= 0 {
		return defaultMaxConcurrency
	}
	return c.MaxConcurrency
}

// Service classifies candidates as devtools-related or not. It owns the two
// outcome caches and the remote-client handle; construct once per process and
// share across callers.
type Service struct {
	cfg        Config
	completer  Completer
	outcomes   *resultCache[bool]
	categories *resultCache[string]
	logger     *zap.Logger
}

// NewService builds a Service. completer may be nil, in which case every
// decision falls back to the keyword pre-filter and categories are absent.
func NewService(cfg Config, completer Completer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	enabled := !cfg.DisableCache
	return &Service{
		cfg:        cfg,
		completer:  completer,
		outcomes:   newResultCache[bool](enabled, cfg.CacheCapacity, cfg.CacheTTL),
		categories: newResultCache[string](enabled, cfg.CacheCapacity, cfg.CacheTTL),
		logger:     logger,
	}
}

// ClassifyCandidates resolves every candidate to a boolean. The returned map
// covers every input ID; failures at any tier degrade to a cheaper method
// rather than surfacing as errors. Candidates sharing an ID within one call
// resolve to the last one's outcome.
func (s *Service) ClassifyCandidates(ctx context.Context, candidates []Candidate) map[string]bool {
	results := make(map[string]bool, len(candidates))
	pending := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		if !HasDevtoolsKeywords(c.Name, c.Text) {
			results[c.ID] = false
			metrics.IncKeywordReject()
			continue
		}
		if v, ok := s.outcomes.Get(Fingerprint(c.Name, c.Text)); ok {
			results[c.ID] = v
			metrics.IncCacheEvent("outcome", "hit")
			continue
		}
		metrics.IncCacheEvent("outcome", "miss")
		pending = append(pending, c)
	}
	if len(pending) == 0 {
		return results
	}

	if s.completer == nil || s.cfg.DisableBatch || len(pending) == 1 {
		for _, c := range pending {
			results[c.ID] = s.ClassifyOne(ctx, c.Name, c.Text)
		}
		return results
	}

	chunks := chunkCandidates(pending, s.cfg.batchSize())
	workers := s.cfg.maxConcurrency()
	if workers > len(chunks) {
		workers = len(chunks)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, chunk := range chunks {
		g.Go(func() error {
			resolved := s.classifyChunk(gctx, chunk)
			mu.Lock()
			for id, v := range resolved {
				results[id] = v
			}
			mu.Unlock()
			return nil
		})
	}
	// Workers resolve every failure to a fallback boolean, so the join only
	// surfaces programming bugs.
	_ = g.Wait()

	return results
}

// ClassifyOne classifies a single candidate. The pre-filter runs first; when
// the remote side is unconfigured, unreachable, or answers with anything but
// a strict yes/no token, the pre-filter's verdict stands. Never errors.
func (s *Service) ClassifyOne(ctx context.Context, name, text string) bool {
	if !HasDevtoolsKeywords(name, text) {
		metrics.IncKeywordReject()
		return false
	}
	key := Fingerprint(name, text)
	if v, ok := s.outcomes.Get(key); ok {
		metrics.IncCacheEvent("outcome", "hit")
		return v
	}
	if s.completer == nil {
		// Keyword tier already matched above.
		s.outcomes.Set(key, true)
		return true
	}

	out, err := s.completeYesNo(ctx, name, text)
	if err != nil {
		s.logger.Warn("single classification fell back to keywords",
			zap.String("name", name),
			zap.Error(err),
		)
		metrics.IncRemoteCall("single", "fallback")
		out = true
	} else {
		metrics.IncRemoteCall("single", "ok")
	}
	s.outcomes.Set(key, out)
	return out
}

// classifyChunk resolves one chunk via a batch remote call. IDs the response
// omits are classified individually; a failed or unparseable batch response
// sends the whole chunk through the single-item path. Never defaults a
// missing ID to false.
func (s *Service) classifyChunk(ctx context.Context, chunk []Candidate) map[string]bool {
	out := make(map[string]bool, len(chunk))

	verdicts, err := s.completeBatch(ctx, chunk)
	if err != nil {
		s.logger.Warn("batch classification failed; resolving chunk individually",
			zap.Int("chunk_size", len(chunk)),
			zap.Error(err),
		)
		metrics.IncRemoteCall("batch", "fallback")
		for _, c := range chunk {
			out[c.ID] = s.ClassifyOne(ctx, c.Name, c.Text)
		}
		return out
	}
	metrics.IncRemoteCall("batch", "ok")

	for _, c := range chunk {
		token, ok := verdicts[c.ID]
		if !ok {
			s.logger.Debug("batch response omitted candidate; classifying individually",
				zap.String("id", c.ID),
			)
			out[c.ID] = s.ClassifyOne(ctx, c.Name, c.Text)
			continue
		}
		v := isAffirmative(token)
		s.outcomes.Set(Fingerprint(c.Name, c.Text), v)
		out[c.ID] = v
	}
	return out
}

func isAffirmative(token string) bool {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "yes", "true":
		return true
	default:
		return false
	}
}

func chunkCandidates(candidates []Candidate, size int) [][]Candidate {
	chunks := make([][]Candidate, 0, (len(candidates)+size-1)/size)
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		chunks = append(chunks, candidates[start:end])
	}
	return chunks
}

const classifierSystemPrompt = "You are a classifier that determines whether software or tools are " +
	"developer tools (devtools). Respond with only 'yes' or 'no'."

const classifierRubric = `Devtools include:
- Development tools (IDEs, text editors, debuggers)
- Build tools, package managers, CI/CD tools
- Testing frameworks, monitoring tools
- API tools, SDKs, libraries
- DevOps tools, infrastructure tools
- Code analysis, linting, formatting tools
- Database tools, deployment tools
- Terminal tools, CLI applications
- Developer productivity tools

NOT devtools:
- End-user applications (games, social media, productivity apps)
- Business software, marketing tools
- Consumer apps, entertainment apps
- E-commerce, finance apps (unless specifically for developers)`

func (s *Service) completeYesNo(ctx context.Context, name, text string) (bool, error) {
	prompt := fmt.Sprintf(`%s

Content to classify:
Name: %s
Description: %s

Answer with ONLY "yes" or "no".`, classifierRubric, name, text)

	raw, err := s.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   10,
		Temperature: 0,
	})
	if err != nil {
		return false, err
	}

	switch answer := strings.ToLower(strings.TrimSpace(raw)); answer {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	default:
		// Conversational or malformed output is untrusted, not a verdict.
		return false, fmt.Errorf("unrecognized classifier answer %q", answer)
	}
}

func (s *Service) completeBatch(ctx context.Context, chunk []Candidate) (map[string]string, error) {
	items, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("marshal batch candidates: %w", err)
	}

	prompt := fmt.Sprintf(`%s

Classify every item in the JSON array below. Respond with a single JSON object
of the form {"results": {"<id>": "yes" | "no", ...}} covering every input id.

Items:
%s`, classifierRubric, items)

	raw, err := s.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   batchTokenBase + batchTokenPerItem*len(chunk),
		Temperature: 0,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, err
	}
	return parseBatchResponse(raw)
}

// parseBatchResponse accepts the {"results": {...}} envelope and, leniently,
// a bare id->token object. Markdown fences are stripped first since models
// emit them despite instructions.
func parseBatchResponse(raw string) (map[string]string, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var envelope struct {
		Results map[string]string `json:"results"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err == nil && envelope.Results != nil {
		return envelope.Results, nil
	}

	var flat map[string]string
	if err := json.Unmarshal([]byte(cleaned), &flat); err != nil {
		return nil, fmt.Errorf("parse batch response: %w", err)
	}
	return flat, nil
}

// Category assigns a free-text category to an already-accepted candidate.
// Best effort: returns ("", false) when the remote side is unconfigured or
// the call fails, and never influences the boolean classification outcome.
func (s *Service) Category(ctx context.Context, name, text string) (string, bool) {
	if s.completer == nil {
		return "", false
	}
	key := Fingerprint(name, text)
	if v, ok := s.categories.Get(key); ok {
		metrics.IncCacheEvent("category", "hit")
		return v, true
	}
	metrics.IncCacheEvent("category", "miss")

	prompt := fmt.Sprintf(`Classify this devtool into one of these categories:
- IDE/Editor: Integrated development environments, code editors
- CLI Tool: Command line tools, terminal applications
- Testing: Testing frameworks, test runners, mocking tools
- Build/Deploy: Build tools, deployment tools, CI/CD
- Monitoring/Observability: Logging, metrics, tracing, alerting
- Database: Database tools, ORMs, query builders
- API/SDK: API tools, SDKs, client libraries
- DevOps: Infrastructure, containerization, orchestration
- Code Quality: Linters, formatters, static analysis
- Package Manager: Dependency management, package managers
- Other: Anything else

Name: %s
Description: %s

Respond with ONLY the category name.`, name, text)

	raw, err := s.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You are a helpful assistant that categorizes devtools. Respond with only the category name."},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   20,
		Temperature: 0,
	})
	if err != nil {
		s.logger.Warn("category lookup failed", zap.String("name", name), zap.Error(err))
		metrics.IncRemoteCall("category", "fallback")
		return "", false
	}
	metrics.IncRemoteCall("category", "ok")

	category := strings.TrimSpace(raw)
	if category == "" {
		return "", false
	}
	s.categories.Set(key, category)
	return category, true
}
