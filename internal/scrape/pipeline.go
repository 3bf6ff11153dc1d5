package scrape

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/toolscout/toolscout/internal/archive"
	"github.com/toolscout/toolscout/internal/classify"
	"github.com/toolscout/toolscout/internal/metrics"
	"github.com/toolscout/toolscout/internal/store"
)

// TopicToolDiscovered is the event name attached to publishes for newly
// saved tools.
const TopicToolDiscovered = "tool.discovered"

// Classifier decides which candidates are devtools and names their category.
type Classifier interface {
	ClassifyCandidates(ctx context.Context, candidates []classify.Candidate) map[string]bool
	Category(ctx context.Context, name, text string) (string, bool)
}

// Publisher emits an event for each newly saved tool.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator mints IDs for saved tools.
type IDGenerator interface {
	NewID() (string, error)
}

// SourceReport summarizes one scraper's run.
type SourceReport struct {
	Source     string `json:"source"`
	Discovered int    `json:"discovered"`
	Accepted   int    `json:"accepted"`
	Saved      int    `json:"saved"`
	Duplicates int    `json:"duplicates"`
	Error      string `json:"error,omitempty"`
}

// RunnerOptions wires the pipeline dependencies. Store, Archive, Publisher
// and Logger may be left nil for a degraded local run.
type RunnerOptions struct {
	Scrapers      []Scraper
	Classifier    Classifier
	Store         store.Store
	Archive       archive.BlobStore
	Publisher     Publisher
	IDs           IDGenerator
	Clock         Clock
	Logger        *zap.Logger
	ArchivePrefix string
}

// Runner drives scrapers through classification, persistence, archiving and
// event publication.
type Runner struct {
	opts RunnerOptions
}

// NewRunner builds a Runner, substituting no-op dependencies for nil ones.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.IDs == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if opts.Store == nil {
		opts.Store = store.NoOpStore{}
	}
	if opts.Archive == nil {
		opts.Archive = archive.NoOp{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ArchivePrefix == "" {
		opts.ArchivePrefix = "scrapes"
	}
	return &Runner{opts: opts}, nil
}

// Run executes every configured scraper, or only the named sources when
// given. A failing source is reported and does not stop the others.
func (r *Runner) Run(ctx context.Context, only ...string) []SourceReport {
	wanted := make(map[string]bool, len(only))
	for _, source := range only {
		wanted[source] = true
	}

	var reports []SourceReport
	for _, scraper := range r.opts.Scrapers {
		if len(wanted) > 0 && !wanted[scraper.Source()] {
			continue
		}
		reports = append(reports, r.runOne(ctx, scraper))
	}
	return reports
}

// Sources lists the configured scraper names.
func (r *Runner) Sources() []string {
	names := make([]string, 0, len(r.opts.Scrapers))
	for _, s := range r.opts.Scrapers {
		names = append(names, s.Source())
	}
	return names
}

func (r *Runner) runOne(ctx context.Context, scraper Scraper) SourceReport {
	source := scraper.Source()
	logger := r.opts.Logger.With(zap.String("source", source))
	report := SourceReport{Source: source}
	start := r.opts.Clock.Now()

	result, err := scraper.Fetch(ctx)
	if err != nil {
		logger.Error("scrape failed", zap.Error(err))
		metrics.IncTool(source, "error")
		report.Error = err.Error()
		return report
	}
	metrics.ObserveScrapeDuration(source, r.opts.Clock.Now().Sub(start))
	report.Discovered = len(result.Tools)
	logger.Info("scrape fetched candidates", zap.Int("count", len(result.Tools)))

	r.archiveRaw(ctx, logger, source, result.Raw)

	candidates := make([]classify.Candidate, 0, len(result.Tools))
	for _, tool := range result.Tools {
		candidates = append(candidates, classify.Candidate{
			ID:   tool.URL,
			Name: tool.Name,
			Text: tool.Description,
		})
	}
	verdicts := r.opts.Classifier.ClassifyCandidates(ctx, candidates)

	for _, tool := range result.Tools {
		if !verdicts[tool.URL] {
			metrics.IncTool(source, "rejected")
			continue
		}
		report.Accepted++
		r.saveTool(ctx, logger, source, tool, &report)
	}

	if err := r.opts.Store.RecordScrapeCompletion(ctx, source, r.opts.Clock.Now(), report.Saved); err != nil {
		logger.Warn("record scrape completion failed", zap.Error(err))
	}
	logger.Info("scrape finished",
		zap.Int("discovered", report.Discovered),
		zap.Int("accepted", report.Accepted),
		zap.Int("saved", report.Saved),
		zap.Int("duplicates", report.Duplicates),
	)
	return report
}

func (r *Runner) archiveRaw(ctx context.Context, logger *zap.Logger, source string, raw []byte) {
	if len(raw) == 0 {
		return
	}
	runID, err := r.opts.IDs.NewID()
	if err != nil {
		logger.Warn("archive id generation failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/%s.json", r.opts.ArchivePrefix, source, runID)
	uri, err := r.opts.Archive.PutObject(ctx, path, "application/json", bytes.NewReader(raw))
	if err != nil {
		// Archiving is best effort; classification still proceeds.
		logger.Warn("archive raw payload failed", zap.Error(err))
		return
	}
	if uri != "" {
		logger.Debug("archived raw payload", zap.String("uri", uri))
	}
}

func (r *Runner) saveTool(ctx context.Context, logger *zap.Logger, source string, tool RawTool, report *SourceReport) {
	// Known duplicates skip the category lookup; SaveTool's conflict handling
	// still catches concurrent inserts.
	dup, err := r.opts.Store.IsDuplicate(ctx, tool.URL)
	if err != nil {
		logger.Warn("duplicate check failed", zap.String("url", tool.URL), zap.Error(err))
	} else if dup {
		report.Duplicates++
		metrics.IncTool(source, "duplicate")
		return
	}

	description := tool.Description
	category, ok := r.opts.Classifier.Category(ctx, tool.Name, tool.Description)
	if ok {
		description = fmt.Sprintf("[%s] %s", category, description)
	}

	id, err := r.opts.IDs.NewID()
	if err != nil {
		logger.Error("tool id generation failed", zap.Error(err))
		return
	}
	record := store.Tool{
		ID:          id,
		Name:        tool.Name,
		Description: description,
		URL:         tool.URL,
		Source:      source,
		Category:    category,
		Score:       tool.Score,
		ScrapedAt:   tool.FoundAt,
	}
	if record.ScrapedAt.IsZero() {
		record.ScrapedAt = r.opts.Clock.Now()
	}

	inserted, err := r.opts.Store.SaveTool(ctx, record)
	if err != nil {
		logger.Error("save tool failed", zap.String("url", tool.URL), zap.Error(err))
		return
	}
	if !inserted {
		report.Duplicates++
		metrics.IncTool(source, "duplicate")
		return
	}
	report.Saved++
	metrics.IncTool(source, "saved")

	if r.opts.Publisher != nil {
		if _, err := r.opts.Publisher.Publish(ctx, TopicToolDiscovered, record); err != nil {
			logger.Warn("publish tool event failed", zap.String("url", tool.URL), zap.Error(err))
		}
	}
}
