package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig controls the Postgres connection pool.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool querier
}

// NewPostgresStore connects a pool and verifies the schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing). Schema initialization is skipped.
func NewPostgresStoreWithPool(pool querier) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS tools (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	score INT NOT NULL DEFAULT 0,
	scraped_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS tools_source_idx ON tools (source);
CREATE TABLE IF NOT EXISTS scrape_runs (
	source TEXT PRIMARY KEY,
	completed_at TIMESTAMPTZ NOT NULL,
	tool_count INT NOT NULL
)`

func (s *PostgresStore) initSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const toolColumns = "id, name, description, url, source, category, score, scraped_at, created_at"

// SaveTool inserts the tool. The URL is the dedupe key; a conflicting insert
// is reported as not-inserted rather than as an error.
func (s *PostgresStore) SaveTool(ctx context.Context, tool Tool) (bool, error) {
	if tool.ID == "" {
		return false, fmt.Errorf("tool id is required")
	}
	if tool.URL == "" {
		return false, fmt.Errorf("tool url is required")
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO tools (id, name, description, url, source, category, score, scraped_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (url) DO NOTHING`,
		tool.ID,
		tool.Name,
		tool.Description,
		tool.URL,
		tool.Source,
		tool.Category,
		tool.Score,
		tool.ScrapedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert tool: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IsDuplicate reports whether a tool with this URL already exists.
func (s *PostgresStore) IsDuplicate(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tools WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Tool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = $1`, id)
	tool, err := scanTool(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tool{}, ErrNotFound
	}
	if err != nil {
		return Tool{}, fmt.Errorf("get tool: %w", err)
	}
	return tool, nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]Tool, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+toolColumns+` FROM tools
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return scanTools(rows)
}

func (s *PostgresStore) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tools`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tools: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListBySource(ctx context.Context, source string, limit, offset int) ([]Tool, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+toolColumns+` FROM tools
WHERE source = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, source, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tools by source: %w", err)
	}
	return scanTools(rows)
}

func (s *PostgresStore) CountBySource(ctx context.Context, source string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tools WHERE source = $1`, source).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tools by source: %w", err)
	}
	return n, nil
}

// Search matches the query case-insensitively against name and description.
func (s *PostgresStore) Search(ctx context.Context, query string, limit, offset int) ([]Tool, error) {
	pattern := "%" + query + "%"
	rows, err := s.pool.Query(ctx, `
SELECT `+toolColumns+` FROM tools
WHERE name ILIKE $1 OR description ILIKE $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search tools: %w", err)
	}
	return scanTools(rows)
}

func (s *PostgresStore) CountSearch(ctx context.Context, query string) (int, error) {
	pattern := "%" + query + "%"
	var n int
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM tools
WHERE name ILIKE $1 OR description ILIKE $1`, pattern).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count search: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) SourceCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT source, COUNT(*) FROM tools GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("source counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		counts[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) RecordScrapeCompletion(ctx context.Context, source string, completedAt time.Time, toolCount int) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO scrape_runs (source, completed_at, tool_count)
VALUES ($1,$2,$3)
ON CONFLICT (source) DO UPDATE SET completed_at = EXCLUDED.completed_at, tool_count = EXCLUDED.tool_count`,
		source, completedAt, toolCount)
	if err != nil {
		return fmt.Errorf("record scrape completion: %w", err)
	}
	return nil
}

func (s *PostgresStore) LastScrapeTime(ctx context.Context, source string) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, `SELECT completed_at FROM scrape_runs WHERE source = $1`, source).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last scrape time: %w", err)
	}
	return ts, nil
}

func scanTool(row pgx.Row) (Tool, error) {
	var t Tool
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.URL, &t.Source, &t.Category, &t.Score, &t.ScrapedAt, &t.CreatedAt)
	return t, err
}

func scanTools(rows pgx.Rows) ([]Tool, error) {
	defer rows.Close()
	var tools []Tool
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		tools = append(tools, tool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tools: %w", err)
	}
	return tools, nil
}
