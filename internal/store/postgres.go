package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/beacon-intel/aiviz-cli/internal/cache"
	"github.com/beacon-intel/aiviz-cli/internal/db"
	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":          `INSERT INTO runs (id, url, business_id, triggered_by, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_run_status":   `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_run_result":   `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":             `SELECT id, url, business_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_stage":        `INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_stage":      `UPDATE run_stages SET status = $1, result = $2 WHERE id = $3`,
	"get_business":        `SELECT id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at FROM businesses WHERE id = $1`,
	"get_business_by_url": `SELECT id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at FROM businesses WHERE url = $1`,
	"insert_fingerprint":  `INSERT INTO fingerprints (id, business_id, business_name, visibility_score, total_tokens, estimated_cost, data, generated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"latest_fingerprint":  `SELECT data FROM fingerprints WHERE business_id = $1 ORDER BY generated_at DESC LIMIT 1`,
	"get_cached_crawl":    `SELECT id, business_url, data, crawled_at, expires_at FROM crawl_cache WHERE business_url = $1 AND expires_at > now() ORDER BY crawled_at DESC LIMIT 1`,
	"set_cached_crawl":    `INSERT INTO crawl_cache (id, business_url, data, crawled_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (business_url) DO UPDATE SET data = $3, crawled_at = $4, expires_at = $5`,
	"get_cached_response": `SELECT cache_key, model, content, tokens_used, created_at FROM response_cache WHERE cache_key = $1 AND expires_at > now()`,
	"set_cached_response": `INSERT INTO response_cache (id, cache_key, model, content, tokens_used, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (cache_key) DO UPDATE SET model = $3, content = $4, tokens_used = $5, created_at = $6, expires_at = $7`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name               TEXT NOT NULL,
	url                TEXT NOT NULL UNIQUE,
	category           TEXT NOT NULL DEFAULT '',
	location           TEXT NOT NULL DEFAULT '',
	tier               TEXT NOT NULL DEFAULT 'free',
	status             TEXT NOT NULL DEFAULT 'pending',
	automation_enabled BOOLEAN NOT NULL DEFAULT false,
	next_crawl_at      TIMESTAMPTZ,
	last_crawled_at    TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_businesses_status ON businesses(status);
CREATE INDEX IF NOT EXISTS idx_businesses_due ON businesses(automation_enabled, next_crawl_at);

CREATE TABLE IF NOT EXISTS fingerprints (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id      TEXT NOT NULL,
	business_name    TEXT NOT NULL,
	visibility_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_tokens     INTEGER NOT NULL DEFAULT 0,
	estimated_cost   DOUBLE PRECISION NOT NULL DEFAULT 0,
	data             JSONB NOT NULL,
	generated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_business ON fingerprints(business_id, generated_at DESC);
CREATE INDEX IF NOT EXISTS idx_fingerprints_generated_at ON fingerprints(generated_at);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url          TEXT NOT NULL,
	business_id  TEXT NOT NULL DEFAULT '',
	triggered_by TEXT NOT NULL DEFAULT 'manual',
	status       TEXT NOT NULL DEFAULT 'queued',
	result       JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_url ON runs(url);
CREATE INDEX IF NOT EXISTS idx_runs_business_id ON runs(business_id);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);

CREATE TABLE IF NOT EXISTS crawl_jobs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id  TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_crawl_jobs_business_id ON crawl_jobs(business_id);

CREATE TABLE IF NOT EXISTS crawl_cache (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_url TEXT NOT NULL UNIQUE,
	data         JSONB NOT NULL,
	crawled_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crawl_cache_expires_at ON crawl_cache(expires_at);

CREATE TABLE IF NOT EXISTS response_cache (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cache_key   TEXT NOT NULL UNIQUE,
	model       TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	tokens_used INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id    TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL,
	stage          TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Businesses

func (s *PostgresStore) CreateBusiness(ctx context.Context, b model.Business) (*model.Business, error) {
	applyBusinessDefaults(&b)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO businesses (id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.Name, b.URL, b.Category, b.Location, string(b.Tier), string(b.Status),
		b.AutomationEnabled, b.NextCrawlAt, b.LastCrawledAt, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert business")
	}
	return &b, nil
}

func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at FROM businesses WHERE id = $1`,
		id,
	)
	b, err := scanBusinessRow(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get business %s", id)
	}
	return b, nil
}

func (s *PostgresStore) GetBusinessByURL(ctx context.Context, url string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at FROM businesses WHERE url = $1`,
		url,
	)
	b, err := scanBusinessRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get business by url")
	}
	return b, nil
}

func (s *PostgresStore) UpdateBusiness(ctx context.Context, id string, patch BusinessPatch) error {
	var sets []string
	var args []any
	argIdx := 1
	add := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, v)
		argIdx++
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.Tier != nil {
		add("tier", string(*patch.Tier))
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.AutomationEnabled != nil {
		add("automation_enabled", *patch.AutomationEnabled)
	}
	if patch.NextCrawlAt != nil {
		add("next_crawl_at", *patch.NextCrawlAt)
	}
	if patch.LastCrawledAt != nil {
		add("last_crawled_at", *patch.LastCrawledAt)
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`UPDATE businesses SET %s WHERE id = $%d`, strings.Join(sets, ", "), argIdx)
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update business %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("business not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at FROM businesses WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Tier != "" {
		query += fmt.Sprintf(` AND tier = $%d`, argIdx)
		args = append(args, string(filter.Tier))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		b, err := scanBusinessRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		businesses = append(businesses, *b)
	}
	return businesses, eris.Wrap(rows.Err(), "postgres: list businesses iterate")
}

func (s *PostgresStore) ListDueBusinesses(ctx context.Context, cutoff time.Time, limit int) ([]model.Business, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at FROM businesses
		 WHERE automation_enabled AND (next_crawl_at IS NULL OR next_crawl_at <= $1)
		 ORDER BY next_crawl_at ASC NULLS FIRST LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list due businesses")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		b, err := scanBusinessRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan due business")
		}
		businesses = append(businesses, *b)
	}
	return businesses, eris.Wrap(rows.Err(), "postgres: list due businesses iterate")
}

// UpsertBusinesses bulk-loads businesses keyed by URL. Existing rows keep
// their status and crawl schedule; identity fields are refreshed.
func (s *PostgresStore) UpsertBusinesses(ctx context.Context, businesses []model.Business) (int64, error) {
	if len(businesses) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(businesses))
	for i := range businesses {
		b := businesses[i]
		applyBusinessDefaults(&b)
		rows = append(rows, []any{
			b.ID, b.Name, b.URL, b.Category, b.Location, string(b.Tier), string(b.Status),
			b.AutomationEnabled, b.NextCrawlAt, b.LastCrawledAt, now, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "businesses",
		Columns: []string{
			"id", "name", "url", "category", "location", "tier", "status",
			"automation_enabled", "next_crawl_at", "last_crawled_at", "created_at", "updated_at",
		},
		ConflictKeys: []string{"url"},
		UpdateCols:   []string{"name", "category", "location", "tier", "automation_enabled", "updated_at"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert businesses")
}

// Fingerprints

func (s *PostgresStore) CreateFingerprint(ctx context.Context, fp *model.FingerprintAnalysis) (*model.FingerprintAnalysis, error) {
	stored := *fp
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.GeneratedAt.IsZero() {
		stored.GeneratedAt = time.Now().UTC()
	}

	dataJSON, err := json.Marshal(&stored)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal fingerprint")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO fingerprints (id, business_id, business_name, visibility_score, total_tokens, estimated_cost, data, generated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		stored.ID, stored.BusinessID, stored.BusinessName, stored.VisibilityScore,
		stored.TotalTokens, stored.EstimatedCost, dataJSON, stored.GeneratedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert fingerprint")
	}
	return &stored, nil
}

func (s *PostgresStore) GetLatestFingerprint(ctx context.Context, businessID string) (*model.FingerprintAnalysis, error) {
	var dataJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM fingerprints WHERE business_id = $1 ORDER BY generated_at DESC LIMIT 1`,
		businessID,
	).Scan(&dataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get latest fingerprint")
	}

	var fp model.FingerprintAnalysis
	if err := json.Unmarshal(dataJSON, &fp); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal fingerprint")
	}
	return &fp, nil
}

func (s *PostgresStore) ListFingerprints(ctx context.Context, businessID string, limit int) ([]model.FingerprintAnalysis, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM fingerprints WHERE business_id = $1 ORDER BY generated_at DESC LIMIT $2`,
		businessID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fingerprints")
	}
	defer rows.Close()

	var fps []model.FingerprintAnalysis
	for rows.Next() {
		var dataJSON []byte
		if err := rows.Scan(&dataJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fingerprint")
		}
		var fp model.FingerprintAnalysis
		if err := json.Unmarshal(dataJSON, &fp); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fingerprint")
		}
		fps = append(fps, fp)
	}
	return fps, eris.Wrap(rows.Err(), "postgres: list fingerprints iterate")
}

func (s *PostgresStore) FingerprintStats(ctx context.Context, since time.Time) (*FingerprintStats, error) {
	var stats FingerprintStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(visibility_score), 0), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(estimated_cost), 0)
		 FROM fingerprints WHERE generated_at >= $1`,
		since,
	).Scan(&stats.Count, &stats.AvgVisibility, &stats.TotalTokens, &stats.TotalCost)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fingerprint stats")
	}
	return &stats, nil
}

// Runs

func (s *PostgresStore) CreateRun(ctx context.Context, url, businessID, trigger string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if trigger == "" {
		trigger = "manual"
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, url, business_id, triggered_by, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, url, businessID, trigger, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:         id,
		URL:        url,
		BusinessID: businessID,
		Trigger:    trigger,
		Status:     model.RunStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.CFPResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(statusForResult(result)), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var resultNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, url, business_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.URL, &r.BusinessID, &r.Trigger, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if resultNull != nil {
		r.Result = &model.CFPResult{}
		if err := json.Unmarshal(*resultNull, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, url, business_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.URL != "" {
		query += fmt.Sprintf(` AND url = $%d`, argIdx)
		args = append(args, filter.URL)
		argIdx++
	}
	if filter.BusinessID != "" {
		query += fmt.Sprintf(` AND business_id = $%d`, argIdx)
		args = append(args, filter.BusinessID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var resultNull *[]byte

		if err := rows.Scan(&r.ID, &r.URL, &r.BusinessID, &r.Trigger, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if resultNull != nil {
			r.Result = &model.CFPResult{}
			if err := json.Unmarshal(*resultNull, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CountRunsByStatus(ctx context.Context, since time.Time) (map[model.RunStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM runs WHERE created_at >= $1 GROUP BY status`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count runs by status")
	}
	defer rows.Close()

	counts := make(map[model.RunStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run count")
		}
		counts[model.RunStatus(status)] = count
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count runs iterate")
}

// Stages

func (s *PostgresStore) CreateStage(ctx context.Context, runID string, name model.Stage) (*model.RunStage, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, string(name), string(model.StageStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert stage for run %s", runID)
	}

	return &model.RunStage{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE run_stages SET status = $1, result = $2 WHERE id = $3`,
		string(result.Status), resultJSON, stageID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete stage %s", stageID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("stage not found: %s", stageID)
	}
	return nil
}

// Crawl jobs

func (s *PostgresStore) CreateCrawlJob(ctx context.Context, businessID, url string) (*model.CrawlJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO crawl_jobs (id, business_id, url, status, error, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, businessID, url, string(model.CrawlJobStatusRunning), "", now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert crawl job")
	}

	return &model.CrawlJob{
		ID:         id,
		BusinessID: businessID,
		URL:        url,
		Status:     model.CrawlJobStatusRunning,
		StartedAt:  now,
	}, nil
}

func (s *PostgresStore) UpdateCrawlJob(ctx context.Context, id string, status model.CrawlJobStatus, errMsg string) error {
	var completedAt *time.Time
	if status == model.CrawlJobStatusComplete || status == model.CrawlJobStatusFailed {
		now := time.Now().UTC()
		completedAt = &now
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_jobs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(status), errMsg, completedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update crawl job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("crawl job not found: %s", id)
	}
	return nil
}

// Crawl cache

func (s *PostgresStore) GetCachedCrawl(ctx context.Context, businessURL string) (*model.CrawlCache, error) {
	var cc model.CrawlCache
	var dataJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, business_url, data, crawled_at, expires_at FROM crawl_cache
		 WHERE business_url = $1 AND expires_at > now()
		 ORDER BY crawled_at DESC LIMIT 1`,
		businessURL,
	).Scan(&cc.ID, &cc.BusinessURL, &dataJSON, &cc.CrawledAt, &cc.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached crawl")
	}
	if err := json.Unmarshal(dataJSON, &cc.Data); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached crawl")
	}
	return &cc, nil
}

func (s *PostgresStore) SetCachedCrawl(ctx context.Context, businessURL string, data *model.CrawlData, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal crawl data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO crawl_cache (id, business_url, data, crawled_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (business_url) DO UPDATE SET data = $3, crawled_at = $4, expires_at = $5`,
		id, businessURL, dataJSON, now, expiresAt,
	)
	return eris.Wrap(err, "postgres: set cached crawl")
}

func (s *PostgresStore) DeleteExpiredCrawls(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM crawl_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired crawls")
	}
	return int(tag.RowsAffected()), nil
}

// Response cache

func (s *PostgresStore) GetCachedResponse(ctx context.Context, key string) (*cache.Entry, error) {
	var e cache.Entry
	err := s.pool.QueryRow(ctx,
		`SELECT cache_key, model, content, tokens_used, created_at FROM response_cache
		 WHERE cache_key = $1 AND expires_at > now()`,
		key,
	).Scan(&e.Key, &e.Model, &e.Content, &e.TokensUsed, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached response")
	}
	return &e, nil
}

func (s *PostgresStore) PutCachedResponse(ctx context.Context, entry *cache.Entry, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO response_cache (id, cache_key, model, content, tokens_used, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (cache_key) DO UPDATE SET model = $3, content = $4, tokens_used = $5, created_at = $6, expires_at = $7`,
		id, entry.Key, entry.Model, entry.Content, entry.TokensUsed, createdAt, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: put cached response")
}

func (s *PostgresStore) DeleteExpiredResponses(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM response_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired responses")
	}
	return int(tag.RowsAffected()), nil
}

// Dead letter queue

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, business_id, url, stage, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $5, error_type = $6, retry_count = $7,
		   next_retry_at = $9, last_failed_at = $11`,
		entry.ID, entry.BusinessID, entry.URL, entry.Stage, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, business_id, url, stage, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.DueOnly {
		query += ` AND next_retry_at <= now()`
	}
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.URL, &e.Stage, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

// helpers

func applyBusinessDefaults(b *model.Business) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Tier == "" {
		b.Tier = model.TierFree
	}
	if b.Status == "" {
		b.Status = model.BusinessStatusPending
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = now
	}
}

func scanBusinessRow(row pgx.Row) (*model.Business, error) {
	var b model.Business
	err := row.Scan(&b.ID, &b.Name, &b.URL, &b.Category, &b.Location, &b.Tier, &b.Status,
		&b.AutomationEnabled, &b.NextCrawlAt, &b.LastCrawledAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
