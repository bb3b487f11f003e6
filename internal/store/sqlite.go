package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/beacon-intel/aiviz-cli/internal/cache"
	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the
// default backend for single-machine use; postgres is the choice for
// anything shared.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// The driver serializes writes anyway; a single connection avoids
	// SQLITE_BUSY churn under concurrent stages.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	url                TEXT NOT NULL UNIQUE,
	category           TEXT NOT NULL DEFAULT '',
	location           TEXT NOT NULL DEFAULT '',
	tier               TEXT NOT NULL DEFAULT 'free',
	status             TEXT NOT NULL DEFAULT 'pending',
	automation_enabled INTEGER NOT NULL DEFAULT 0,
	next_crawl_at      DATETIME,
	last_crawled_at    DATETIME,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_businesses_status ON businesses(status);
CREATE INDEX IF NOT EXISTS idx_businesses_due ON businesses(automation_enabled, next_crawl_at);

CREATE TABLE IF NOT EXISTS fingerprints (
	id               TEXT PRIMARY KEY,
	business_id      TEXT NOT NULL,
	business_name    TEXT NOT NULL,
	visibility_score REAL NOT NULL DEFAULT 0,
	total_tokens     INTEGER NOT NULL DEFAULT 0,
	estimated_cost   REAL NOT NULL DEFAULT 0,
	data             TEXT NOT NULL,
	generated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_business ON fingerprints(business_id, generated_at DESC);
CREATE INDEX IF NOT EXISTS idx_fingerprints_generated_at ON fingerprints(generated_at);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	business_id  TEXT NOT NULL DEFAULT '',
	triggered_by TEXT NOT NULL DEFAULT 'manual',
	status       TEXT NOT NULL DEFAULT 'queued',
	result       TEXT,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_url ON runs(url);
CREATE INDEX IF NOT EXISTS idx_runs_business_id ON runs(business_id);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);

CREATE TABLE IF NOT EXISTS crawl_jobs (
	id           TEXT PRIMARY KEY,
	business_id  TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_crawl_jobs_business_id ON crawl_jobs(business_id);

CREATE TABLE IF NOT EXISTS crawl_cache (
	id           TEXT PRIMARY KEY,
	business_url TEXT NOT NULL UNIQUE,
	data         TEXT NOT NULL,
	crawled_at   DATETIME NOT NULL,
	expires_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crawl_cache_expires_at ON crawl_cache(expires_at);

CREATE TABLE IF NOT EXISTS response_cache (
	id          TEXT PRIMARY KEY,
	cache_key   TEXT NOT NULL UNIQUE,
	model       TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	tokens_used INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	expires_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	business_id    TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL,
	stage          TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Businesses

func (s *SQLiteStore) CreateBusiness(ctx context.Context, b model.Business) (*model.Business, error) {
	applyBusinessDefaults(&b)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO businesses (id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.URL, b.Category, b.Location, string(b.Tier), string(b.Status),
		b.AutomationEnabled, timePtr(b.NextCrawlAt), timePtr(b.LastCrawledAt), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert business")
	}
	return &b, nil
}

func (s *SQLiteStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at FROM businesses WHERE id = ?`,
		id,
	)
	b, err := scanBusiness(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get business %s", id)
	}
	return b, nil
}

func (s *SQLiteStore) GetBusinessByURL(ctx context.Context, url string) (*model.Business, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at FROM businesses WHERE url = ?`,
		url,
	)
	b, err := scanBusiness(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get business by url")
	}
	return b, nil
}

func (s *SQLiteStore) UpdateBusiness(ctx context.Context, id string, patch BusinessPatch) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
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

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update business %s", id)
	}
	return checkRowsAffected(res, "business", id)
}

func (s *SQLiteStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at FROM businesses WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, string(filter.Tier))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan business")
		}
		businesses = append(businesses, *b)
	}
	return businesses, eris.Wrap(rows.Err(), "sqlite: list businesses iterate")
}

func (s *SQLiteStore) ListDueBusinesses(ctx context.Context, cutoff time.Time, limit int) ([]model.Business, error) {
	if limit <= 0 {
		limit = 100
	}
	// NULL next_crawl_at means never scheduled yet; those sort first.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at FROM businesses
		 WHERE automation_enabled AND (next_crawl_at IS NULL OR next_crawl_at <= ?)
		 ORDER BY next_crawl_at ASC LIMIT ?`,
		cutoff, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list due businesses")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan due business")
		}
		businesses = append(businesses, *b)
	}
	return businesses, eris.Wrap(rows.Err(), "sqlite: list due businesses iterate")
}

// UpsertBusinesses bulk-loads businesses keyed by URL. Existing rows keep
// their status and crawl schedule; identity fields are refreshed.
func (s *SQLiteStore) UpsertBusinesses(ctx context.Context, businesses []model.Business) (int64, error) {
	if len(businesses) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO businesses (id, name, url, category, location, tier, status, automation_enabled, next_crawl_at, last_crawled_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		   name = excluded.name, category = excluded.category, location = excluded.location,
		   tier = excluded.tier, automation_enabled = excluded.automation_enabled, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var count int64
	for i := range businesses {
		b := businesses[i]
		applyBusinessDefaults(&b)
		if _, err := stmt.ExecContext(ctx,
			b.ID, b.Name, b.URL, b.Category, b.Location, string(b.Tier), string(b.Status),
			b.AutomationEnabled, timePtr(b.NextCrawlAt), timePtr(b.LastCrawledAt), now, now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert business %s", b.URL)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return count, nil
}

// Fingerprints

func (s *SQLiteStore) CreateFingerprint(ctx context.Context, fp *model.FingerprintAnalysis) (*model.FingerprintAnalysis, error) {
	stored := *fp
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.GeneratedAt.IsZero() {
		stored.GeneratedAt = time.Now().UTC()
	}

	dataJSON, err := json.Marshal(&stored)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal fingerprint")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (id, business_id, business_name, visibility_score, total_tokens, estimated_cost, data, generated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.BusinessID, stored.BusinessName, stored.VisibilityScore,
		stored.TotalTokens, stored.EstimatedCost, string(dataJSON), stored.GeneratedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert fingerprint")
	}
	return &stored, nil
}

func (s *SQLiteStore) GetLatestFingerprint(ctx context.Context, businessID string) (*model.FingerprintAnalysis, error) {
	var dataJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM fingerprints WHERE business_id = ? ORDER BY generated_at DESC LIMIT 1`,
		businessID,
	).Scan(&dataJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get latest fingerprint")
	}

	var fp model.FingerprintAnalysis
	if err := json.Unmarshal([]byte(dataJSON), &fp); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fingerprint")
	}
	return &fp, nil
}

func (s *SQLiteStore) ListFingerprints(ctx context.Context, businessID string, limit int) ([]model.FingerprintAnalysis, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM fingerprints WHERE business_id = ? ORDER BY generated_at DESC LIMIT ?`,
		businessID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fingerprints")
	}
	defer rows.Close()

	var fps []model.FingerprintAnalysis
	for rows.Next() {
		var dataJSON string
		if err := rows.Scan(&dataJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fingerprint")
		}
		var fp model.FingerprintAnalysis
		if err := json.Unmarshal([]byte(dataJSON), &fp); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal fingerprint")
		}
		fps = append(fps, fp)
	}
	return fps, eris.Wrap(rows.Err(), "sqlite: list fingerprints iterate")
}

func (s *SQLiteStore) FingerprintStats(ctx context.Context, since time.Time) (*FingerprintStats, error) {
	var stats FingerprintStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(visibility_score), 0), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(estimated_cost), 0)
		 FROM fingerprints WHERE generated_at >= ?`,
		since,
	).Scan(&stats.Count, &stats.AvgVisibility, &stats.TotalTokens, &stats.TotalCost)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fingerprint stats")
	}
	return &stats, nil
}

// Runs

func (s *SQLiteStore) CreateRun(ctx context.Context, url, businessID, trigger string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if trigger == "" {
		trigger = "manual"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, url, business_id, triggered_by, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, url, businessID, trigger, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.CFPResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(statusForResult(result)), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, business_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, url, business_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.URL != "" {
		query += ` AND url = ?`
		args = append(args, filter.URL)
	}
	if filter.BusinessID != "" {
		query += ` AND business_id = ?`
		args = append(args, filter.BusinessID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CountRunsByStatus(ctx context.Context, since time.Time) (map[model.RunStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM runs WHERE created_at >= ? GROUP BY status`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count runs by status")
	}
	defer rows.Close()

	counts := make(map[model.RunStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run count")
		}
		counts[model.RunStatus(status)] = count
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count runs iterate")
}

// Stages

func (s *SQLiteStore) CreateStage(ctx context.Context, runID string, name model.Stage) (*model.RunStage, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, string(name), string(model.StageStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert stage for run %s", runID)
	}

	return &model.RunStage{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_stages SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), stageID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete stage %s", stageID)
	}
	return checkRowsAffected(res, "stage", stageID)
}

// Crawl jobs

func (s *SQLiteStore) CreateCrawlJob(ctx context.Context, businessID, url string) (*model.CrawlJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crawl_jobs (id, business_id, url, status, error, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, businessID, url, string(model.CrawlJobStatusRunning), "", now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert crawl job")
	}

	return &model.CrawlJob{
		ID:         id,
		BusinessID: businessID,
		URL:        url,
		Status:     model.CrawlJobStatusRunning,
		StartedAt:  now,
	}, nil
}

func (s *SQLiteStore) UpdateCrawlJob(ctx context.Context, id string, status model.CrawlJobStatus, errMsg string) error {
	var completedAt *time.Time
	if status == model.CrawlJobStatusComplete || status == model.CrawlJobStatusFailed {
		now := time.Now().UTC()
		completedAt = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE crawl_jobs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), errMsg, timePtr(completedAt), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update crawl job %s", id)
	}
	return checkRowsAffected(res, "crawl job", id)
}

// Crawl cache

func (s *SQLiteStore) GetCachedCrawl(ctx context.Context, businessURL string) (*model.CrawlCache, error) {
	var cc model.CrawlCache
	var dataJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, business_url, data, crawled_at, expires_at FROM crawl_cache
		 WHERE business_url = ? AND expires_at > ?
		 ORDER BY crawled_at DESC LIMIT 1`,
		businessURL, time.Now().UTC(),
	).Scan(&cc.ID, &cc.BusinessURL, &dataJSON, &cc.CrawledAt, &cc.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get cached crawl")
	}
	if err := json.Unmarshal([]byte(dataJSON), &cc.Data); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached crawl")
	}
	return &cc, nil
}

func (s *SQLiteStore) SetCachedCrawl(ctx context.Context, businessURL string, data *model.CrawlData, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal crawl data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crawl_cache (id, business_url, data, crawled_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(business_url) DO UPDATE SET data = excluded.data, crawled_at = excluded.crawled_at, expires_at = excluded.expires_at`,
		id, businessURL, string(dataJSON), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached crawl")
}

func (s *SQLiteStore) DeleteExpiredCrawls(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM crawl_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired crawls")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// Response cache

func (s *SQLiteStore) GetCachedResponse(ctx context.Context, key string) (*cache.Entry, error) {
	var e cache.Entry
	err := s.db.QueryRowContext(ctx,
		`SELECT cache_key, model, content, tokens_used, created_at FROM response_cache
		 WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&e.Key, &e.Model, &e.Content, &e.TokensUsed, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get cached response")
	}
	return &e, nil
}

func (s *SQLiteStore) PutCachedResponse(ctx context.Context, entry *cache.Entry, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (id, cache_key, model, content, tokens_used, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   model = excluded.model, content = excluded.content, tokens_used = excluded.tokens_used,
		   created_at = excluded.created_at, expires_at = excluded.expires_at`,
		id, entry.Key, entry.Model, entry.Content, entry.TokensUsed, createdAt, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: put cached response")
}

func (s *SQLiteStore) DeleteExpiredResponses(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired responses")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// Dead letter queue

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, business_id, url, stage, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.BusinessID, entry.URL, entry.Stage, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, business_id, url, stage, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE retry_count < max_retries`
	var args []any

	if filter.DueOnly {
		query += ` AND next_retry_at <= ?`
		args = append(args, time.Now().UTC())
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.URL, &e.Stage, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt, lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq entry", id)
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

// timePtr converts a *time.Time to a driver-friendly nullable value.
func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBusiness(row scannable) (*model.Business, error) {
	var b model.Business
	var nextCrawl, lastCrawled sql.NullTime

	err := row.Scan(&b.ID, &b.Name, &b.URL, &b.Category, &b.Location, &b.Tier, &b.Status,
		&b.AutomationEnabled, &nextCrawl, &lastCrawled, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if nextCrawl.Valid {
		b.NextCrawlAt = &nextCrawl.Time
	}
	if lastCrawled.Valid {
		b.LastCrawledAt = &lastCrawled.Time
	}
	return &b, nil
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &r.URL, &r.BusinessID, &r.Trigger, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if resultJSON.Valid {
		r.Result = &model.CFPResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal result")
		}
	}
	return &r, nil
}
