package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadqual/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for
// local development and tests; production deployments use Postgres.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL DEFAULT '',
	website                TEXT NOT NULL DEFAULT '',
	city                   TEXT NOT NULL DEFAULT '',
	state                  TEXT NOT NULL DEFAULT '',
	business_type          TEXT NOT NULL DEFAULT '',
	email                  TEXT NOT NULL DEFAULT '',
	phone                  TEXT NOT NULL DEFAULT '',
	review_count           INTEGER NOT NULL DEFAULT 0,
	rating                 REAL NOT NULL DEFAULT 0,
	pipeline_status        TEXT NOT NULL DEFAULT 'idle',
	scrape_ref             TEXT NOT NULL DEFAULT '',
	facts_ref              TEXT NOT NULL DEFAULT '',
	business_quality_score REAL,
	exit_readiness_score   REAL,
	ownership_type         TEXT NOT NULL DEFAULT '',
	is_excluded            INTEGER NOT NULL DEFAULT 0,
	exclusion_reason       TEXT NOT NULL DEFAULT '',
	rank                   INTEGER NOT NULL DEFAULT 0,
	scored_at              DATETIME,
	score_error            TEXT NOT NULL DEFAULT '',
	created_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_pipeline_status ON leads(pipeline_status);
CREATE INDEX IF NOT EXISTS idx_leads_business_type ON leads(business_type);
CREATE INDEX IF NOT EXISTS idx_leads_scored_at ON leads(scored_at);

CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	started_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at  DATETIME,
	execution_arn TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	metadata      TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS run_stats (
	job_id          TEXT PRIMARY KEY,
	total_items     INTEGER NOT NULL DEFAULT 0,
	total_batches   INTEGER NOT NULL DEFAULT 0,
	leads_processed INTEGER NOT NULL DEFAULT 0,
	leads_scored    INTEGER NOT NULL DEFAULT 0,
	leads_failed    INTEGER NOT NULL DEFAULT 0,
	leads_skipped   INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'planned',
	completed_at    DATETIME
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertLead seeds a lead row. SQLite has no COPY path, so bulk import
// falls back to row-at-a-time inserts.
func (s *SQLiteStore) InsertLead(ctx context.Context, l *model.Lead) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if l.Status == "" {
		l.Status = model.StatusIdle
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, name, website, city, state, business_type, email, phone, review_count, rating, pipeline_status, scrape_ref, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, website = excluded.website,
			city = excluded.city, state = excluded.state,
			business_type = excluded.business_type,
			email = excluded.email, phone = excluded.phone,
			review_count = excluded.review_count, rating = excluded.rating,
			scrape_ref = excluded.scrape_ref, updated_at = excluded.updated_at`,
		l.ID, l.Name, l.Website, l.City, l.State, l.BusinessType,
		l.Email, l.Phone, l.ReviewCount, l.Rating, string(l.Status),
		l.ScrapeRef, now, now,
	)
	return eris.Wrapf(err, "sqlite: insert lead %s", l.ID)
}

func scanLeadSQL(row interface{ Scan(dest ...any) error }) (*model.Lead, error) {
	var l model.Lead
	var status string
	err := row.Scan(
		&l.ID, &l.Name, &l.Website, &l.City, &l.State, &l.BusinessType,
		&l.Email, &l.Phone, &l.ReviewCount, &l.Rating, &status,
		&l.ScrapeRef, &l.FactsRef,
		&l.BusinessQualityScore, &l.ExitReadinessScore,
		&l.OwnershipType, &l.IsExcluded, &l.ExclusionReason,
		&l.Rank, &l.ScoredAt, &l.ScoreError,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Status = model.PipelineStatus(status)
	return &l, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	l, err := scanLeadSQL(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: lead %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return l, nil
}

func (s *SQLiteStore) ListLeadsForPlanning(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE true`
	args := []any{}

	if filter.RequireWebsite {
		query += ` AND website <> ''`
	}
	if filter.Unscored {
		query += ` AND scored_at IS NULL`
	}
	if filter.BusinessType != "" {
		query += ` AND business_type = ?`
		args = append(args, filter.BusinessType)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLeadSQL(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) SetLeadStatus(ctx context.Context, id string, status model.PipelineStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET pipeline_status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set lead status %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) SaveScoringOutput(ctx context.Context, id string, r *model.ScoringResult, factsRef string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET pipeline_status = ?, facts_ref = ?, business_quality_score = ?, exit_readiness_score = ?, ownership_type = ?, is_excluded = ?, exclusion_reason = ?, scored_at = ?, score_error = '', updated_at = ? WHERE id = ?`,
		string(model.StatusIdle), factsRef,
		r.BusinessQualityScore, r.ExitReadinessScore,
		r.OwnershipType, r.IsExcluded, r.ExclusionReason,
		now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save scoring output %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) MarkLeadScoringFailed(ctx context.Context, id, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET pipeline_status = ?, score_error = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusScoringFailed), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark lead failed %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) UpdateLeadContact(ctx context.Context, id, email, phone string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET email = COALESCE(NULLIF(?, ''), email), phone = COALESCE(NULLIF(?, ''), phone), updated_at = ? WHERE id = ?`,
		email, phone, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead contact %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) ListScoredSignals(ctx context.Context) ([]CohortSignal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, business_type, review_count, rating, business_quality_score
		 FROM leads
		 WHERE scored_at IS NOT NULL AND business_quality_score IS NOT NULL`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scored signals")
	}
	defer rows.Close()

	var signals []CohortSignal
	for rows.Next() {
		var sig CohortSignal
		if err := rows.Scan(&sig.LeadID, &sig.BusinessType, &sig.ReviewCount, &sig.Rating, &sig.BusinessQualityScore); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scored signal")
		}
		signals = append(signals, sig)
	}
	return signals, eris.Wrap(rows.Err(), "sqlite: list scored signals iterate")
}

func (s *SQLiteStore) RecomputeRanks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		WITH ranked AS (
			SELECT id, RANK() OVER (
				ORDER BY business_quality_score DESC, exit_readiness_score DESC, id
			) AS r
			FROM leads
			WHERE scored_at IS NOT NULL AND NOT is_excluded
		)
		UPDATE leads SET rank = (SELECT r FROM ranked WHERE ranked.id = leads.id), updated_at = ?
		WHERE id IN (SELECT id FROM ranked)`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: recompute ranks")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: recompute ranks rows")
}

func (s *SQLiteStore) ResetStuckLeads(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET pipeline_status = ?, updated_at = ? WHERE pipeline_status IN (?, ?) AND updated_at < ?`,
		string(model.StatusIdle), time.Now().UTC(),
		string(model.StatusScraping), string(model.StatusScoring), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset stuck leads")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: reset stuck leads rows")
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task *model.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if task.StartedAt.IsZero() {
		task.StartedAt = time.Now().UTC()
	}

	var metadataJSON any
	if task.Metadata != nil {
		b, err := json.Marshal(task.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal task metadata")
		}
		metadataJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, type, status, started_at, execution_arn, error_message, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Type, string(task.Status), task.StartedAt,
		task.ExecutionARN, task.ErrorMessage, metadataJSON,
	)
	return eris.Wrapf(err, "sqlite: insert task %s", task.ID)
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	var status string
	var metadataJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, status, started_at, completed_at, execution_arn, error_message, metadata FROM tasks WHERE id = ?`,
		id,
	).Scan(&t.ID, &t.Type, &status, &t.StartedAt, &t.CompletedAt, &t.ExecutionARN, &t.ErrorMessage, &metadataJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: task %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get task %s", id)
	}
	t.Status = model.TaskStatus(status)

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &t.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal task metadata")
		}
	}
	return &t, nil
}

func (s *SQLiteStore) MarkTaskRunning(ctx context.Context, id, handle string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, execution_arn = ? WHERE id = ?`,
		string(model.TaskStatusRunning), handle, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark task running %s", id)
	}
	return checkRowsAffected(res, "task", id)
}

func (s *SQLiteStore) FinishTask(ctx context.Context, id string, status model.TaskStatus, errMsg string, metadata map[string]int) error {
	if !status.Terminal() {
		return eris.Errorf("sqlite: finish task %s: non-terminal status %q", id, status)
	}

	var metadataJSON any
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal task metadata")
		}
		metadataJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error_message = ?, metadata = COALESCE(?, metadata), completed_at = ? WHERE id = ? AND completed_at IS NULL`,
		string(status), errMsg, metadataJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish task %s", id)
	}
	return checkRowsAffected(res, "task", id)
}

func (s *SQLiteStore) UpsertRun(ctx context.Context, stats *model.RunStats) error {
	status := stats.Status
	if status == "" {
		status = "planned"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stats (job_id, total_items, total_batches, status)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (job_id) DO UPDATE SET
			total_items = excluded.total_items,
			total_batches = excluded.total_batches,
			leads_processed = 0, leads_scored = 0, leads_failed = 0, leads_skipped = 0,
			status = excluded.status,
			completed_at = NULL`,
		stats.JobID, stats.TotalItems, stats.TotalBatches, status,
	)
	return eris.Wrapf(err, "sqlite: upsert run %s", stats.JobID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, jobID string) (*model.RunStats, error) {
	var r model.RunStats
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, total_items, total_batches, leads_processed, leads_scored, leads_failed, leads_skipped, status, completed_at FROM run_stats WHERE job_id = ?`,
		jobID,
	).Scan(&r.JobID, &r.TotalItems, &r.TotalBatches, &r.LeadsProcessed, &r.LeadsScored, &r.LeadsFailed, &r.LeadsSkipped, &r.Status, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", jobID)
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", jobID)
	}
	return &r, nil
}

func (s *SQLiteStore) AddRunCounters(ctx context.Context, jobID string, processed, scored, failed, skipped int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_stats SET leads_processed = leads_processed + ?, leads_scored = leads_scored + ?, leads_failed = leads_failed + ?, leads_skipped = leads_skipped + ? WHERE job_id = ?`,
		processed, scored, failed, skipped, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: add run counters %s", jobID)
	}
	return checkRowsAffected(res, "run", jobID)
}

func (s *SQLiteStore) MarkRunCompleted(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_stats SET status = 'completed', completed_at = ? WHERE job_id = ?`,
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark run completed %s", jobID)
	}
	return checkRowsAffected(res, "run", jobID)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", kind, id)
	}
	return nil
}
