package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadqual/internal/db"
	"github.com/sells-group/leadqual/internal/model"
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
// faster execution of the most frequently used store operations. These
// are the per-lead hot path inside a worker batch.
var preparedStatements = map[string]string{
	"get_lead":            `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`,
	"set_lead_status":     `UPDATE leads SET pipeline_status = $1, updated_at = $2 WHERE id = $3`,
	"save_scoring_output": `UPDATE leads SET pipeline_status = $1, facts_ref = $2, business_quality_score = $3, exit_readiness_score = $4, ownership_type = $5, is_excluded = $6, exclusion_reason = $7, scored_at = $8, score_error = '', updated_at = $8 WHERE id = $9`,
	"fail_lead":           `UPDATE leads SET pipeline_status = $1, score_error = $2, updated_at = $3 WHERE id = $4`,
	"add_run_counters":    `UPDATE run_stats SET leads_processed = leads_processed + $1, leads_scored = leads_scored + $2, leads_failed = leads_failed + $3, leads_skipped = leads_skipped + $4 WHERE job_id = $5`,
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

// Pool returns the underlying database pool for use by subsystems that
// need direct query access (e.g., bulk lead import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const leadColumns = `id, name, website, city, state, business_type, email, phone, review_count, rating, pipeline_status, scrape_ref, facts_ref, business_quality_score, exit_readiness_score, ownership_type, is_excluded, exclusion_reason, rank, scored_at, score_error, created_at, updated_at`

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name                   TEXT NOT NULL DEFAULT '',
	website                TEXT NOT NULL DEFAULT '',
	city                   TEXT NOT NULL DEFAULT '',
	state                  TEXT NOT NULL DEFAULT '',
	business_type          TEXT NOT NULL DEFAULT '',
	email                  TEXT NOT NULL DEFAULT '',
	phone                  TEXT NOT NULL DEFAULT '',
	review_count           INTEGER NOT NULL DEFAULT 0,
	rating                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	pipeline_status        TEXT NOT NULL DEFAULT 'idle',
	scrape_ref             TEXT NOT NULL DEFAULT '',
	facts_ref              TEXT NOT NULL DEFAULT '',
	business_quality_score DOUBLE PRECISION,
	exit_readiness_score   DOUBLE PRECISION,
	ownership_type         TEXT NOT NULL DEFAULT '',
	is_excluded            BOOLEAN NOT NULL DEFAULT false,
	exclusion_reason       TEXT NOT NULL DEFAULT '',
	rank                   INTEGER NOT NULL DEFAULT 0,
	scored_at              TIMESTAMPTZ,
	score_error            TEXT NOT NULL DEFAULT '',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_website ON leads(website) WHERE website <> '';
CREATE INDEX IF NOT EXISTS idx_leads_pipeline_status ON leads(pipeline_status);
CREATE INDEX IF NOT EXISTS idx_leads_business_type ON leads(business_type);
CREATE INDEX IF NOT EXISTS idx_leads_scored_at ON leads(scored_at);
CREATE INDEX IF NOT EXISTS idx_leads_status_updated ON leads(pipeline_status, updated_at);

CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	type          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ,
	execution_arn TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	metadata      JSONB
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_started_at ON tasks(started_at);

CREATE TABLE IF NOT EXISTS run_stats (
	job_id          TEXT PRIMARY KEY,
	total_items     INTEGER NOT NULL DEFAULT 0,
	total_batches   INTEGER NOT NULL DEFAULT 0,
	leads_processed INTEGER NOT NULL DEFAULT 0,
	leads_scored    INTEGER NOT NULL DEFAULT 0,
	leads_failed    INTEGER NOT NULL DEFAULT 0,
	leads_skipped   INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'planned',
	completed_at    TIMESTAMPTZ
);
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

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*model.Lead, error) {
	var l model.Lead
	err := row.Scan(
		&l.ID, &l.Name, &l.Website, &l.City, &l.State, &l.BusinessType,
		&l.Email, &l.Phone, &l.ReviewCount, &l.Rating, &l.Status,
		&l.ScrapeRef, &l.FactsRef,
		&l.BusinessQualityScore, &l.ExitReadinessScore,
		&l.OwnershipType, &l.IsExcluded, &l.ExclusionReason,
		&l.Rank, &l.ScoredAt, &l.ScoreError,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// InsertLead upserts one lead by ID, refreshing descriptive fields on
// conflict but never touching pipeline or scoring state.
func (s *PostgresStore) InsertLead(ctx context.Context, l *model.Lead) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = model.StatusIdle
	}
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, name, website, city, state, business_type, email, phone, review_count, rating, pipeline_status, scrape_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, website = EXCLUDED.website,
			city = EXCLUDED.city, state = EXCLUDED.state,
			business_type = EXCLUDED.business_type,
			email = EXCLUDED.email, phone = EXCLUDED.phone,
			review_count = EXCLUDED.review_count, rating = EXCLUDED.rating,
			scrape_ref = EXCLUDED.scrape_ref, updated_at = EXCLUDED.updated_at`,
		l.ID, l.Name, l.Website, l.City, l.State, l.BusinessType,
		l.Email, l.Phone, l.ReviewCount, l.Rating, string(l.Status),
		l.ScrapeRef, now,
	)
	return eris.Wrapf(err, "postgres: insert lead %s", l.ID)
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: lead %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return l, nil
}

func (s *PostgresStore) ListLeadsForPlanning(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RequireWebsite {
		query += ` AND website <> ''`
	}
	if filter.Unscored {
		query += ` AND scored_at IS NULL`
	}
	if filter.BusinessType != "" {
		query += fmt.Sprintf(` AND business_type = $%d`, argIdx)
		args = append(args, filter.BusinessType)
		argIdx++
	}
	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, filter.State)
		argIdx++
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) SetLeadStatus(ctx context.Context, id string, status model.PipelineStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET pipeline_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set lead status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: lead %s", id)
	}
	return nil
}

// SaveScoringOutput persists Pass 2 output and releases the lead back to
// idle in a single statement. A previous failure's score_error is cleared.
func (s *PostgresStore) SaveScoringOutput(ctx context.Context, id string, res *model.ScoringResult, factsRef string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET pipeline_status = $1, facts_ref = $2, business_quality_score = $3, exit_readiness_score = $4, ownership_type = $5, is_excluded = $6, exclusion_reason = $7, scored_at = $8, score_error = '', updated_at = $8 WHERE id = $9`,
		string(model.StatusIdle), factsRef,
		res.BusinessQualityScore, res.ExitReadinessScore,
		res.OwnershipType, res.IsExcluded, res.ExclusionReason,
		now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save scoring output %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: lead %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkLeadScoringFailed(ctx context.Context, id, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET pipeline_status = $1, score_error = $2, updated_at = $3 WHERE id = $4`,
		string(model.StatusScoringFailed), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark lead failed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: lead %s", id)
	}
	return nil
}

// UpdateLeadContact fills in extracted contact details without clobbering
// values already present when extraction found nothing.
func (s *PostgresStore) UpdateLeadContact(ctx context.Context, id, email, phone string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET email = COALESCE(NULLIF($1, ''), email), phone = COALESCE(NULLIF($2, ''), phone), updated_at = $3 WHERE id = $4`,
		email, phone, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead contact %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: lead %s", id)
	}
	return nil
}

func (s *PostgresStore) ListScoredSignals(ctx context.Context) ([]CohortSignal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_type, review_count, rating, business_quality_score
		 FROM leads
		 WHERE scored_at IS NOT NULL AND business_quality_score IS NOT NULL`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scored signals")
	}
	defer rows.Close()

	var signals []CohortSignal
	for rows.Next() {
		var sig CohortSignal
		if err := rows.Scan(&sig.LeadID, &sig.BusinessType, &sig.ReviewCount, &sig.Rating, &sig.BusinessQualityScore); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scored signal")
		}
		signals = append(signals, sig)
	}
	return signals, eris.Wrap(rows.Err(), "postgres: list scored signals iterate")
}

// RecomputeRanks rewrites the dense rank of every scored, non-excluded
// lead ordered by business quality then exit readiness. Returns the
// number of leads ranked.
func (s *PostgresStore) RecomputeRanks(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		WITH ranked AS (
			SELECT id, RANK() OVER (
				ORDER BY business_quality_score DESC, exit_readiness_score DESC, id
			) AS r
			FROM leads
			WHERE scored_at IS NOT NULL AND NOT is_excluded
		)
		UPDATE leads SET rank = ranked.r, updated_at = now()
		FROM ranked WHERE leads.id = ranked.id`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: recompute ranks")
	}
	return tag.RowsAffected(), nil
}

// ResetStuckLeads returns leads abandoned mid-pipeline to idle so the
// next planning run can pick them up again.
func (s *PostgresStore) ResetStuckLeads(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET pipeline_status = $1, updated_at = $2 WHERE pipeline_status IN ($3, $4) AND updated_at < $5`,
		string(model.StatusIdle), time.Now().UTC(),
		string(model.StatusScraping), string(model.StatusScoring), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset stuck leads")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *model.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if task.StartedAt.IsZero() {
		task.StartedAt = time.Now().UTC()
	}

	var metadataJSON []byte
	if task.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(task.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal task metadata")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, type, status, started_at, execution_arn, error_message, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		task.ID, task.Type, string(task.Status), task.StartedAt,
		task.ExecutionARN, task.ErrorMessage, metadataJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert task %s", task.ID)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	var metadataJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, type, status, started_at, completed_at, execution_arn, error_message, metadata FROM tasks WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Type, &t.Status, &t.StartedAt, &t.CompletedAt, &t.ExecutionARN, &t.ErrorMessage, &metadataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: task %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get task %s", id)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal task metadata")
		}
	}
	return &t, nil
}

// MarkTaskRunning records the launched container handle and moves the
// task from pending to running.
func (s *PostgresStore) MarkTaskRunning(ctx context.Context, id, handle string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1, execution_arn = $2 WHERE id = $3`,
		string(model.TaskStatusRunning), handle, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark task running %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: task %s", id)
	}
	return nil
}

// FinishTask transitions a task to a terminal status exactly once. A
// second finish attempt affects zero rows and reports ErrNotFound.
func (s *PostgresStore) FinishTask(ctx context.Context, id string, status model.TaskStatus, errMsg string, metadata map[string]int) error {
	if !status.Terminal() {
		return eris.Errorf("postgres: finish task %s: non-terminal status %q", id, status)
	}

	var metadataJSON []byte
	if metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal task metadata")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1, error_message = $2, metadata = COALESCE($3, metadata), completed_at = $4 WHERE id = $5 AND completed_at IS NULL`,
		string(status), errMsg, metadataJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish task %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: task %s not open", id)
	}
	return nil
}

// UpsertRun registers a planning run. Re-planning the same job resets
// the counters along with the totals, matching the manifest overwrite.
func (s *PostgresStore) UpsertRun(ctx context.Context, stats *model.RunStats) error {
	status := stats.Status
	if status == "" {
		status = "planned"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_stats (job_id, total_items, total_batches, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (job_id) DO UPDATE SET
			total_items = EXCLUDED.total_items,
			total_batches = EXCLUDED.total_batches,
			leads_processed = 0, leads_scored = 0, leads_failed = 0, leads_skipped = 0,
			status = EXCLUDED.status,
			completed_at = NULL`,
		stats.JobID, stats.TotalItems, stats.TotalBatches, status,
	)
	return eris.Wrapf(err, "postgres: upsert run %s", stats.JobID)
}

func (s *PostgresStore) GetRun(ctx context.Context, jobID string) (*model.RunStats, error) {
	var r model.RunStats
	err := s.pool.QueryRow(ctx,
		`SELECT job_id, total_items, total_batches, leads_processed, leads_scored, leads_failed, leads_skipped, status, completed_at FROM run_stats WHERE job_id = $1`,
		jobID,
	).Scan(&r.JobID, &r.TotalItems, &r.TotalBatches, &r.LeadsProcessed, &r.LeadsScored, &r.LeadsFailed, &r.LeadsSkipped, &r.Status, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", jobID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", jobID)
	}
	return &r, nil
}

func (s *PostgresStore) AddRunCounters(ctx context.Context, jobID string, processed, scored, failed, skipped int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE run_stats SET leads_processed = leads_processed + $1, leads_scored = leads_scored + $2, leads_failed = leads_failed + $3, leads_skipped = leads_skipped + $4 WHERE job_id = $5`,
		processed, scored, failed, skipped, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: add run counters %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", jobID)
	}
	return nil
}

func (s *PostgresStore) MarkRunCompleted(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE run_stats SET status = 'completed', completed_at = $1 WHERE job_id = $2`,
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark run completed %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", jobID)
	}
	return nil
}
