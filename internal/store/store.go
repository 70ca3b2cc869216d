package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadqual/internal/config"
	"github.com/sells-group/leadqual/internal/model"
)

// ErrNotFound is returned when a lead, task, or run does not exist.
// Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// LeadFilter specifies criteria for selecting leads during batch planning.
type LeadFilter struct {
	BusinessType   string `json:"business_type,omitempty"`
	State          string `json:"state,omitempty"`
	RequireWebsite bool   `json:"require_website,omitempty"`
	Unscored       bool   `json:"unscored,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// CohortSignal is the slice of a scored lead the market calibrator needs:
// its cohort key plus the engagement signals percentiles are computed over.
type CohortSignal struct {
	LeadID               string
	BusinessType         string
	ReviewCount          int
	Rating               float64
	BusinessQualityScore float64
}

// Store defines the persistence interface for the qualification pipeline.
type Store interface {
	// Leads
	InsertLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ListLeadsForPlanning(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	SetLeadStatus(ctx context.Context, id string, status model.PipelineStatus) error
	SaveScoringOutput(ctx context.Context, id string, res *model.ScoringResult, factsRef string) error
	MarkLeadScoringFailed(ctx context.Context, id, errMsg string) error
	UpdateLeadContact(ctx context.Context, id, email, phone string) error
	ListScoredSignals(ctx context.Context) ([]CohortSignal, error)
	RecomputeRanks(ctx context.Context) (int64, error)
	ResetStuckLeads(ctx context.Context, olderThan time.Duration) (int64, error)

	// Tasks
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	MarkTaskRunning(ctx context.Context, id, handle string) error
	FinishTask(ctx context.Context, id string, status model.TaskStatus, errMsg string, metadata map[string]int) error

	// Runs
	UpsertRun(ctx context.Context, stats *model.RunStats) error
	GetRun(ctx context.Context, jobID string) (*model.RunStats, error)
	AddRunCounters(ctx context.Context, jobID string, processed, scored, failed, skipped int) error
	MarkRunCompleted(ctx context.Context, jobID string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// New creates a Store from configuration, selecting the backend by driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
