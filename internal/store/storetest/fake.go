// Package storetest provides an in-memory Store for tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/store"
)

// Fake is an in-memory store.Store. It mirrors the real backends'
// semantics closely enough for pipeline-level tests: exactly-once task
// finish, additive run counters, re-plan counter reset.
type Fake struct {
	mu    sync.Mutex
	Leads map[string]*model.Lead
	Tasks map[string]*model.Task
	Runs  map[string]*model.RunStats

	// Err, when set, is returned by every operation.
	Err error
}

func New() *Fake {
	return &Fake{
		Leads: make(map[string]*model.Lead),
		Tasks: make(map[string]*model.Task),
		Runs:  make(map[string]*model.RunStats),
	}
}

var _ store.Store = (*Fake)(nil)

func (f *Fake) InsertLead(_ context.Context, lead *model.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = model.StatusIdle
	}
	cp := *lead
	f.Leads[lead.ID] = &cp
	return nil
}

func (f *Fake) GetLead(_ context.Context, id string) (*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	lead, ok := f.Leads[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "lead %s", id)
	}
	cp := *lead
	return &cp, nil
}

func (f *Fake) ListLeadsForPlanning(_ context.Context, filter store.LeadFilter) ([]model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []model.Lead
	for _, lead := range f.Leads {
		if filter.BusinessType != "" && lead.BusinessType != filter.BusinessType {
			continue
		}
		if filter.State != "" && lead.State != filter.State {
			continue
		}
		if filter.RequireWebsite && lead.Website == "" {
			continue
		}
		if filter.Unscored && lead.Scored() {
			continue
		}
		out = append(out, *lead)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *Fake) SetLeadStatus(_ context.Context, id string, status model.PipelineStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	lead, ok := f.Leads[id]
	if !ok {
		return eris.Wrapf(store.ErrNotFound, "lead %s", id)
	}
	lead.Status = status
	lead.UpdatedAt = time.Now()
	return nil
}

func (f *Fake) SaveScoringOutput(_ context.Context, id string, res *model.ScoringResult, factsRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	lead, ok := f.Leads[id]
	if !ok {
		return eris.Wrapf(store.ErrNotFound, "lead %s", id)
	}
	bq, er := res.BusinessQualityScore, res.ExitReadinessScore
	now := time.Now()
	lead.BusinessQualityScore = &bq
	lead.ExitReadinessScore = &er
	lead.OwnershipType = res.OwnershipType
	lead.IsExcluded = res.IsExcluded
	lead.ExclusionReason = res.ExclusionReason
	lead.FactsRef = factsRef
	lead.ScoredAt = &now
	lead.ScoreError = ""
	lead.Status = model.StatusIdle
	lead.UpdatedAt = now
	return nil
}

func (f *Fake) MarkLeadScoringFailed(_ context.Context, id, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	lead, ok := f.Leads[id]
	if !ok {
		return eris.Wrapf(store.ErrNotFound, "lead %s", id)
	}
	lead.Status = model.StatusScoringFailed
	lead.ScoreError = errMsg
	lead.UpdatedAt = time.Now()
	return nil
}

func (f *Fake) UpdateLeadContact(_ context.Context, id, email, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	lead, ok := f.Leads[id]
	if !ok {
		return eris.Wrapf(store.ErrNotFound, "lead %s", id)
	}
	if email != "" {
		lead.Email = email
	}
	if phone != "" {
		lead.Phone = phone
	}
	return nil
}

func (f *Fake) ListScoredSignals(_ context.Context) ([]store.CohortSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []store.CohortSignal
	for _, lead := range f.Leads {
		if !lead.Scored() {
			continue
		}
		out = append(out, store.CohortSignal{
			LeadID:               lead.ID,
			BusinessType:         lead.BusinessType,
			ReviewCount:          lead.ReviewCount,
			Rating:               lead.Rating,
			BusinessQualityScore: *lead.BusinessQualityScore,
		})
	}
	return out, nil
}

func (f *Fake) RecomputeRanks(context.Context) (int64, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return 0, nil
}

func (f *Fake) ResetStuckLeads(_ context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, lead := range f.Leads {
		busy := lead.Status == model.StatusScraping || lead.Status == model.StatusScoring
		if busy && lead.UpdatedAt.Before(cutoff) {
			lead.Status = model.StatusIdle
			n++
		}
	}
	return n, nil
}

func (f *Fake) CreateTask(_ context.Context, task *model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if task.StartedAt.IsZero() {
		task.StartedAt = time.Now()
	}
	cp := *task
	f.Tasks[task.ID] = &cp
	return nil
}

func (f *Fake) GetTask(_ context.Context, id string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	task, ok := f.Tasks[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "task %s", id)
	}
	cp := *task
	return &cp, nil
}

func (f *Fake) MarkTaskRunning(_ context.Context, id, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	task, ok := f.Tasks[id]
	if !ok {
		return eris.Wrapf(store.ErrNotFound, "task %s", id)
	}
	task.Status = model.TaskStatusRunning
	task.ExecutionARN = handle
	return nil
}

func (f *Fake) FinishTask(_ context.Context, id string, status model.TaskStatus, errMsg string, metadata map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if !status.Terminal() {
		return eris.Errorf("finish task %s: status %q is not terminal", id, status)
	}
	task, ok := f.Tasks[id]
	if !ok || task.CompletedAt != nil {
		return eris.Wrapf(store.ErrNotFound, "task %s", id)
	}
	now := time.Now()
	task.Status = status
	task.ErrorMessage = errMsg
	task.Metadata = metadata
	task.CompletedAt = &now
	return nil
}

func (f *Fake) UpsertRun(_ context.Context, stats *model.RunStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	cp := *stats
	cp.LeadsProcessed = 0
	cp.LeadsScored = 0
	cp.LeadsFailed = 0
	cp.LeadsSkipped = 0
	cp.CompletedAt = nil
	f.Runs[stats.JobID] = &cp
	return nil
}

func (f *Fake) GetRun(_ context.Context, jobID string) (*model.RunStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	run, ok := f.Runs[jobID]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "run %s", jobID)
	}
	cp := *run
	return &cp, nil
}

func (f *Fake) AddRunCounters(_ context.Context, jobID string, processed, scored, failed, skipped int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	run, ok := f.Runs[jobID]
	if !ok {
		return eris.Wrapf(store.ErrNotFound, "run %s", jobID)
	}
	run.LeadsProcessed += processed
	run.LeadsScored += scored
	run.LeadsFailed += failed
	run.LeadsSkipped += skipped
	return nil
}

func (f *Fake) MarkRunCompleted(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	run, ok := f.Runs[jobID]
	if !ok {
		return eris.Wrapf(store.ErrNotFound, "run %s", jobID)
	}
	now := time.Now()
	run.Status = "completed"
	run.CompletedAt = &now
	return nil
}

func (f *Fake) Ping(context.Context) error { return f.Err }

func (f *Fake) Migrate(context.Context) error { return f.Err }

func (f *Fake) Close() error { return nil }

// AddLead stores a lead, filling an ID from the name when absent.
func (f *Fake) AddLead(lead model.Lead) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lead.ID == "" {
		lead.ID = strings.ToLower(strings.ReplaceAll(lead.Name, " ", "-"))
	}
	if lead.Status == "" {
		lead.Status = model.StatusIdle
	}
	cp := lead
	f.Leads[lead.ID] = &cp
}
