package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/fanout"
	"github.com/cuongbtq/lecturecast/internal/usage"
)

type attemptKey struct {
	jobID     string
	stage     domain.Stage
	sectionID string
}

type handoffKey struct {
	jobID string
	stage domain.Stage
}

// Memory is an in-process Store used by tests and local runs
type Memory struct {
	mu       sync.Mutex
	jobs     map[string]*domain.Job
	attempts map[attemptKey]int
	handoffs map[handoffKey]bool
	personas map[string]domain.Persona
	now      func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		jobs:     make(map[string]*domain.Job),
		attempts: make(map[attemptKey]int),
		handoffs: make(map[handoffKey]bool),
		personas: make(map[string]domain.Persona),
		now:      time.Now,
	}
}

func (m *Memory) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	stored := cloneJob(job)
	now := m.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.Ledger == nil {
		stored.Ledger = domain.Ledger{}
	}
	m.jobs[job.ID] = stored
	return nil
}

func (m *Memory) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (m *Memory) List(ctx context.Context, filter Filter) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []*domain.Job
	for _, job := range m.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil && !before(job, filter.Cursor) {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})

	if filter.PageSize > 0 && len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}

	out := make([]*domain.Job, len(jobs))
	for i, job := range jobs {
		out[i] = cloneJob(job)
	}
	return out, nil
}

// before mirrors the (created_at, job_id) < (cursor) row comparison
func before(job *domain.Job, c *Cursor) bool {
	if job.CreatedAt.Equal(c.CreatedAt) {
		return job.ID < c.JobID
	}
	return job.CreatedAt.Before(c.CreatedAt)
}

func (m *Memory) Transition(ctx context.Context, jobID string, from, to domain.JobStatus) (bool, error) {
	if !domain.CanTransition(from, to) || to == domain.JobStatusFailed {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = to
	job.UpdatedAt = m.now()
	return true, nil
}

func (m *Memory) Commit(ctx context.Context, c Commit) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[c.JobID]
	if !ok {
		return CommitResult{}, domain.ErrJobNotFound
	}

	var result CommitResult
	if _, exists := job.Output(c.Stage, c.SectionID); !exists {
		sectionIdx := -1
		if c.Stage.PerSection() {
			for i := range job.Sections {
				if job.Sections[i].ID == c.SectionID {
					sectionIdx = i
				}
			}
			if sectionIdx < 0 {
				return CommitResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownSection, c.SectionID)
			}
		}

		job.Outputs = append(job.Outputs, domain.StageOutput{
			Stage:           c.Stage,
			SectionID:       c.SectionID,
			Locations:       append([]string(nil), c.Locations...),
			Status:          domain.OutputStatusCommitted,
			DurationSeconds: c.DurationSeconds,
			CreatedAt:       m.now(),
		})
		if c.Stage == domain.StageAnalyze && len(job.Sections) == 0 {
			job.Sections = append([]domain.Section(nil), c.Sections...)
		}
		if sectionIdx >= 0 {
			job.Sections[sectionIdx].MarkDone(c.Stage)
		}
		usage.Apply(job.Ledger, c.Charges)
		job.UpdatedAt = m.now()
		result.Applied = true
	}

	result.Advanced, result.Remaining = m.advance(job, c.Stage)
	return result, nil
}

func (m *Memory) Reconcile(ctx context.Context, jobID string, stage domain.Stage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	advanced, _ := m.advance(job, stage)
	return advanced, nil
}

// advance moves the job to the stage's done status when every output is in place.
// Callers hold m.mu.
func (m *Memory) advance(job *domain.Job, stage domain.Stage) (bool, int) {
	complete, remaining := false, 0
	if stage.PerSection() {
		complete = fanout.Complete(job.Sections, stage)
		remaining = len(fanout.Pending(job.Sections, stage))
	} else {
		_, complete = job.Output(stage, "")
	}

	_, running, done := stage.Statuses()
	if !complete || job.Status != running {
		return false, remaining
	}
	job.Status = done
	job.UpdatedAt = m.now()
	return true, remaining
}

func (m *Memory) ClaimHandoff(ctx context.Context, jobID string, stage domain.Stage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[jobID]; !ok {
		return false, domain.ErrJobNotFound
	}
	key := handoffKey{jobID: jobID, stage: stage}
	if m.handoffs[key] {
		return false, nil
	}
	m.handoffs[key] = true
	return true, nil
}

func (m *Memory) ReleaseHandoff(ctx context.Context, jobID string, stage domain.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.handoffs, handoffKey{jobID: jobID, stage: stage})
	return nil
}

func (m *Memory) RecordAttempt(ctx context.Context, jobID string, stage domain.Stage, sectionID, errMsg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[jobID]; !ok {
		return 0, domain.ErrJobNotFound
	}
	key := attemptKey{jobID: jobID, stage: stage, sectionID: sectionID}
	m.attempts[key]++
	return m.attempts[key], nil
}

func (m *Memory) Fail(ctx context.Context, jobID string, failure domain.Failure) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return false, nil
	}
	if failure.At.IsZero() {
		failure.At = m.now()
	}
	job.FailedFrom = job.Status
	job.Status = domain.JobStatusFailed
	job.Failure = &failure
	job.UpdatedAt = m.now()
	return true, nil
}

func (m *Memory) ListPersonas(ctx context.Context) ([]domain.Persona, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	personas := make([]domain.Persona, 0, len(m.personas))
	for _, p := range m.personas {
		personas = append(personas, p)
	}
	sort.Slice(personas, func(i, j int) bool { return personas[i].ID < personas[j].ID })
	return personas, nil
}

func (m *Memory) GetPersona(ctx context.Context, personaID string) (domain.Persona, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.personas[personaID]
	if !ok {
		return domain.Persona{}, domain.ErrPersonaNotFound
	}
	return p, nil
}

func (m *Memory) PutPersona(ctx context.Context, persona domain.Persona) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.personas[persona.ID] = persona
	return nil
}

func (m *Memory) DeletePersona(ctx context.Context, personaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.personas[personaID]; !ok {
		return domain.ErrPersonaNotFound
	}
	delete(m.personas, personaID)
	return nil
}

func cloneJob(job *domain.Job) *domain.Job {
	c := *job
	c.Sections = append([]domain.Section(nil), job.Sections...)
	c.Outputs = make([]domain.StageOutput, len(job.Outputs))
	for i, out := range job.Outputs {
		out.Locations = append([]string(nil), out.Locations...)
		c.Outputs[i] = out
	}
	c.Ledger = make(domain.Ledger, len(job.Ledger))
	for k, v := range job.Ledger {
		c.Ledger[k] = v
	}
	if job.Failure != nil {
		f := *job.Failure
		c.Failure = &f
	}
	return &c
}

var (
	_ Store        = (*Memory)(nil)
	_ PersonaStore = (*Memory)(nil)
)
