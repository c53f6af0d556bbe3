// Package jobstore is the durable record of every job. All pipeline
// coordination goes through it: compare-and-set status moves, write-once stage
// outputs, per-section completion flags and additive cost ledger entries.
package jobstore

import (
	"context"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/usage"
)

// Store persists jobs
type Store interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	// List returns up to PageSize+1 jobs, newest first, so callers can tell whether another page exists
	List(ctx context.Context, filter Filter) ([]*domain.Job, error)

	// Transition moves the job from one status to the next. It reports false,
	// without error, when the job is not in the expected status.
	Transition(ctx context.Context, jobID string, from, to domain.JobStatus) (bool, error)

	// Commit persists one stage output with its usage charges and section
	// flag, then advances the job status if the stage is now complete. All of
	// it happens atomically. An output that already exists is not rewritten
	// and its charges are not applied again.
	Commit(ctx context.Context, c Commit) (CommitResult, error)

	// Reconcile re-evaluates completion of stage and advances the status if
	// every output is in place. It reports whether the status moved.
	Reconcile(ctx context.Context, jobID string, stage domain.Stage) (bool, error)

	// ClaimHandoff marks the triggers that follow a finished stage as being
	// emitted. Exactly one caller gets true until ReleaseHandoff clears the mark.
	ClaimHandoff(ctx context.Context, jobID string, stage domain.Stage) (bool, error)

	// ReleaseHandoff clears the mark after a failed emission so a redelivered
	// trigger can repeat it
	ReleaseHandoff(ctx context.Context, jobID string, stage domain.Stage) error

	// RecordAttempt increments the failed-attempt counter of a (job, stage,
	// section) triple and returns the new count
	RecordAttempt(ctx context.Context, jobID string, stage domain.Stage, sectionID, errMsg string) (int, error)

	// Fail moves a non-terminal job to failed and records the cause. It
	// reports false when the job is already terminal.
	Fail(ctx context.Context, jobID string, failure domain.Failure) (bool, error)
}

// PersonaStore persists custom personas
type PersonaStore interface {
	ListPersonas(ctx context.Context) ([]domain.Persona, error)
	GetPersona(ctx context.Context, personaID string) (domain.Persona, error)
	PutPersona(ctx context.Context, persona domain.Persona) error
	DeletePersona(ctx context.Context, personaID string) error
}

// Filter narrows List
type Filter struct {
	Status   domain.JobStatus
	PageSize int
	Cursor   *Cursor
}

// Cursor marks the last job of the previous page
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// Commit is one stage output to persist
type Commit struct {
	JobID     string
	Stage     domain.Stage
	SectionID string
	Locations []string
	// DurationSeconds is the audio length for synthesize outputs
	DurationSeconds float64
	// Sections is the materialized fan-out; only analyze sets it
	Sections []domain.Section
	Charges  []usage.Charge
}

// CommitResult reports what a Commit changed
type CommitResult struct {
	// Applied is true when the output was new
	Applied bool
	// Advanced is true when this commit moved the job to the stage's done status
	Advanced bool
	// Remaining counts sections still outstanding for a per-section stage
	Remaining int
}
