package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/fanout"
	"github.com/cuongbtq/lecturecast/internal/jobstore"
	"github.com/cuongbtq/lecturecast/internal/usage"
)

// RunnerConfig holds Runner dependencies
type RunnerConfig struct {
	Store       jobstore.Store
	Emitter     Emitter
	Accumulator *usage.Accumulator
	Logger      *slog.Logger
	Definitions []Definition
	// Now defaults to time.Now
	Now func() time.Time
}

// Runner executes stage triggers. It holds no per-job state: everything it
// decides is read from and written to the job store, so any number of
// runners may process triggers of the same job concurrently.
type Runner struct {
	store       jobstore.Store
	emitter     Emitter
	accumulator *usage.Accumulator
	logger      *slog.Logger
	defs        map[domain.Stage]Definition
	now         func() time.Time
}

// NewRunner creates a Runner
func NewRunner(cfg *RunnerConfig) (*Runner, error) {
	if cfg.Store == nil || cfg.Emitter == nil {
		return nil, errors.New("runner requires a job store and an emitter")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	acc := cfg.Accumulator
	if acc == nil {
		acc = usage.NewAccumulator(nil, logger)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	defs := make(map[domain.Stage]Definition, len(cfg.Definitions))
	for _, d := range cfg.Definitions {
		if d.Stage == domain.StageIngest {
			return nil, errors.New("ingest is not a triggered stage")
		}
		if d.Work == nil {
			return nil, fmt.Errorf("stage %s has no work", d.Stage)
		}
		d.Policy = d.Policy.withDefaults(d.Stage)
		defs[d.Stage] = d
	}

	return &Runner{
		store:       cfg.Store,
		emitter:     cfg.Emitter,
		accumulator: acc,
		logger:      logger,
		defs:        defs,
		now:         now,
	}, nil
}

// Stages lists the stages this runner has work for
func (r *Runner) Stages() []domain.Stage {
	var out []domain.Stage
	for _, s := range domain.Stages {
		if _, ok := r.defs[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Handle processes one trigger. Stale and duplicate triggers are absorbed
// and return nil. A RetryableError means the trigger should be redelivered.
func (r *Runner) Handle(ctx context.Context, trigger domain.Trigger) error {
	if err := trigger.Validate(); err != nil {
		return err
	}
	def, ok := r.defs[trigger.Stage]
	if !ok {
		return fmt.Errorf("%w: no handler for stage %s", domain.ErrInvalidTrigger, trigger.Stage)
	}

	log := r.logger.With(
		slog.String("job_id", trigger.JobID),
		slog.String("stage", string(trigger.Stage)),
	)
	if trigger.SectionID != "" {
		log = log.With(slog.String("section_id", trigger.SectionID))
	}
	log.Info("Received trigger", slog.Int("attempt", trigger.Attempt))

	// Step 1: Load the job and check the stage is current
	job, err := r.store.Get(ctx, trigger.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Debug("Trigger absorbed: job not found")
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("load job: %w", err))
	}

	entry, running, done := trigger.Stage.Statuses()
	switch job.Status {
	case done:
		// Step 2: The stage already finished. Only a hand-off whose emission
		// failed is repeated; every other duplicate is absorbed.
		return r.handoff(ctx, log, job, trigger.Stage)

	case entry:
		// Step 3: First trigger of the stage moves the job to running
		if _, err := r.store.Transition(ctx, job.ID, entry, running); err != nil {
			return domain.NewRetryableError(fmt.Errorf("transition job: %w", err))
		}
		if job, err = r.store.Get(ctx, job.ID); err != nil {
			return domain.NewRetryableError(fmt.Errorf("reload job: %w", err))
		}
		if job.Status != running && job.Status != done {
			log.Debug("Trigger absorbed: job moved on", slog.String("status", string(job.Status)))
			return nil
		}

	case running:

	default:
		log.Debug("Trigger absorbed: job not in stage", slog.String("status", string(job.Status)))
		return nil
	}

	if trigger.Stage.PerSection() {
		if _, ok := job.Section(trigger.SectionID); !ok {
			log.Warn("Trigger absorbed: unknown section")
			return nil
		}
	}

	// Step 4: Output already in place means a duplicate delivery
	if _, ok := job.Output(trigger.Stage, trigger.SectionID); ok {
		log.Debug("Output exists, skipping collaborator call")
		advanced, err := r.store.Reconcile(ctx, job.ID, trigger.Stage)
		if err != nil {
			return domain.NewRetryableError(fmt.Errorf("reconcile job: %w", err))
		}
		if advanced {
			return r.advanced(ctx, log, job.ID, trigger.Stage)
		}
		return nil
	}

	// Step 5: Do the work under the stage timeout
	callCtx, cancel := context.WithTimeout(ctx, def.Policy.Timeout)
	start := r.now()
	log.Debug("Collaborator call started")
	result, err := def.Work.Run(callCtx, job, trigger)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a stage failure
			return domain.NewRetryableError(fmt.Errorf("stage interrupted: %w", ctx.Err()))
		}
		return r.failed(ctx, log, def, trigger, err)
	}
	log.Debug("Collaborator call finished", slog.Duration("duration", r.now().Sub(start)))

	charges, err := r.accumulator.Charges(result.Usage)
	if err != nil {
		return r.failed(ctx, log, def, trigger, err)
	}

	// Step 6: Commit output, usage and completion together
	res, err := r.store.Commit(ctx, jobstore.Commit{
		JobID:           job.ID,
		Stage:           trigger.Stage,
		SectionID:       trigger.SectionID,
		Locations:       result.Locations,
		DurationSeconds: result.DurationSeconds,
		Sections:        result.Sections,
		Charges:         charges,
	})
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) || errors.Is(err, domain.ErrUnknownSection) {
			log.Warn("Commit absorbed", slog.String("error", err.Error()))
			return nil
		}
		// counted like any other failed attempt so the ceiling applies
		return r.failed(ctx, log, def, trigger, &storageError{err: fmt.Errorf("commit output: %w", err)})
	}

	if !res.Applied {
		log.Debug("Output committed concurrently, charges not applied")
	} else {
		log.Info("Stage output committed",
			slog.Int("remaining_sections", res.Remaining),
			slog.Int("charges", len(charges)),
		)
	}

	if res.Advanced {
		return r.advanced(ctx, log, job.ID, trigger.Stage)
	}
	return nil
}

// advanced logs the stage advance and emits the next stage's triggers
func (r *Runner) advanced(ctx context.Context, log *slog.Logger, jobID string, stage domain.Stage) error {
	_, _, done := stage.Statuses()
	log.Info("Stage complete, job advanced", slog.String("status", string(done)))

	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("reload job: %w", err))
	}
	return r.handoff(ctx, log, job, stage)
}

// handoff emits the triggers of the stage after stage. The emission is
// claimed in the store first so it happens once per job and stage.
func (r *Runner) handoff(ctx context.Context, log *slog.Logger, job *domain.Job, stage domain.Stage) error {
	triggers := fanout.NextTriggers(job, stage)
	if len(triggers) == 0 {
		return nil
	}

	claimed, err := r.store.ClaimHandoff(ctx, job.ID, stage)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("claim hand-off: %w", err))
	}
	if !claimed {
		log.Debug("Trigger absorbed: next stage already emitted")
		return nil
	}

	if err := r.emitter.Emit(ctx, triggers...); err != nil {
		if relErr := r.store.ReleaseHandoff(ctx, job.ID, stage); relErr != nil {
			log.Error("Failed to release hand-off, next stage will not be emitted",
				slog.String("error", relErr.Error()),
			)
		}
		return domain.NewRetryableError(fmt.Errorf("emit %s triggers: %w", stage.Next(), err))
	}

	log.Debug("Next stage emitted",
		slog.String("next", string(stage.Next())),
		slog.Int("triggers", len(triggers)),
	)
	return nil
}

// failed counts a failed attempt and either schedules a retry or fails the job
func (r *Runner) failed(ctx context.Context, log *slog.Logger, def Definition, trigger domain.Trigger, cause error) error {
	attempts, err := r.store.RecordAttempt(ctx, trigger.JobID, trigger.Stage, trigger.SectionID, cause.Error())
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("record attempt: %w", err))
	}

	class := classify(cause)
	// internal failures are configuration errors; retrying cannot fix them
	if attempts >= def.Policy.MaxAttempts || class == domain.FailureClassInternal {
		moved, err := r.store.Fail(ctx, trigger.JobID, domain.Failure{
			Stage:      trigger.Stage,
			SectionID:  trigger.SectionID,
			Class:      class,
			Message:    cause.Error(),
			RetryCount: attempts,
			At:         r.now().UTC(),
		})
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				return nil
			}
			return domain.NewRetryableError(fmt.Errorf("fail job: %w", err))
		}
		if moved {
			log.Error("Stage failed, retry ceiling reached",
				slog.Int("attempts", attempts),
				slog.String("class", string(class)),
				slog.String("error", cause.Error()),
			)
		}
		return nil
	}

	delay := def.Policy.Backoff(attempts)
	retry := trigger
	retry.Attempt = attempts
	if err := r.emitter.EmitDelayed(ctx, retry, delay); err != nil {
		return domain.NewRetryableError(fmt.Errorf("schedule retry: %w", err))
	}

	log.Warn("Stage attempt failed, retry scheduled",
		slog.Int("attempt", attempts),
		slog.Int("max_attempts", def.Policy.MaxAttempts),
		slog.Duration("delay", delay),
		slog.String("class", string(class)),
		slog.String("error", cause.Error()),
	)
	return nil
}
