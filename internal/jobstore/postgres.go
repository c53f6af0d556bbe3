package jobstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Postgres is the production Store. Commits of one job are serialized by a
// row lock on its jobs row; counters and ledger entries use upserts.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres creates a Postgres store on an open connection pool
func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// Migrate creates the tables if they do not exist
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.Info("Job store schema applied")
	return nil
}

func (s *Postgres) Create(ctx context.Context, job *domain.Job) error {
	persona, err := json.Marshal(job.Persona)
	if err != nil {
		return fmt.Errorf("failed to encode persona: %w", err)
	}

	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO jobs (
			job_id, status, source_filename, source_size_bytes,
			source_page_count, source_location, persona, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $8
		)
	`
	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.Source.Filename,
		job.Source.SizeBytes,
		job.Source.PageCount,
		job.Source.Location,
		persona,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
	)
	return nil
}

func (s *Postgres) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job, err := row.toDomain()
	if err != nil {
		return nil, err
	}

	var sections []sectionRow
	err = s.db.SelectContext(ctx, &sections, `
		SELECT section_id, position, title, outline, script_done, audio_done
		FROM job_sections
		WHERE job_id = $1
		ORDER BY position
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sections: %w", err)
	}
	for i := range sections {
		section, err := sections[i].toDomain()
		if err != nil {
			return nil, err
		}
		job.Sections = append(job.Sections, section)
	}

	var outputs []outputRow
	err = s.db.SelectContext(ctx, &outputs, `
		SELECT stage, section_id, locations, status, duration_seconds, created_at
		FROM job_stage_outputs
		WHERE job_id = $1
		ORDER BY created_at, stage, section_id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage outputs: %w", err)
	}
	for _, out := range outputs {
		job.Outputs = append(job.Outputs, domain.StageOutput{
			Stage:           domain.Stage(out.Stage),
			SectionID:       out.SectionID,
			Locations:       []string(out.Locations),
			Status:          domain.OutputStatus(out.Status),
			DurationSeconds: out.DurationSeconds,
			CreatedAt:       out.CreatedAt,
		})
	}

	var costs []costRow
	err = s.db.SelectContext(ctx, &costs, `
		SELECT category, quantity, amount_usd FROM job_costs WHERE job_id = $1
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get costs: %w", err)
	}
	for _, c := range costs {
		job.Ledger[c.Category] = domain.LedgerEntry{Quantity: c.Quantity, AmountUSD: c.AmountUSD}
	}

	return job, nil
}

func (s *Postgres) List(ctx context.Context, filter Filter) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Postgres) Transition(ctx context.Context, jobID string, from, to domain.JobStatus) (bool, error) {
	if !domain.CanTransition(from, to) || to == domain.JobStatusFailed {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`, to, jobID, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		s.logger.Debug("Transition skipped - job not in expected status",
			slog.String("job_id", jobID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return false, nil
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(to)),
	)
	return true, nil
}

func (s *Postgres) Commit(ctx context.Context, c Commit) (CommitResult, error) {
	var result CommitResult

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		status, err := lockJob(ctx, tx, c.JobID)
		if err != nil {
			return err
		}

		inserted, err := tx.ExecContext(ctx, `
			INSERT INTO job_stage_outputs (job_id, stage, section_id, locations, status, duration_seconds)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (job_id, stage, section_id) DO NOTHING
		`, c.JobID, c.Stage, c.SectionID, pq.StringArray(c.Locations), domain.OutputStatusCommitted, c.DurationSeconds)
		if err != nil {
			return fmt.Errorf("failed to insert stage output: %w", err)
		}
		n, err := inserted.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		result.Applied = n == 1

		if result.Applied {
			if c.Stage == domain.StageAnalyze {
				if err := insertSections(ctx, tx, c.JobID, c.Sections); err != nil {
					return err
				}
			}
			if c.Stage.PerSection() {
				if err := markSection(ctx, tx, c.JobID, c.Stage, c.SectionID); err != nil {
					return err
				}
			}
			for _, charge := range c.Charges {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO job_costs (job_id, category, quantity, amount_usd)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT (job_id, category) DO UPDATE
					SET quantity = job_costs.quantity + EXCLUDED.quantity,
					    amount_usd = job_costs.amount_usd + EXCLUDED.amount_usd,
					    updated_at = NOW()
				`, c.JobID, charge.Category, charge.Quantity, charge.AmountUSD)
				if err != nil {
					return fmt.Errorf("failed to add cost %s: %w", charge.Category, err)
				}
			}
		}

		result.Advanced, result.Remaining, err = advance(ctx, tx, c.JobID, c.Stage, domain.JobStatus(status))
		return err
	})
	if err != nil {
		return CommitResult{}, err
	}

	s.logger.Debug("Stage output committed",
		slog.String("job_id", c.JobID),
		slog.String("stage", string(c.Stage)),
		slog.String("section_id", c.SectionID),
		slog.Bool("applied", result.Applied),
		slog.Bool("advanced", result.Advanced),
		slog.Int("remaining", result.Remaining),
	)
	return result, nil
}

func (s *Postgres) Reconcile(ctx context.Context, jobID string, stage domain.Stage) (bool, error) {
	var advanced bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		status, err := lockJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		advanced, _, err = advance(ctx, tx, jobID, stage, domain.JobStatus(status))
		return err
	})
	return advanced, err
}

func (s *Postgres) ClaimHandoff(ctx context.Context, jobID string, stage domain.Stage) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO job_handoffs (job_id, stage)
		VALUES ($1, $2)
		ON CONFLICT (job_id, stage) DO NOTHING
	`, jobID, stage)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to claim hand-off: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (s *Postgres) ReleaseHandoff(ctx context.Context, jobID string, stage domain.Stage) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM job_handoffs WHERE job_id = $1 AND stage = $2`, jobID, stage)
	if err != nil {
		return fmt.Errorf("failed to release hand-off: %w", err)
	}
	return nil
}

func (s *Postgres) RecordAttempt(ctx context.Context, jobID string, stage domain.Stage, sectionID, errMsg string) (int, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts, `
		INSERT INTO job_stage_attempts (job_id, stage, section_id, attempts, last_error)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (job_id, stage, section_id) DO UPDATE
		SET attempts = job_stage_attempts.attempts + 1,
		    last_error = EXCLUDED.last_error,
		    updated_at = NOW()
		RETURNING attempts
	`, jobID, stage, sectionID, errMsg)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return 0, domain.ErrJobNotFound
		}
		return 0, fmt.Errorf("failed to record attempt: %w", err)
	}
	return attempts, nil
}

func (s *Postgres) Fail(ctx context.Context, jobID string, failure domain.Failure) (bool, error) {
	at := failure.At
	if at.IsZero() {
		at = time.Now()
	}

	// failed_from = status reads the pre-update value
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET failed_from = status,
		    status = $1,
		    failure_stage = $2,
		    failure_section_id = $3,
		    failure_class = $4,
		    failure_message = $5,
		    failure_retry_count = $6,
		    failed_at = $7,
		    updated_at = NOW()
		WHERE job_id = $8 AND status NOT IN ($9, $10)
	`,
		domain.JobStatusFailed,
		failure.Stage,
		failure.SectionID,
		failure.Class,
		failure.Message,
		failure.RetryCount,
		at,
		jobID,
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM jobs WHERE job_id = $1)`, jobID); err != nil {
			return false, fmt.Errorf("failed to check job: %w", err)
		}
		if !exists {
			return false, domain.ErrJobNotFound
		}
		return false, nil
	}

	s.logger.Warn("Job marked failed",
		slog.String("job_id", jobID),
		slog.String("stage", string(failure.Stage)),
		slog.String("section_id", failure.SectionID),
		slog.String("error", failure.Message),
	)
	return true, nil
}

func (s *Postgres) ListPersonas(ctx context.Context) ([]domain.Persona, error) {
	var definitions [][]byte
	if err := s.db.SelectContext(ctx, &definitions, `SELECT definition FROM personas ORDER BY persona_id`); err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}

	personas := make([]domain.Persona, 0, len(definitions))
	for _, def := range definitions {
		var p domain.Persona
		if err := json.Unmarshal(def, &p); err != nil {
			return nil, fmt.Errorf("failed to decode persona: %w", err)
		}
		personas = append(personas, p)
	}
	return personas, nil
}

func (s *Postgres) GetPersona(ctx context.Context, personaID string) (domain.Persona, error) {
	var def []byte
	err := s.db.GetContext(ctx, &def, `SELECT definition FROM personas WHERE persona_id = $1`, personaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Persona{}, domain.ErrPersonaNotFound
		}
		return domain.Persona{}, fmt.Errorf("failed to get persona: %w", err)
	}

	var p domain.Persona
	if err := json.Unmarshal(def, &p); err != nil {
		return domain.Persona{}, fmt.Errorf("failed to decode persona: %w", err)
	}
	return p, nil
}

func (s *Postgres) PutPersona(ctx context.Context, persona domain.Persona) error {
	def, err := json.Marshal(persona)
	if err != nil {
		return fmt.Errorf("failed to encode persona: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personas (persona_id, definition)
		VALUES ($1, $2)
		ON CONFLICT (persona_id) DO UPDATE
		SET definition = EXCLUDED.definition, updated_at = NOW()
	`, persona.ID, def)
	if err != nil {
		return fmt.Errorf("failed to save persona: %w", err)
	}
	return nil
}

func (s *Postgres) DeletePersona(ctx context.Context, personaID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM personas WHERE persona_id = $1`, personaID)
	if err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPersonaNotFound
	}
	return nil
}

func (s *Postgres) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func lockJob(ctx context.Context, tx *sqlx.Tx, jobID string) (string, error) {
	var status string
	err := tx.GetContext(ctx, &status, `SELECT status FROM jobs WHERE job_id = $1 FOR UPDATE`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrJobNotFound
		}
		return "", fmt.Errorf("failed to lock job: %w", err)
	}
	return status, nil
}

func insertSections(ctx context.Context, tx *sqlx.Tx, jobID string, sections []domain.Section) error {
	var existing int
	if err := tx.GetContext(ctx, &existing, `SELECT COUNT(*) FROM job_sections WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to count sections: %w", err)
	}
	if existing > 0 {
		return nil
	}

	for _, section := range sections {
		outline, err := json.Marshal(section.Outline)
		if err != nil {
			return fmt.Errorf("failed to encode outline: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO job_sections (job_id, section_id, position, title, outline)
			VALUES ($1, $2, $3, $4, $5)
		`, jobID, section.ID, section.Position, section.Title, outline)
		if err != nil {
			return fmt.Errorf("failed to insert section %s: %w", section.ID, err)
		}
	}
	return nil
}

func sectionFlag(stage domain.Stage) string {
	if stage == domain.StageScript {
		return "script_done"
	}
	return "audio_done"
}

func markSection(ctx context.Context, tx *sqlx.Tx, jobID string, stage domain.Stage, sectionID string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE job_sections SET `+sectionFlag(stage)+` = TRUE WHERE job_id = $1 AND section_id = $2`,
		jobID, sectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark section: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownSection, sectionID)
	}
	return nil
}

// advance runs under the job row lock
func advance(ctx context.Context, tx *sqlx.Tx, jobID string, stage domain.Stage, status domain.JobStatus) (bool, int, error) {
	var complete bool
	var remaining int

	if stage.PerSection() {
		var counts struct {
			Total int `db:"total"`
			Done  int `db:"done"`
		}
		err := tx.GetContext(ctx, &counts,
			`SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE `+sectionFlag(stage)+`) AS done
			 FROM job_sections WHERE job_id = $1`,
			jobID,
		)
		if err != nil {
			return false, 0, fmt.Errorf("failed to count section flags: %w", err)
		}
		complete = counts.Total > 0 && counts.Done == counts.Total
		remaining = counts.Total - counts.Done
	} else {
		err := tx.GetContext(ctx, &complete,
			`SELECT EXISTS (SELECT 1 FROM job_stage_outputs WHERE job_id = $1 AND stage = $2 AND section_id = '')`,
			jobID, stage,
		)
		if err != nil {
			return false, 0, fmt.Errorf("failed to check stage output: %w", err)
		}
	}

	_, running, done := stage.Statuses()
	if !complete || status != running {
		return false, remaining, nil
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = $1, updated_at = NOW() WHERE job_id = $2 AND status = $3`,
		done, jobID, running,
	)
	if err != nil {
		return false, remaining, fmt.Errorf("failed to advance job: %w", err)
	}
	return true, remaining, nil
}

var (
	_ Store        = (*Postgres)(nil)
	_ PersonaStore = (*Postgres)(nil)
)
