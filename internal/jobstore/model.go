package jobstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/lib/pq"
)

type jobRow struct {
	JobID             string         `db:"job_id"`
	Status            string         `db:"status"`
	FailedFrom        string         `db:"failed_from"`
	SourceFilename    string         `db:"source_filename"`
	SourceSizeBytes   int64          `db:"source_size_bytes"`
	SourcePageCount   int            `db:"source_page_count"`
	SourceLocation    string         `db:"source_location"`
	Persona           []byte         `db:"persona"`
	FailureStage      sql.NullString `db:"failure_stage"`
	FailureSectionID  sql.NullString `db:"failure_section_id"`
	FailureClass      sql.NullString `db:"failure_class"`
	FailureMessage    sql.NullString `db:"failure_message"`
	FailureRetryCount sql.NullInt64  `db:"failure_retry_count"`
	FailedAt          sql.NullTime   `db:"failed_at"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

const jobColumns = `
	job_id, status, failed_from,
	source_filename, source_size_bytes, source_page_count, source_location,
	persona,
	failure_stage, failure_section_id, failure_class, failure_message, failure_retry_count, failed_at,
	created_at, updated_at`

func (r *jobRow) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:         r.JobID,
		Status:     domain.JobStatus(r.Status),
		FailedFrom: domain.JobStatus(r.FailedFrom),
		Source: domain.Source{
			Filename:  r.SourceFilename,
			SizeBytes: r.SourceSizeBytes,
			PageCount: r.SourcePageCount,
			Location:  r.SourceLocation,
		},
		Ledger:    domain.Ledger{},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Persona, &job.Persona); err != nil {
		return nil, fmt.Errorf("failed to decode persona of job %s: %w", r.JobID, err)
	}
	if r.FailureStage.Valid {
		job.Failure = &domain.Failure{
			Stage:      domain.Stage(r.FailureStage.String),
			SectionID:  r.FailureSectionID.String,
			Class:      domain.FailureClass(r.FailureClass.String),
			Message:    r.FailureMessage.String,
			RetryCount: int(r.FailureRetryCount.Int64),
			At:         r.FailedAt.Time,
		}
	}
	return job, nil
}

type sectionRow struct {
	SectionID  string `db:"section_id"`
	Position   int    `db:"position"`
	Title      string `db:"title"`
	Outline    []byte `db:"outline"`
	ScriptDone bool   `db:"script_done"`
	AudioDone  bool   `db:"audio_done"`
}

func (r *sectionRow) toDomain() (domain.Section, error) {
	s := domain.Section{
		ID:         r.SectionID,
		Position:   r.Position,
		Title:      r.Title,
		ScriptDone: r.ScriptDone,
		AudioDone:  r.AudioDone,
	}
	if err := json.Unmarshal(r.Outline, &s.Outline); err != nil {
		return domain.Section{}, fmt.Errorf("failed to decode outline of section %s: %w", r.SectionID, err)
	}
	return s, nil
}

type outputRow struct {
	Stage           string         `db:"stage"`
	SectionID       string         `db:"section_id"`
	Locations       pq.StringArray `db:"locations"`
	Status          string         `db:"status"`
	DurationSeconds float64        `db:"duration_seconds"`
	CreatedAt       time.Time      `db:"created_at"`
}

type costRow struct {
	Category  string  `db:"category"`
	Quantity  float64 `db:"quantity"`
	AmountUSD float64 `db:"amount_usd"`
}
