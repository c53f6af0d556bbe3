package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/lecturecast/internal/blobref"
	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/jobstore"
	"github.com/cuongbtq/lecturecast/internal/objectstore"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// DefaultMaxUploadBytes caps uploaded documents at 50 MiB
const DefaultMaxUploadBytes int64 = 50 << 20

var pdfMagic = []byte("%PDF")

// Upload is a document submitted for narration
type Upload struct {
	Filename  string
	Data      []byte
	PersonaID string
}

// PersonaResolver maps a requested persona id to the persona snapshot stored on the job
type PersonaResolver interface {
	Resolve(ctx context.Context, personaID string) (domain.Persona, error)
}

// PageCounter returns the number of pages of a PDF
type PageCounter func(rs io.ReadSeeker) (int, error)

// PDFPageCount counts pages with pdfcpu
func PDFPageCount(rs io.ReadSeeker) (int, error) {
	return api.PageCount(rs, nil)
}

// IngestorConfig holds Ingestor dependencies
type IngestorConfig struct {
	Store    jobstore.Store
	Blobs    objectstore.Store
	Refs     *blobref.Resolver
	Personas PersonaResolver
	Emitter  Emitter
	Logger   *slog.Logger
	MaxBytes int64
	// PageCounter defaults to PDFPageCount
	PageCounter PageCounter
	Now         func() time.Time
}

// Ingestor accepts uploads and starts their pipeline
type Ingestor struct {
	cfg IngestorConfig
}

// NewIngestor creates an Ingestor
func NewIngestor(cfg IngestorConfig) (*Ingestor, error) {
	if cfg.Store == nil || cfg.Blobs == nil || cfg.Personas == nil || cfg.Emitter == nil {
		return nil, errors.New("ingestor requires a job store, blob store, persona resolver and emitter")
	}
	if cfg.Refs == nil {
		cfg.Refs = blobref.New("", "")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxUploadBytes
	}
	if cfg.PageCounter == nil {
		cfg.PageCounter = PDFPageCount
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ingestor{cfg: cfg}, nil
}

// Validate checks an upload without storing anything and returns its page count
func (in *Ingestor) Validate(u Upload) (int, error) {
	if !strings.EqualFold(filepath.Ext(u.Filename), ".pdf") {
		return 0, fmt.Errorf("%w: only PDF files are supported", domain.ErrInvalidDocument)
	}
	if len(u.Data) == 0 {
		return 0, fmt.Errorf("%w: file is empty", domain.ErrInvalidDocument)
	}
	if int64(len(u.Data)) > in.cfg.MaxBytes {
		return 0, fmt.Errorf("%w: file exceeds %d MB limit", domain.ErrInvalidDocument, in.cfg.MaxBytes>>20)
	}
	if !bytes.HasPrefix(u.Data, pdfMagic) {
		return 0, fmt.Errorf("%w: file is not a PDF", domain.ErrInvalidDocument)
	}
	pages, err := in.cfg.PageCounter(bytes.NewReader(u.Data))
	if err != nil {
		return 0, fmt.Errorf("%w: unreadable PDF: %v", domain.ErrInvalidDocument, err)
	}
	if pages <= 0 {
		return 0, fmt.Errorf("%w: PDF has no pages", domain.ErrInvalidDocument)
	}
	return pages, nil
}

// Ingest stores the document, creates the job in uploaded status and emits
// the analyze trigger
func (in *Ingestor) Ingest(ctx context.Context, u Upload) (*domain.Job, error) {
	pages, err := in.Validate(u)
	if err != nil {
		return nil, err
	}

	persona, err := in.cfg.Personas.Resolve(ctx, u.PersonaID)
	if err != nil {
		return nil, fmt.Errorf("resolve persona: %w", err)
	}

	jobID := uuid.NewString()
	location := in.cfg.Refs.Source(jobID)
	if err := in.cfg.Blobs.Put(ctx, location, u.Data); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	now := in.cfg.Now().UTC()
	job := &domain.Job{
		ID:     jobID,
		Status: domain.JobStatusUploaded,
		Source: domain.Source{
			Filename:  filepath.Base(u.Filename),
			SizeBytes: int64(len(u.Data)),
			PageCount: pages,
			Location:  location,
		},
		Persona:   persona,
		Ledger:    domain.Ledger{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := in.cfg.Store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	log := in.cfg.Logger.With(slog.String("job_id", jobID))
	if err := in.cfg.Emitter.Emit(ctx, domain.Trigger{JobID: jobID, Stage: domain.StageAnalyze}); err != nil {
		// Without a trigger nothing would ever pick the job up
		if _, failErr := in.cfg.Store.Fail(ctx, jobID, domain.Failure{
			Stage:   domain.StageIngest,
			Class:   domain.FailureClassInternal,
			Message: "could not start analysis: " + err.Error(),
			At:      now,
		}); failErr != nil {
			log.Error("Failed to mark job failed after emit error", slog.String("error", failErr.Error()))
		}
		return nil, fmt.Errorf("emit analyze trigger: %w", err)
	}

	log.Info("Document ingested",
		slog.String("filename", job.Source.Filename),
		slog.Int64("size_bytes", job.Source.SizeBytes),
		slog.Int("pages", pages),
		slog.String("persona_id", persona.ID),
	)
	return job, nil
}
