package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/jobstore"
	"github.com/cuongbtq/lecturecast/internal/objectstore"
	"github.com/cuongbtq/lecturecast/internal/stage"
)

// Ingestor starts the pipeline for an uploaded document
type Ingestor interface {
	Ingest(ctx context.Context, u stage.Upload) (*domain.Job, error)
}

// PersonaCatalog is the narrator catalogue
type PersonaCatalog interface {
	List(ctx context.Context) ([]domain.Persona, error)
	Get(ctx context.Context, id string) (domain.Persona, error)
	Put(ctx context.Context, p domain.Persona) (domain.Persona, error)
	Delete(ctx context.Context, id string) error
}

// HealthCheck probes one backing service
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Store    jobstore.Store
	Blobs    objectstore.Store
	Ingestor Ingestor
	Personas PersonaCatalog
	// PublicURL prefixes status and artifact URLs; empty yields relative URLs
	PublicURL      string
	MaxUploadBytes int64
	HealthChecks   map[string]HealthCheck
	ServiceName    string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger         *slog.Logger
	store          jobstore.Store
	blobs          objectstore.Store
	ingestor       Ingestor
	publicURL      string
	maxUploadBytes int64
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	maxBytes := deps.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = stage.DefaultMaxUploadBytes
	}
	return &JobHandler{
		logger:         deps.Logger,
		store:          deps.Store,
		blobs:          deps.Blobs,
		ingestor:       deps.Ingestor,
		publicURL:      deps.PublicURL,
		maxUploadBytes: maxBytes,
	}
}

// PersonaHandler handles persona catalogue requests
type PersonaHandler struct {
	logger   *slog.Logger
	personas PersonaCatalog
}

// NewPersonaHandler creates a new PersonaHandler instance
func NewPersonaHandler(deps *Dependencies) *PersonaHandler {
	return &PersonaHandler{
		logger:   deps.Logger,
		personas: deps.Personas,
	}
}
