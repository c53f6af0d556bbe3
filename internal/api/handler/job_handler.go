package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/lecturecast/internal/api/dto"
	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/jobstore"
	"github.com/cuongbtq/lecturecast/internal/stage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// multipart framing allowance on top of the document limit
	formOverheadBytes = 1 << 20
)

// CreateJob handles POST /api/v1/jobs
// Accepts a multipart PDF upload and starts the narration pipeline
func (h *JobHandler) CreateJob(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverheadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error: fmt.Sprintf("file exceeds %d MB limit", h.maxUploadBytes>>20),
			})
			return
		}
		h.logger.Warn("Upload without file", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "could not read file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.logger.Error("Failed to read upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "could not read file"})
		return
	}

	job, err := h.ingestor.Ingest(c.Request.Context(), stage.Upload{
		Filename:  fileHeader.Filename,
		Data:      data,
		PersonaID: strings.TrimSpace(c.PostForm("persona_id")),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDocument) {
			h.logger.Info("Upload rejected",
				slog.String("filename", fileHeader.Filename),
				slog.String("reason", err.Error()),
			)
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("Failed to ingest document", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create job"})
		return
	}

	progress := domain.Project(job)
	c.JSON(http.StatusAccepted, dto.UploadResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		StatusURL: h.publicURL + "/api/v1/jobs/" + job.ID,
		Message:   progress.Message,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the status projection and cost ledger of a job
func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toStatusResponse(job, h.publicURL))
}

// loadJob reads the job named by the job_id path parameter. It writes the
// error response itself and reports false when there is no job to work with.
func (h *JobHandler) loadJob(c *gin.Context) (*domain.Job, bool) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id must be a valid UUID"})
		return nil, false
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job not found"})
			return nil, false
		}
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return nil, false
	}
	return job, true
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with an optional status filter and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	var status domain.JobStatus
	if req.Status != "" {
		parsed, err := domain.ParseJobStatus(req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		status = parsed
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	jobs, err := h.store.List(c.Request.Context(), jobstore.Filter{
		Status:   status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list jobs"})
		return
	}

	// the store returns one extra row when another page exists
	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobSummaryDTO, len(jobs))}
	for i, job := range jobs {
		resp.Jobs[i] = dto.JobSummaryDTO{
			JobID:      job.ID,
			Filename:   job.Source.Filename,
			PersonaID:  job.Persona.ID,
			Status:     string(job.Status),
			Percentage: domain.Project(job).Percentage,
			TotalUSD:   job.Ledger.Total(),
			CreatedAt:  job.CreatedAt.Format(time.RFC3339),
			UpdatedAt:  job.UpdatedAt.Format(time.RFC3339),
		}
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&jobstore.Cursor{CreatedAt: last.CreatedAt, JobID: last.ID})
	}

	c.JSON(http.StatusOK, resp)
}

func toStatusResponse(job *domain.Job, publicURL string) dto.JobStatusResponse {
	progress := domain.Project(job)

	resp := dto.JobStatusResponse{
		JobID:  job.ID,
		Status: string(progress.Status),
		Progress: dto.ProgressDTO{
			Percentage: progress.Percentage,
			Message:    progress.Message,
		},
		Document: dto.DocumentDTO{
			Filename:  job.Source.Filename,
			SizeBytes: job.Source.SizeBytes,
			PageCount: job.Source.PageCount,
		},
		PersonaID: job.Persona.ID,
		Cost: dto.CostDTO{
			TotalUSD:   job.Ledger.Total(),
			Categories: make(map[string]dto.CategoryDTO, len(job.Ledger)),
		},
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}

	for name, entry := range job.Ledger {
		resp.Cost.Categories[name] = dto.CategoryDTO{Quantity: entry.Quantity, AmountUSD: entry.AmountUSD}
	}

	if f := job.Failure; f != nil {
		resp.Failure = &dto.FailureDTO{
			Stage:      string(f.Stage),
			SectionID:  f.SectionID,
			Class:      string(f.Class),
			Message:    f.Message,
			RetryCount: f.RetryCount,
			At:         f.At.Format(time.RFC3339),
		}
	}

	if job.Status == domain.JobStatusCompleted {
		resp.Sections = make([]dto.SectionDTO, 0, len(job.Sections))
		for _, s := range job.Sections {
			section := dto.SectionDTO{SectionID: s.ID, Position: s.Position, Title: s.Title}
			if _, ok := job.Output(domain.StageScript, s.ID); ok {
				section.Script = artifactURL(publicURL, job.ID, s.ID, artifactScript)
			}
			if out, ok := job.Output(domain.StageSynthesize, s.ID); ok {
				if len(out.Locations) > 0 {
					section.Audio = artifactURL(publicURL, job.ID, s.ID, artifactAudio)
				}
				if len(out.Locations) > 1 {
					section.Timings = artifactURL(publicURL, job.ID, s.ID, artifactTimings)
				}
				section.DurationSeconds = out.DurationSeconds
			}
			resp.TotalDurationSeconds += section.DurationSeconds
			resp.Sections = append(resp.Sections, section)
		}
	}

	return resp
}
