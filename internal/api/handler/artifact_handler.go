package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/cuongbtq/lecturecast/internal/api/dto"
	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/objectstore"
	"github.com/gin-gonic/gin"
)

const (
	artifactScript  = "script"
	artifactAudio   = "audio"
	artifactTimings = "timings"
)

var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".aac":  "audio/aac",
	".flac": "audio/flac",
}

func artifactURL(publicURL, jobID, sectionID, artifact string) string {
	return publicURL + "/api/v1/jobs/" + jobID + "/sections/" + sectionID + "/" + artifact
}

// GetSectionArtifact handles GET /api/v1/jobs/:job_id/sections/:section_id/:artifact
// Streams a section's script, audio or word timings from object storage
func (h *JobHandler) GetSectionArtifact(c *gin.Context) {
	artifact := c.Param("artifact")
	var (
		stage domain.Stage
		index int
	)
	switch artifact {
	case artifactScript:
		stage = domain.StageScript
	case artifactAudio:
		stage = domain.StageSynthesize
	case artifactTimings:
		stage, index = domain.StageSynthesize, 1
	default:
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "unknown artifact, expected script, audio or timings"})
		return
	}

	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	sectionID := c.Param("section_id")
	if _, ok := job.Section(sectionID); !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "section not found"})
		return
	}

	out, ok := job.Output(stage, sectionID)
	if !ok || len(out.Locations) <= index {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: artifact + " is not available yet"})
		return
	}
	key := out.Locations[index]

	data, err := h.blobs.Get(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			h.logger.Warn("Committed artifact missing from storage",
				slog.String("job_id", job.ID),
				slog.String("section_id", sectionID),
				slog.String("key", key),
			)
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: artifact + " not found"})
			return
		}
		h.logger.Error("Failed to read artifact",
			slog.String("job_id", job.ID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to read " + artifact})
		return
	}

	contentType := "application/json"
	if artifact == artifactAudio {
		contentType = "application/octet-stream"
		if ct, ok := audioContentTypes[strings.ToLower(path.Ext(key))]; ok {
			contentType = ct
		}
	}
	c.Header("Content-Disposition", `inline; filename="`+path.Base(key)+`"`)
	c.Data(http.StatusOK, contentType, data)
}
