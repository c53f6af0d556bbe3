package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/lecturecast/internal/api/dto"
	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/gin-gonic/gin"
)

// ListPersonas handles GET /api/v1/personas
func (h *PersonaHandler) ListPersonas(c *gin.Context) {
	personas, err := h.personas.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list personas", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list personas"})
		return
	}
	c.JSON(http.StatusOK, dto.ListPersonasResponse{Personas: personas})
}

// GetPersona handles GET /api/v1/personas/:persona_id
func (h *PersonaHandler) GetPersona(c *gin.Context) {
	p, err := h.personas.Get(c.Request.Context(), c.Param("persona_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PutPersona handles PUT /api/v1/personas/:persona_id
// Creates or replaces a custom persona; built-ins are read-only
func (h *PersonaHandler) PutPersona(c *gin.Context) {
	var p domain.Persona
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	p.ID = c.Param("persona_id")

	saved, err := h.personas.Put(c.Request.Context(), p)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Persona saved", slog.String("persona_id", saved.ID))
	c.JSON(http.StatusOK, saved)
}

// DeletePersona handles DELETE /api/v1/personas/:persona_id
func (h *PersonaHandler) DeletePersona(c *gin.Context) {
	id := c.Param("persona_id")
	if err := h.personas.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Persona deleted", slog.String("persona_id", id))
	c.Status(http.StatusNoContent)
}

func (h *PersonaHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrPersonaNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "persona not found"})
	case errors.Is(err, domain.ErrPersonaReadOnly):
		c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidPersona):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("Persona request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Persona request failed"})
	}
}
