package handler

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health by running every registered check
func Health(deps *Dependencies) gin.HandlerFunc {
	names := make([]string, 0, len(deps.HealthChecks))
	for name := range deps.HealthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		status := http.StatusOK
		checks := make(map[string]string, len(names))
		for _, name := range names {
			if err := deps.HealthChecks[name](c.Request.Context()); err != nil {
				deps.Logger.Warn("Health check failed", slog.String("check", name), slog.String("error", err.Error()))
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":  state,
			"service": deps.ServiceName,
			"checks":  checks,
		})
	}
}
