package router

import (
	"github.com/cuongbtq/lecturecast/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.Health(deps))

	jobHandler := handler.NewJobHandler(deps)
	personaHandler := handler.NewPersonaHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Upload a PDF and start a narration job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Poll job progress and cost
			jobs.GET("/:job_id", jobHandler.GetJob)

			// GET /api/v1/jobs/:job_id/sections/:section_id/{script,audio,timings}
			jobs.GET("/:job_id/sections/:section_id/:artifact", jobHandler.GetSectionArtifact)
		}

		personas := v1.Group("/personas")
		{
			personas.GET("", personaHandler.ListPersonas)
			personas.GET("/:persona_id", personaHandler.GetPersona)
			personas.PUT("/:persona_id", personaHandler.PutPersona)
			personas.DELETE("/:persona_id", personaHandler.DeletePersona)
		}
	}

	return r
}
