package api

import (
	"net/http"

	"github.com/codeready-toolchain/voicerelay/pkg/database"
	"github.com/codeready-toolchain/voicerelay/pkg/version"
	"github.com/gin-gonic/gin"
)

type healthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]healthCheck `json:"checks"`
}

// handleHealth reports database connectivity as "healthy", or "unhealthy"
// with a 503, plus the build version. Connection-pool statistics are not
// included, and there is no degraded state.
func (s *Server) handleHealth(c *gin.Context) {
	checks := map[string]healthCheck{}
	overall := "healthy"

	dbStatus, err := database.Health(c.Request.Context(), s.db.DB())
	if err != nil || dbStatus.Status != "healthy" {
		overall = "unhealthy"
		msg := "database unreachable"
		if err != nil {
			msg = err.Error()
		}
		checks["database"] = healthCheck{Status: "unhealthy", Message: msg}
	} else {
		checks["database"] = healthCheck{Status: "healthy"}
	}

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, healthResponse{Status: overall, Version: version.GitCommit, Checks: checks})
}
