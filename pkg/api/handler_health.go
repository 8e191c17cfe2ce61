package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/souschef-ai/souschef/pkg/version"
)

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.GitCommit,
	})
}
