package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/souschef-ai/souschef/pkg/engine"
	"github.com/souschef-ai/souschef/pkg/session"
)

// mapServiceError translates session and engine errors into HTTP errors.
// Missing things are 404s; precondition violations are 400s. Anything
// unrecognized becomes a 500 with a generic message.
func mapServiceError(err error) error {
	var stepErr *engine.StepStateError

	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, engine.ErrStepNotFound),
		errors.Is(err, engine.ErrTimerNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, session.ErrNoRecipe),
		errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, engine.ErrTimerAlreadyRunning),
		errors.Is(err, engine.ErrTimerDuration):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.As(err, &stepErr):
		return echo.NewHTTPError(http.StatusBadRequest, stepErr.Error())

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
