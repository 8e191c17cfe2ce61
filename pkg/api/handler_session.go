package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/souschef-ai/souschef/pkg/engine"
	"github.com/souschef-ai/souschef/pkg/models"
	"github.com/souschef-ai/souschef/pkg/session"
)

// ActionResponse is returned by every UI step/timer action: the fresh
// engine snapshot plus a tool-style status message.
type ActionResponse struct {
	State   *models.RecipeState `json:"state"`
	Message string              `json:"message"`
}

type confirmRequest struct {
	ForceCancelTimer bool `json:"force_cancel_timer"`
}

// listRecipesHandler handles GET /recipes.
func (s *Server) listRecipesHandler(c *echo.Context) error {
	summaries, err := s.sessions.Source().List(c.Request().Context())
	if err != nil {
		slog.Error("Failed to list recipes", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "recipe source unavailable")
	}
	return c.JSON(http.StatusOK, map[string]any{"recipes": summaries})
}

// listSessionsHandler handles GET /sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

// confirmStepHandler handles POST /sessions/:session_id/steps/:step_id/confirm.
//
// A READY step is started first, so a single "done" tap on an untouched
// step both activates and completes it. A running timer blocks the
// confirm unless force_cancel_timer is set; the refusal is a normal 200
// carrying [TIMER_ACTIVE] so the UI can offer the cancel choice, and the
// assistant is prompted to ask about it.
func (s *Server) confirmStepHandler(c *echo.Context) error {
	sess, eng, step, err := s.resolveStep(c)
	if err != nil {
		return err
	}

	var req confirmRequest
	if err := c.Bind(&req); err != nil && c.Request().ContentLength > 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if step.Status == models.StepReady {
		if err := eng.StartStep(step.ID); err != nil {
			return mapServiceError(err)
		}
	}

	if err := eng.ConfirmStepDone(step.ID, req.ForceCancelTimer); err != nil {
		var timerErr *engine.TimerActiveError
		switch {
		case errors.As(err, &timerErr):
			remaining := models.HumanDuration(timerErr.RemainingSecs)
			s.inject(c, sess, fmt.Sprintf(
				"The user tapped done on %q, but its timer still has %s left. "+
					"Ask whether they want to cancel the timer and finish the step now.",
				step.Descr, remaining))
			return c.JSON(http.StatusOK, ActionResponse{
				State: eng.State(),
				Message: fmt.Sprintf("[TIMER_ACTIVE] The timer for %q still has %s left.",
					step.Descr, remaining),
			})
		case errors.Is(err, engine.ErrStepAlreadyCompleted):
			return c.JSON(http.StatusOK, ActionResponse{
				State:   eng.State(),
				Message: fmt.Sprintf("[INFO] %q is already completed.", step.Descr),
			})
		default:
			return mapServiceError(err)
		}
	}

	return c.JSON(http.StatusOK, ActionResponse{
		State:   eng.State(),
		Message: fmt.Sprintf("[DONE] %s.", step.Descr),
	})
}

// startStepTimerHandler handles POST /sessions/:session_id/steps/:step_id/start-timer.
// A READY step is started first, then its timer. The assistant is told
// the UI did it, so it does not start the timer a second time.
func (s *Server) startStepTimerHandler(c *echo.Context) error {
	sess, eng, step, err := s.resolveStep(c)
	if err != nil {
		return err
	}

	if step.Status == models.StepReady {
		if err := eng.StartStep(step.ID); err != nil {
			return mapServiceError(err)
		}
	}

	timer, err := eng.StartTimerForStep(step.ID)
	if err != nil {
		return mapServiceError(err)
	}

	dur := models.HumanDuration(timer.DurationSecs)
	s.inject(c, sess, fmt.Sprintf(
		"The user started the %s timer for %q from the screen. It is already counting down.",
		dur, step.Descr))

	return c.JSON(http.StatusOK, ActionResponse{
		State:   eng.State(),
		Message: fmt.Sprintf("[TIMER RUNNING] %s — %s on the clock.", step.Descr, dur),
	})
}

// cancelTimerHandler handles POST /sessions/:session_id/timers/:timer_id/cancel.
func (s *Server) cancelTimerHandler(c *echo.Context) error {
	sess, err := s.sessions.Get(c.Param("session_id"))
	if err != nil {
		return mapServiceError(err)
	}
	eng, err := sess.Engine()
	if err != nil {
		return mapServiceError(err)
	}

	timerID := c.Param("timer_id")
	var meta *models.ActiveTimer
	for _, t := range eng.Timers().ActiveTimers() {
		if t.ID == timerID {
			meta = &t
			break
		}
	}
	if meta == nil {
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("timer %q not found", timerID))
	}

	if err := eng.CancelStepTimer(meta.StepID); err != nil {
		return mapServiceError(err)
	}

	s.inject(c, sess, fmt.Sprintf(
		"The user cancelled the %q timer from the screen. The step is still in progress.",
		meta.Label))

	return c.JSON(http.StatusOK, ActionResponse{
		State:   eng.State(),
		Message: fmt.Sprintf("[DONE] Timer for %s cancelled.", meta.Label),
	})
}

// resolveStep looks up the session, its engine, and the addressed step.
func (s *Server) resolveStep(c *echo.Context) (*session.Session, *engine.Engine, *models.Step, error) {
	sess, err := s.sessions.Get(c.Param("session_id"))
	if err != nil {
		return nil, nil, nil, mapServiceError(err)
	}
	eng, err := sess.Engine()
	if err != nil {
		return nil, nil, nil, mapServiceError(err)
	}
	step := eng.Recipe().Step(c.Param("step_id"))
	if step == nil {
		return nil, nil, nil, echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("step %q not found", c.Param("step_id")))
	}
	return sess, eng, step, nil
}

// inject queues a system message for the assistant's next turn. Failures
// are logged; a UI action never fails because the assistant is behind.
func (s *Server) inject(c *echo.Context, sess *session.Session, text string) {
	if err := sess.Inbox.InjectSystemMessage(c.Request().Context(), text); err != nil {
		slog.Warn("Failed to inject system message", "session_id", sess.ID, "error", err)
	}
}
