package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/souschef-ai/souschef/pkg/assistant"
	"github.com/souschef-ai/souschef/pkg/models"
)

// Handler translates engine events for one session into outbound UI events
// and assistant injections. It is the single place that decides whether a
// notification is spoken or silently added to the assistant's context.
//
// Handler failures never reach the engine: every path logs and swallows.
type Handler struct {
	sessionID string
	out       OutputChannel
	assistant assistant.Assistant
	state     func() *models.RecipeState

	sendTimeout time.Duration
}

// NewHandler builds a handler for one session. state is called whenever a
// fresh recipe_state snapshot is due (typically engine.State).
func NewHandler(sessionID string, out OutputChannel, asst assistant.Assistant, state func() *models.RecipeState) *Handler {
	return &Handler{
		sessionID:   sessionID,
		out:         out,
		assistant:   asst,
		state:       state,
		sendTimeout: DefaultWriteTimeout,
	}
}

// Handle is the session sink. Safe to call from engine goroutines; it never
// panics and never calls back into the engine.
func (h *Handler) Handle(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panic", "session_id", h.sessionID, "kind", ev.Kind, "panic", r)
		}
	}()

	switch ev.Kind {
	case KindStepReady, KindStepCompleted, KindTimerSet:
		h.sendState()

	case KindStepStart:
		h.sendState()
		h.send(Control(ControlFocusStep, map[string]any{"step_id": ev.StepID}))

	case KindAllCompleted:
		h.sendState()
		h.inject(fmt.Sprintf("The recipe %q is complete. Congratulate the user on finishing the dish.", ev.RecipeTitle))

	case KindTimerStarted:
		h.send(Control(ControlTimerStart, map[string]any{
			"step_id":       ev.StepID,
			"timer_id":      ev.TimerID,
			"duration_secs": ev.DurationSecs,
			"label":         timerLabel(ev),
		}))

	case KindTimerListUpdate:
		h.sendState()
		h.send(TimerList(ev.Timers))

	case KindTimerCancelled:
		h.send(Control(ControlTimerCancel, map[string]any{
			"step_id":  ev.StepID,
			"timer_id": ev.TimerID,
		}))

	case KindTimerDone:
		h.send(ManagerSystem(SystemTimerDone, ev.StepID, map[string]any{
			"label":            timerLabel(ev),
			"requires_confirm": ev.RequiresConfirm,
		}))
		if ev.RequiresConfirm {
			h.inject(fmt.Sprintf("The timer for %q just finished. Tell the user and ask them to confirm the step is done.", ev.Descr))
		} else {
			h.memo(fmt.Sprintf("Timer for step %q finished; the step auto-completed. No announcement needed.", ev.StepID))
		}

	case KindReminderTick:
		h.send(ManagerSystem(SystemReminderTick, ev.StepID, map[string]any{
			"label": timerLabel(ev),
		}))
		h.inject(fmt.Sprintf("Gently remind the user that %q is still waiting to be confirmed.", ev.Descr))

	case KindMessage:
		h.send(RecipeMessage(ev.Message))

	case KindError:
		h.send(RecipeError(ev.Message))
	}
}

func (h *Handler) sendState() {
	if h.state == nil {
		return
	}
	h.send(RecipeStateEvent(h.state()))
}

func (h *Handler) send(ev UIEvent) {
	if h.out == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	defer cancel()
	if err := h.out.Send(ctx, ev); err != nil {
		slog.Warn("Failed to send UI event",
			"session_id", h.sessionID, "type", ev.Type, "error", err)
	}
}

func (h *Handler) inject(text string) {
	if h.assistant == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	defer cancel()
	if err := h.assistant.InjectSystemMessage(ctx, text); err != nil {
		slog.Warn("Failed to inject assistant message", "session_id", h.sessionID, "error", err)
	}
}

func (h *Handler) memo(text string) {
	if h.assistant == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	defer cancel()
	if err := h.assistant.AddSystemMemo(ctx, text); err != nil {
		slog.Warn("Failed to add assistant memo", "session_id", h.sessionID, "error", err)
	}
}

func timerLabel(ev Event) string {
	if ev.Timer != nil && ev.Timer.Label != "" {
		return ev.Timer.Label
	}
	return ev.Descr
}
