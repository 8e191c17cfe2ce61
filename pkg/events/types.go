// Package events defines the engine's internal event stream and its
// translation into outbound UI events and assistant nudges.
//
// Events flow one way: engine → session sink → Handler → (a) typed UI
// events on the session's WebSocket channel, (b) system-message injections
// into the assistant. Handlers never call back into the engine, which keeps
// the engine's single-lock emission path deadlock-free.
package events

import "github.com/souschef-ai/souschef/pkg/models"

// Kind identifies an engine event.
type Kind string

// Step lifecycle events.
const (
	KindStepReady     Kind = "STEP_READY"
	KindStepStart     Kind = "STEP_START"
	KindStepCompleted Kind = "STEP_COMPLETED"
	KindAllCompleted  Kind = "ALL_COMPLETED"
)

// Timer lifecycle events.
const (
	KindTimerStarted    Kind = "TIMER_STARTED"
	KindTimerDone       Kind = "TIMER_DONE"
	KindTimerCancelled  Kind = "TIMER_CANCELLED"
	KindTimerSet        Kind = "TIMER_SET"
	KindTimerListUpdate Kind = "TIMER_LIST_UPDATE"
	KindReminderTick    Kind = "REMINDER_TICK"
)

// Informational events.
const (
	KindMessage Kind = "MESSAGE"
	KindError   Kind = "ERROR"
)

// Event is one engine emission. Field relevance depends on Kind; unused
// fields are zero. Events reach the session sink in emission order.
type Event struct {
	Kind Kind `json:"kind"`

	StepID          string          `json:"step_id,omitempty"`
	Descr           string          `json:"descr,omitempty"`
	StepType        models.StepType `json:"step_type,omitempty"`
	RequiresConfirm bool            `json:"requires_confirm,omitempty"`

	DurationSecs int    `json:"duration_secs,omitempty"`
	DurationStr  string `json:"duration_str,omitempty"`

	TimerID string               `json:"timer_id,omitempty"`
	Timer   *models.ActiveTimer  `json:"timer,omitempty"`
	Timers  []models.ActiveTimer `json:"timers,omitempty"` // TIMER_LIST_UPDATE

	RemainingSecs int `json:"remaining_secs,omitempty"` // REMINDER_TICK

	RecipeTitle string `json:"recipe_title,omitempty"` // ALL_COMPLETED
	Message     string `json:"message,omitempty"`      // MESSAGE / ERROR
}

// Sink receives engine events for one session. Set by the transport at
// session start. Implementations must not block on the emission path and
// must not call back into the emitting engine.
type Sink func(Event)
