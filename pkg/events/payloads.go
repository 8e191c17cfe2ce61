package events

import (
	"encoding/json"

	"github.com/souschef-ai/souschef/pkg/models"
)

// Outbound UI event types carried on the session channel.
const (
	UITypeSessionInfo   = "session_info"
	UITypeRecipeState   = "recipe_state"
	UITypeRecipeMessage = "recipe_message"
	UITypeRecipeError   = "recipe_error"
	UITypeManagerSystem = "manager_system"
	UITypeControl       = "control"
	UITypeTimerList     = "timer_list"
)

// manager_system subtypes.
const (
	SystemTimerDone    = "timer_done"
	SystemReminderTick = "reminder_tick"
)

// control actions.
const (
	ControlTimerStart  = "timer_start"
	ControlTimerCancel = "timer_cancel"
	ControlTimerPause  = "timer_pause"
	ControlTimerResume = "timer_resume"
	ControlTimerReset  = "timer_reset"
	ControlFocusStep   = "focus_step"
)

// UIEvent is one typed outbound message. It marshals flat: the payload
// fields sit next to "type" at the top level, which is what the UI expects.
type UIEvent struct {
	Type string
	Data map[string]any
}

// MarshalJSON flattens Data alongside the type discriminator.
func (e UIEvent) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		m[k] = v
	}
	m["type"] = e.Type
	return json.Marshal(m)
}

// SessionInfo builds the handshake event sent first on every session.
func SessionInfo(sessionID, mode, recipeID string) UIEvent {
	data := map[string]any{"session_id": sessionID, "mode": mode}
	if recipeID != "" {
		data["recipe_id"] = recipeID
	}
	return UIEvent{Type: UITypeSessionInfo, Data: data}
}

// RecipeStateEvent wraps a fresh engine snapshot.
func RecipeStateEvent(state *models.RecipeState) UIEvent {
	return UIEvent{Type: UITypeRecipeState, Data: map[string]any{"state": state}}
}

// RecipeMessage carries engine MESSAGE events (on_enter "say" actions).
func RecipeMessage(message string) UIEvent {
	return UIEvent{Type: UITypeRecipeMessage, Data: map[string]any{"message": message}}
}

// RecipeError carries engine-level errors to the UI.
func RecipeError(message string) UIEvent {
	return UIEvent{Type: UITypeRecipeError, Data: map[string]any{"message": message}}
}

// Control builds a control event with the given action and extra fields.
func Control(action string, extra map[string]any) UIEvent {
	data := map[string]any{"action": action}
	for k, v := range extra {
		data[k] = v
	}
	return UIEvent{Type: UITypeControl, Data: data}
}

// TimerList carries the full active-timer list, sorted by remaining time.
func TimerList(timers []models.ActiveTimer) UIEvent {
	views := make([]map[string]any, 0, len(timers))
	for i := range timers {
		t := &timers[i]
		views = append(views, map[string]any{
			"id":             t.ID,
			"step_id":        t.StepID,
			"label":          t.Label,
			"duration_secs":  t.DurationSecs,
			"remaining_secs": t.RemainingSecs(),
		})
	}
	return UIEvent{Type: UITypeTimerList, Data: map[string]any{
		"timers": views,
		"count":  len(views),
	}}
}

// ManagerSystem builds a manager_system event (timer_done, reminder_tick).
func ManagerSystem(subtype, stepID string, extra map[string]any) UIEvent {
	data := map[string]any{"system_type": subtype, "step_id": stepID}
	for k, v := range extra {
		data[k] = v
	}
	return UIEvent{Type: UITypeManagerSystem, Data: data}
}
