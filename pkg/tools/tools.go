package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/souschef-ai/souschef/pkg/engine"
	"github.com/souschef-ai/souschef/pkg/events"
	"github.com/souschef-ai/souschef/pkg/models"
	"github.com/souschef-ai/souschef/pkg/recipes"
	"github.com/souschef-ai/souschef/pkg/session"
)

const kitchenTimerID = "kitchen_timer"

func (r *Registry) registerAll() {
	r.register(&Tool{
		Name:        "list_available_recipes",
		Description: "List the recipes the user can cook, with ids and titles.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     r.listAvailableRecipes,
	})
	r.register(&Tool{
		Name: "start_recipe",
		Description: "Load a recipe and start a cooking session for it. " +
			"Returns a step reference block for internal use; do not read ids aloud.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{
			"recipe_id":{"type":"string","description":"Recipe id from list_available_recipes. Optional if the session already has a recipe."}
		}}`),
		Handler: r.startRecipe,
	})
	r.register(&Tool{
		Name:        "stop_recipe_session",
		Description: "Stop the current recipe session and cancel all its timers.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     r.stopRecipeSession,
	})
	r.register(&Tool{
		Name:        "get_current_step",
		Description: "Describe the active step(s) and what is ready to start next.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     r.getCurrentStep,
	})
	r.register(&Tool{
		Name:        "repeat_step",
		Description: "Repeat the current step instructions for the user.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     r.getCurrentStep,
	})
	r.register(&Tool{
		Name:        "get_recipe_state",
		Description: "Full structured snapshot of the recipe run. For the UI; not normally narrated.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     r.getRecipeState,
	})
	r.register(&Tool{
		Name:        "start_step",
		Description: "Start a step that is READY. Identify it by id or by describing it.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{
			"step_id":{"type":"string"},
			"step_description":{"type":"string","description":"Free-text description of the step when the id is unknown."}
		}}`),
		Handler: r.startStep,
	})
	r.register(&Tool{
		Name:        "start_timer_for_step",
		Description: "Begin the countdown for an active timer step.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{
			"step_id":{"type":"string"}
		},"required":["step_id"]}`),
		Handler: r.startTimerForStep,
	})
	r.register(&Tool{
		Name: "confirm_step_done",
		Description: "Mark a step as completed. Refuses while the step's timer is " +
			"still running unless force_cancel_timer is true.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{
			"step_id":{"type":"string"},
			"step_description":{"type":"string"},
			"force_cancel_timer":{"type":"boolean"}
		}}`),
		Handler: r.confirmStepDone,
	})
	r.register(&Tool{
		Name:        "get_active_timers",
		Description: "List all running timers with their remaining time.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     r.getActiveTimers,
	})
	r.register(&Tool{
		Name:        "start_kitchen_timer",
		Description: "Start the free-standing kitchen timer widget, independent of any step.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{
			"seconds":{"type":"integer","minimum":1},
			"label":{"type":"string"}
		},"required":["seconds"]}`),
		Handler: r.startKitchenTimer,
	})
	r.register(&Tool{
		Name:        "pause_kitchen_timer",
		Description: "Pause the kitchen timer widget.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     r.pauseKitchenTimer,
	})
	r.register(&Tool{
		Name:        "resume_kitchen_timer",
		Description: "Resume the kitchen timer widget, optionally overriding the remaining seconds.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{
			"seconds":{"type":"integer","minimum":1}
		}}`),
		Handler: r.resumeKitchenTimer,
	})
	r.register(&Tool{
		Name:        "reset_kitchen_timer",
		Description: "Reset the kitchen timer widget, defaulting to its last duration.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{
			"seconds":{"type":"integer","minimum":1}
		}}`),
		Handler: r.resetKitchenTimer,
	})
}

// engineFor resolves the session's engine or returns a ready-made
// status-coded refusal.
func (r *Registry) engineFor(args map[string]any) (*engine.Engine, string) {
	sessionID := strArg(args, "session_id")
	eng, err := r.sessions.Engine(sessionID)
	switch {
	case err == nil:
		return eng, ""
	case errors.Is(err, session.ErrSessionNotFound):
		return nil, StatusError + " No session. The transport must connect before tools can run."
	case errors.Is(err, session.ErrNoRecipe):
		return nil, StatusInfo + " No recipe in progress. Use start_recipe first."
	default:
		return nil, fmt.Sprintf("%s %v", StatusError, err)
	}
}

func (r *Registry) listAvailableRecipes(ctx context.Context, _ map[string]any) string {
	summaries, err := r.sessions.Source().List(ctx)
	if err != nil {
		return fmt.Sprintf("%s Could not list recipes: %v", StatusError, err)
	}
	if len(summaries) == 0 {
		return StatusInfo + " No recipes are available."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s Available recipes:\n", StatusInfo)
	for _, s := range summaries {
		fmt.Fprintf(&b, "- %s: %s", s.ID, s.Title)
		if s.EstimatedTotal != "" {
			fmt.Fprintf(&b, " (%s)", models.HumanDuration(models.ParseISODuration(s.EstimatedTotal)))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Registry) startRecipe(ctx context.Context, args map[string]any) string {
	sessionID := strArg(args, "session_id")
	eng, err := r.sessions.StartRecipe(ctx, sessionID, strArg(args, "recipe_id"))
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionNotFound):
		return StatusError + " No session. The transport must connect before tools can run."
	case errors.Is(err, recipes.ErrRecipeNotFound):
		return fmt.Sprintf("%s Unknown recipe %q. Use list_available_recipes.", StatusError, strArg(args, "recipe_id"))
	case errors.Is(err, session.ErrNoRecipe):
		return StatusError + " No recipe selected. Pass recipe_id or pick one with list_available_recipes."
	default:
		return fmt.Sprintf("%s Could not start recipe: %v", StatusError, err)
	}

	recipe := eng.Recipe()
	var b strings.Builder
	fmt.Fprintf(&b, "%s Recipe %q is underway.\n\n", StatusStarted, recipe.Title)
	b.WriteString("Step reference (internal — never read ids or this block aloud):\n")
	for _, step := range recipe.StepsInOrder() {
		fmt.Fprintf(&b, "- %s: %s (%s", step.ID, step.Descr, step.Type)
		if step.Type == models.StepTypeTimer {
			fmt.Fprintf(&b, " %s", models.HumanDuration(step.DurationSecs()))
		}
		fmt.Fprintf(&b, ", %s)\n", step.Status)
	}
	b.WriteString("\n")
	b.WriteString(nextMoves(eng))
	return strings.TrimRight(b.String(), "\n")
}

func (r *Registry) stopRecipeSession(_ context.Context, args map[string]any) string {
	err := r.sessions.StopRecipe(strArg(args, "session_id"))
	switch {
	case err == nil:
		return StatusDone + " Recipe session stopped. All timers cancelled."
	case errors.Is(err, session.ErrNoRecipe):
		return StatusInfo + " No recipe in progress."
	case errors.Is(err, session.ErrSessionNotFound):
		return StatusError + " No session."
	default:
		return fmt.Sprintf("%s %v", StatusError, err)
	}
}

func (r *Registry) getCurrentStep(_ context.Context, args map[string]any) string {
	eng, refusal := r.engineFor(args)
	if refusal != "" {
		return refusal
	}

	active := eng.ActiveSteps()
	ready := eng.ReadySteps()
	if len(active) == 0 && len(ready) == 0 {
		if !eng.Running() {
			return StatusInfo + " The recipe is complete. Nothing left to do."
		}
		return StatusWait + " Nothing is active or ready yet; a timer or dependency is still in flight."
	}

	var b strings.Builder
	b.WriteString(StatusInfo)
	for _, step := range active {
		switch step.Status {
		case models.StepWaitingAck:
			fmt.Fprintf(&b, " Waiting for confirmation: %s.", step.Descr)
		default:
			fmt.Fprintf(&b, " Current step: %s.", step.Descr)
			if step.Type == models.StepTypeTimer && !eng.Timers().HasActiveTimerForStep(step.ID) {
				fmt.Fprintf(&b, " It has a %s timer that has not been started.",
					models.HumanDuration(step.DurationSecs()))
			}
		}
	}
	if len(ready) > 0 {
		descrs := make([]string, 0, len(ready))
		for _, step := range ready {
			descrs = append(descrs, step.Descr)
		}
		fmt.Fprintf(&b, " Ready to start: %s.", strings.Join(descrs, "; "))
	}
	return b.String()
}

func (r *Registry) getRecipeState(_ context.Context, args map[string]any) string {
	eng, refusal := r.engineFor(args)
	if refusal != "" {
		return refusal
	}
	data, err := json.Marshal(eng.State())
	if err != nil {
		return fmt.Sprintf("%s Could not serialize state: %v", StatusError, err)
	}
	return string(data)
}

func (r *Registry) startStep(_ context.Context, args map[string]any) string {
	eng, refusal := r.engineFor(args)
	if refusal != "" {
		return refusal
	}

	step, candidates := matchStep(eng.Recipe(), strArg(args, "step_id"),
		strArg(args, "step_description"), models.StepReady)
	if step == nil {
		if len(candidates) > 0 {
			return r.ambiguous(eng, "start", candidates)
		}
		return r.noMatch(eng, "start", strArg(args, "step_id"))
	}

	if err := eng.StartStep(step.ID); err != nil {
		return r.mapEngineError(eng, "start", step, err)
	}

	msg := fmt.Sprintf("%s %s.", StatusStarted, step.Descr)
	if step.Type == models.StepTypeTimer {
		msg += fmt.Sprintf(" This step has a %s timer; start it with start_timer_for_step when the user is ready.",
			models.HumanDuration(step.DurationSecs()))
	}
	return msg
}

func (r *Registry) startTimerForStep(_ context.Context, args map[string]any) string {
	eng, refusal := r.engineFor(args)
	if refusal != "" {
		return refusal
	}

	stepID := strArg(args, "step_id")
	step := eng.Recipe().Step(stepID)
	if step == nil {
		return r.noMatch(eng, "time", stepID)
	}

	timer, err := eng.StartTimerForStep(stepID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrTimerAlreadyRunning):
			t := eng.Timers().TimerForStep(stepID)
			remaining := 0
			if t != nil {
				remaining = t.RemainingSecs()
			}
			return r.blocked(eng,
				fmt.Sprintf("The timer for %q is already running with %s left.",
					step.Descr, models.HumanDuration(remaining)),
				"Let it run, or cancel it first if the user wants to restart it.")
		case errors.Is(err, engine.ErrTimerDuration):
			return r.blocked(eng, fmt.Sprintf("%q has no timer to start.", step.Descr),
				"Use confirm_step_done when the user finishes it.")
		default:
			return r.mapEngineError(eng, "time", step, err)
		}
	}

	return fmt.Sprintf("%s %s — %s on the clock.", StatusTimerRunning, step.Descr,
		models.HumanDuration(timer.DurationSecs))
}

func (r *Registry) confirmStepDone(_ context.Context, args map[string]any) string {
	eng, refusal := r.engineFor(args)
	if refusal != "" {
		return refusal
	}

	step, candidates := matchStep(eng.Recipe(), strArg(args, "step_id"),
		strArg(args, "step_description"), models.StepActive, models.StepWaitingAck)
	if step == nil {
		if len(candidates) > 0 {
			return r.ambiguous(eng, "confirm", candidates)
		}
		// With exactly one step in play, an unqualified confirm means it.
		if active := eng.ActiveSteps(); len(active) == 1 &&
			strArg(args, "step_id") == "" && strArg(args, "step_description") == "" {
			step = active[0]
		} else {
			return r.noMatch(eng, "confirm", strArg(args, "step_id"))
		}
	}

	err := eng.ConfirmStepDone(step.ID, boolArg(args, "force_cancel_timer"))
	if err != nil {
		var timerErr *engine.TimerActiveError
		switch {
		case errors.As(err, &timerErr):
			return fmt.Sprintf("%s The timer for %q still has %s left. "+
				"Ask the user whether to cancel it; if yes, call confirm_step_done with force_cancel_timer=true.",
				StatusTimerActive, step.Descr, models.HumanDuration(timerErr.RemainingSecs))
		case errors.Is(err, engine.ErrStepAlreadyCompleted):
			return fmt.Sprintf("%s %q is already completed.", StatusInfo, step.Descr)
		default:
			return r.mapEngineError(eng, "confirm", step, err)
		}
	}

	msg := fmt.Sprintf("%s %s.", StatusDone, step.Descr)
	if next := nextMoves(eng); next != "" {
		msg += " " + next
	}
	return msg
}

func (r *Registry) getActiveTimers(_ context.Context, args map[string]any) string {
	eng, refusal := r.engineFor(args)
	if refusal != "" {
		return refusal
	}

	timers := eng.Timers().ActiveTimers()
	if len(timers) == 0 {
		return StatusInfo + " No timers running."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s Running timers:\n", StatusInfo)
	for i := range timers {
		t := &timers[i]
		fmt.Fprintf(&b, "- %s: %s remaining\n", t.Label, models.HumanDuration(t.RemainingSecs()))
	}
	return strings.TrimRight(b.String(), "\n")
}

// --- kitchen timer widget control ---

func (r *Registry) startKitchenTimer(ctx context.Context, args map[string]any) string {
	secs := intArg(args, "seconds")
	if secs <= 0 {
		return StatusError + " The kitchen timer needs a positive number of seconds."
	}
	label := strArg(args, "label")
	if label == "" {
		label = "Kitchen timer"
	}

	sessionID := strArg(args, "session_id")
	err := r.sessions.SendControl(ctx, sessionID, events.ControlTimerStart, map[string]any{
		"timer_id":      kitchenTimerID,
		"duration_secs": secs,
		"label":         label,
	})
	if err != nil {
		return r.kitchenFailure(err)
	}

	r.kitchenMu.Lock()
	r.kitchenSecs[sessionID] = secs
	r.kitchenMu.Unlock()

	return fmt.Sprintf("%s Kitchen timer set for %s.", StatusStarted, models.HumanDuration(secs))
}

func (r *Registry) pauseKitchenTimer(ctx context.Context, args map[string]any) string {
	err := r.sessions.SendControl(ctx, strArg(args, "session_id"),
		events.ControlTimerPause, map[string]any{"timer_id": kitchenTimerID})
	if err != nil {
		return r.kitchenFailure(err)
	}
	return StatusDone + " Kitchen timer paused."
}

func (r *Registry) resumeKitchenTimer(ctx context.Context, args map[string]any) string {
	extra := map[string]any{"timer_id": kitchenTimerID}
	if secs := intArg(args, "seconds"); secs > 0 {
		extra["duration_secs"] = secs
	}
	err := r.sessions.SendControl(ctx, strArg(args, "session_id"),
		events.ControlTimerResume, extra)
	if err != nil {
		return r.kitchenFailure(err)
	}
	return StatusStarted + " Kitchen timer resumed."
}

func (r *Registry) resetKitchenTimer(ctx context.Context, args map[string]any) string {
	sessionID := strArg(args, "session_id")
	secs := intArg(args, "seconds")
	if secs <= 0 {
		r.kitchenMu.Lock()
		secs = r.kitchenSecs[sessionID]
		r.kitchenMu.Unlock()
	}
	if secs <= 0 {
		return StatusError + " No previous kitchen timer to reset; pass seconds."
	}

	err := r.sessions.SendControl(ctx, sessionID, events.ControlTimerReset, map[string]any{
		"timer_id":      kitchenTimerID,
		"duration_secs": secs,
	})
	if err != nil {
		return r.kitchenFailure(err)
	}
	return fmt.Sprintf("%s Kitchen timer reset to %s.", StatusDone, models.HumanDuration(secs))
}

func (r *Registry) kitchenFailure(err error) string {
	switch {
	case errors.Is(err, session.ErrNoOutput):
		return StatusError + " No cooking display is connected, so the kitchen timer is unavailable."
	case errors.Is(err, session.ErrSessionNotFound):
		return StatusError + " No session."
	default:
		return fmt.Sprintf("%s Kitchen timer control failed: %v", StatusError, err)
	}
}

// --- refusal formatting ---

// mapEngineError turns engine errors into status-coded responses the model
// can act on.
func (r *Registry) mapEngineError(eng *engine.Engine, verb string, step *models.Step, err error) string {
	var stateErr *engine.StepStateError
	switch {
	case errors.As(err, &stateErr):
		reason := fmt.Sprintf("%q is %s.", step.Descr, strings.ToLower(string(stateErr.Status)))
		action := "Use get_current_step to see what can happen next."
		if len(stateErr.BlockedBy) > 0 {
			var unmet []string
			for _, dep := range stateErr.BlockedBy {
				if d := eng.Recipe().Step(dep); d != nil {
					unmet = append(unmet, d.Descr)
				} else {
					unmet = append(unmet, dep)
				}
			}
			reason = fmt.Sprintf("%q is blocked by: %s.", step.Descr, strings.Join(unmet, "; "))
			action = "Finish the blocking steps first."
		}
		return r.blocked(eng, reason, action)
	case errors.Is(err, engine.ErrNotRunning):
		return StatusInfo + " No recipe in progress. Use start_recipe first."
	default:
		return fmt.Sprintf("%s Could not %s the step: %v", StatusError, verb, err)
	}
}

func (r *Registry) ambiguous(eng *engine.Engine, verb string, candidates []*models.Step) string {
	var names []string
	for _, step := range candidates {
		names = append(names, step.Descr)
	}
	return r.blocked(eng,
		fmt.Sprintf("That description matches several steps: %s.", strings.Join(names, "; ")),
		fmt.Sprintf("Ask the user which one to %s, then call again with its step_id.", verb))
}

// noMatch distinguishes a bad id from an unresolvable description: an
// explicit step_id that hits nothing is the model's error, a description
// that fits no step is a state mismatch.
func (r *Registry) noMatch(eng *engine.Engine, verb, stepID string) string {
	if stepID != "" {
		return fmt.Sprintf("%s No step with id %q in this recipe. Use get_recipe_state for the step list.",
			StatusError, stepID)
	}
	return r.blocked(eng, "No step matches that description.",
		fmt.Sprintf("Check get_current_step and %s one of the listed steps.", verb))
}

// blocked builds the two-section refusal every [BLOCKED] response carries.
func (r *Registry) blocked(eng *engine.Engine, reason, action string) string {
	var active, ready, waiting []string
	for _, step := range eng.Recipe().StepsInOrder() {
		switch step.Status {
		case models.StepActive:
			active = append(active, fmt.Sprintf("%s (%s)", step.Descr, step.ID))
		case models.StepReady:
			ready = append(ready, fmt.Sprintf("%s (%s)", step.Descr, step.ID))
		case models.StepWaitingAck:
			waiting = append(waiting, fmt.Sprintf("%s (%s)", step.Descr, step.ID))
		}
	}
	return fmt.Sprintf("%s %s\nCurrent: active=[%s], ready=[%s], waiting=[%s]\nAction: %s",
		StatusBlocked, reason,
		strings.Join(active, "; "), strings.Join(ready, "; "), strings.Join(waiting, "; "),
		action)
}

// nextMoves summarizes what just became possible, for [DONE]/[STARTED]
// responses.
func nextMoves(eng *engine.Engine) string {
	if !eng.Running() {
		return "That was the last step — the recipe is complete."
	}
	active := eng.ActiveSteps()
	ready := eng.ReadySteps()
	var parts []string
	for _, step := range active {
		parts = append(parts, fmt.Sprintf("now active: %s", step.Descr))
	}
	for _, step := range ready {
		parts = append(parts, fmt.Sprintf("ready: %s", step.Descr))
	}
	if len(parts) == 0 {
		return "Nothing new is ready yet."
	}
	return "Next — " + strings.Join(parts, "; ") + "."
}
