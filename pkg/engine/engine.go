// Package engine drives one cooking session through a recipe's step DAG:
// frontier computation, explicit step starts, countdown timers, completion
// confirmation, and dependency unlocking. One Engine instance per session;
// instances share nothing.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/souschef-ai/souschef/pkg/events"
	"github.com/souschef-ai/souschef/pkg/models"
)

// Engine owns all mutable session state for one recipe run. All public
// methods are safe for concurrent use.
//
// Events are appended to an internal FIFO under the state lock and
// delivered to the sink by a dedicated goroutine, so sinks may call back
// into State() without deadlocking and can never stall a mutation.
type Engine struct {
	sessionID string
	recipe    *models.Recipe
	timers    *TimerManager

	mu        sync.Mutex
	running   bool
	completed map[string]bool
	order     []string // completion order

	sinkMu sync.Mutex
	sink   events.Sink

	dispatchMu sync.Mutex
	cond       *sync.Cond
	queue      []events.Event
	stopped    bool
	drained    chan struct{}
}

// New creates an engine for one session over a freshly parsed recipe.
// The recipe instance must not be shared with another engine.
func New(sessionID string, recipe *models.Recipe) *Engine {
	e := &Engine{
		sessionID: sessionID,
		recipe:    recipe,
		completed: make(map[string]bool),
		drained:   make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.dispatchMu)
	e.timers = NewTimerManager(e.emitFrom, e.handleTimerFired)
	go e.dispatch()
	return e
}

// SetSink installs the session sink. Events emitted before a sink is set
// are dropped. May be swapped while running (reconnect).
func (e *Engine) SetSink(s events.Sink) {
	e.sinkMu.Lock()
	e.sink = s
	e.sinkMu.Unlock()
}

// SessionID returns the owning session id.
func (e *Engine) SessionID() string { return e.sessionID }

// Recipe returns the engine's recipe document.
func (e *Engine) Recipe() *models.Recipe { return e.recipe }

// Timers exposes the timer manager for free-standing kitchen timers.
// Step-bound timers go through StartTimerForStep and ConfirmStepDone.
func (e *Engine) Timers() *TimerManager { return e.timers }

// Running reports whether the session is active (started and not yet
// completed or stopped).
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start computes the initial frontier: every step with an empty depends_on
// set becomes READY, in document order. If exactly one frontier step is
// marked auto_start it is started immediately. Idempotent: a second Start
// on a running engine is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	e.running = true

	var frontier []*models.Step
	for _, step := range e.recipe.StepsInOrder() {
		if len(step.DependsOn) == 0 && step.Status == models.StepPending {
			frontier = append(frontier, step)
		}
	}
	if len(frontier) == 0 {
		e.running = false
		e.enqueue(events.Event{
			Kind:    events.KindError,
			Message: fmt.Sprintf("recipe %q has no initial steps", e.recipe.ID),
		})
		return ErrNoInitialSteps
	}

	for _, step := range frontier {
		e.markReadyLocked(step)
	}

	var auto *models.Step
	for _, step := range frontier {
		if step.AutoStart {
			if auto != nil {
				auto = nil
				break
			}
			auto = step
		}
	}
	if auto != nil {
		e.startStepLocked(auto)
	}

	slog.Info("Session started", "session_id", e.sessionID,
		"recipe_id", e.recipe.ID, "frontier", len(frontier))
	return nil
}

// StartStep transitions a READY step to ACTIVE, running its on_enter
// actions. Timer steps do not start their countdown here; that is a
// separate, explicit StartTimerForStep call.
func (e *Engine) StartStep(stepID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNotRunning
	}
	step := e.recipe.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}
	if step.Status != models.StepReady {
		return e.stepStateErrLocked("start_step", step)
	}

	e.startStepLocked(step)
	return nil
}

// StartTimerForStep begins the countdown for an ACTIVE timer step. The
// timer metadata is registered before TIMER_STARTED goes out, so any
// snapshot taken from that point on carries the end timestamp.
func (e *Engine) StartTimerForStep(stepID string) (*models.ActiveTimer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil, ErrNotRunning
	}
	step := e.recipe.Step(stepID)
	if step == nil {
		return nil, fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}
	if step.Status != models.StepActive {
		return nil, e.stepStateErrLocked("start_timer", step)
	}
	if step.Type != models.StepTypeTimer || step.DurationSecs() <= 0 {
		return nil, ErrTimerDuration
	}
	if e.timers.HasActiveTimerForStep(stepID) {
		return nil, ErrTimerAlreadyRunning
	}

	e.timers.SetTimerMetadata(stepID, step.DurationSecs())
	return e.timers.StartTimerForStep(step)
}

// CancelStepTimer cancels an ACTIVE step's running countdown without
// completing the step. The step stays ACTIVE and the timer can be
// restarted.
func (e *Engine) CancelStepTimer(stepID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNotRunning
	}
	step := e.recipe.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}
	if !e.timers.CancelTimerForStep(stepID, false) {
		return fmt.Errorf("%w: step %q", ErrTimerNotFound, stepID)
	}

	e.enqueue(events.Event{
		Kind:    events.KindTimerCancelled,
		StepID:  stepID,
		TimerID: TimerIDForStep(stepID),
	})
	e.enqueue(events.Event{Kind: events.KindTimerListUpdate, Timers: e.timers.ActiveTimers()})
	return nil
}

// ConfirmStepDone completes an ACTIVE or WAITING_ACK step and unlocks its
// dependents. A running countdown blocks the confirm unless
// forceCancelTimer is set, in which case the timer is cancelled silently.
// Confirming an already-completed step returns ErrStepAlreadyCompleted
// and changes nothing.
func (e *Engine) ConfirmStepDone(stepID string, forceCancelTimer bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNotRunning
	}
	step := e.recipe.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}

	switch step.Status {
	case models.StepCompleted:
		return fmt.Errorf("%w: %q", ErrStepAlreadyCompleted, stepID)
	case models.StepActive, models.StepWaitingAck:
	default:
		return e.stepStateErrLocked("confirm_step_done", step)
	}

	if e.timers.HasActiveTimerForStep(stepID) {
		if !forceCancelTimer {
			t := e.timers.TimerForStep(stepID)
			remaining := 0
			if t != nil {
				remaining = t.RemainingSecs()
			}
			return &TimerActiveError{StepID: stepID, RemainingSecs: remaining}
		}
		e.timers.CancelTimerForStep(stepID, false)
		e.enqueue(events.Event{Kind: events.KindTimerListUpdate, Timers: e.timers.ActiveTimers()})
	}
	e.timers.CancelReminder(stepID)

	e.completeLocked(step)
	return nil
}

// State builds a full snapshot: every step in document order with its
// current status, plus timer info for timer steps that have one registered.
func (e *Engine) State() *models.RecipeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// ActiveSteps returns the ACTIVE and WAITING_ACK steps in document order.
func (e *Engine) ActiveSteps() []*models.Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*models.Step
	for _, step := range e.recipe.StepsInOrder() {
		if step.Status == models.StepActive || step.Status == models.StepWaitingAck {
			out = append(out, step)
		}
	}
	return out
}

// ReadySteps returns the READY steps in document order.
func (e *Engine) ReadySteps() []*models.Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*models.Step
	for _, step := range e.recipe.StepsInOrder() {
		if step.Status == models.StepReady {
			out = append(out, step)
		}
	}
	return out
}

// Stop ends the session: cancels every timer and reminder, marks the
// engine not running, and drains the event queue. No event is delivered
// after Stop returns. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	wasRunning := e.running
	e.running = false
	e.mu.Unlock()

	e.timers.CancelAll()

	e.dispatchMu.Lock()
	if !e.stopped {
		e.stopped = true
		e.cond.Signal()
	}
	e.dispatchMu.Unlock()
	<-e.drained

	if wasRunning {
		slog.Info("Session stopped", "session_id", e.sessionID, "recipe_id", e.recipe.ID)
	}
}

// --- internal ---

func (e *Engine) markReadyLocked(step *models.Step) {
	step.Status = models.StepReady
	ev := events.Event{
		Kind:            events.KindStepReady,
		StepID:          step.ID,
		Descr:           step.Descr,
		StepType:        step.Type,
		RequiresConfirm: step.RequiresConfirm,
	}
	if step.Type == models.StepTypeTimer {
		ev.DurationSecs = step.DurationSecs()
		ev.DurationStr = models.HumanDuration(ev.DurationSecs)
	}
	e.enqueue(ev)
}

func (e *Engine) startStepLocked(step *models.Step) {
	step.Status = models.StepActive

	for _, action := range step.OnEnter {
		if action.Say != "" {
			e.enqueue(events.Event{Kind: events.KindMessage, StepID: step.ID, Message: action.Say})
		}
	}

	ev := events.Event{
		Kind:            events.KindStepStart,
		StepID:          step.ID,
		Descr:           step.Descr,
		StepType:        step.Type,
		RequiresConfirm: step.RequiresConfirm,
	}
	if step.Type == models.StepTypeTimer {
		ev.DurationSecs = step.DurationSecs()
		ev.DurationStr = models.HumanDuration(ev.DurationSecs)
	}
	e.enqueue(ev)

	slog.Debug("Step started", "session_id", e.sessionID, "step_id", step.ID)
}

// completeLocked marks a step COMPLETED, emits STEP_COMPLETED, unlocks
// dependents, and handles recipe completion and auto-start.
func (e *Engine) completeLocked(step *models.Step) {
	step.Status = models.StepCompleted
	e.completed[step.ID] = true
	e.order = append(e.order, step.ID)

	e.enqueue(events.Event{
		Kind:   events.KindStepCompleted,
		StepID: step.ID,
		Descr:  step.Descr,
	})

	var newlyReady []*models.Step
	for _, nextID := range step.Next {
		cand := e.recipe.Step(nextID)
		if cand == nil || cand.Status != models.StepPending {
			continue
		}
		if e.satisfiedLocked(cand) {
			e.markReadyLocked(cand)
			newlyReady = append(newlyReady, cand)
		}
	}

	if len(e.completed) == len(e.recipe.Steps) {
		e.running = false
		e.enqueue(events.Event{
			Kind:        events.KindAllCompleted,
			RecipeTitle: e.recipe.Title,
		})
		slog.Info("Recipe completed", "session_id", e.sessionID, "recipe_id", e.recipe.ID)
		return
	}

	if len(newlyReady) == 1 && newlyReady[0].AutoStart {
		e.startStepLocked(newlyReady[0])
	}
}

// satisfiedLocked evaluates a PENDING step's unlock predicate against the
// completed set.
func (e *Engine) satisfiedLocked(step *models.Step) bool {
	if len(step.DependsOn) == 0 {
		return true
	}
	if step.UnlockWhen == models.UnlockAny {
		for _, dep := range step.DependsOn {
			if e.completed[dep] {
				return true
			}
		}
		return false
	}
	for _, dep := range step.DependsOn {
		if !e.completed[dep] {
			return false
		}
	}
	return true
}

// handleTimerFired runs on the timer worker goroutine after the countdown
// elapses. Steps with requires_confirm move to WAITING_ACK and get their
// reminder loop; others complete immediately. Free-standing kitchen timers
// only announce.
func (e *Engine) handleTimerFired(meta models.ActiveTimer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	step := e.recipe.Step(meta.StepID)
	ev := events.Event{
		Kind:            events.KindTimerDone,
		StepID:          meta.StepID,
		TimerID:         meta.ID,
		Timer:           &meta,
		Descr:           meta.Label,
		RequiresConfirm: step != nil && step.RequiresConfirm,
	}
	if step != nil {
		ev.Descr = step.Descr
	}
	e.enqueue(ev)
	e.enqueue(events.Event{Kind: events.KindTimerListUpdate, Timers: e.timers.ActiveTimers()})

	if step == nil || step.Status != models.StepActive {
		return
	}

	if step.RequiresConfirm {
		step.Status = models.StepWaitingAck
		if secs := step.ReminderSecs(); secs > 0 {
			e.timers.StartReminder(step.ID, step.Descr, time.Duration(secs)*time.Second)
		}
		return
	}

	e.completeLocked(step)
}

func (e *Engine) stateLocked() *models.RecipeState {
	state := &models.RecipeState{
		RecipeID:  e.recipe.ID,
		Title:     e.recipe.Title,
		Running:   e.running,
		Completed: append([]string(nil), e.order...),
		Steps:     make([]models.StepSnapshot, 0, len(e.recipe.StepOrder)),
	}
	for _, step := range e.recipe.StepsInOrder() {
		snap := models.StepSnapshot{
			ID:        step.ID,
			Descr:     step.Descr,
			Status:    step.Status,
			Type:      step.Type,
			DependsOn: step.DependsOn,
			Next:      step.Next,
		}
		if step.Type == models.StepTypeTimer {
			snap.Timer = e.timers.TimerState(step.ID)
		}
		state.Steps = append(state.Steps, snap)
	}
	return state
}

func (e *Engine) stepStateErrLocked(op string, step *models.Step) error {
	err := &StepStateError{Op: op, StepID: step.ID, Status: step.Status}
	if step.Status == models.StepPending {
		for _, dep := range step.DependsOn {
			if !e.completed[dep] {
				err.BlockedBy = append(err.BlockedBy, dep)
			}
		}
	}
	return err
}

// emitFrom is the timer manager's emission hook. The context belongs to
// the emitting worker or reminder loop; once cancelled, its events are
// dropped so nothing surfaces after Stop.
func (e *Engine) emitFrom(ctx context.Context, ev events.Event) {
	if ctx != nil && ctx.Err() != nil {
		return
	}
	e.enqueue(ev)
}

func (e *Engine) enqueue(ev events.Event) {
	e.dispatchMu.Lock()
	if e.stopped {
		e.dispatchMu.Unlock()
		return
	}
	e.queue = append(e.queue, ev)
	e.cond.Signal()
	e.dispatchMu.Unlock()
}

// dispatch delivers queued events in FIFO order on a dedicated goroutine.
// On stop it drains whatever was enqueued before the stop, then exits and
// closes drained so Stop can act as a barrier.
func (e *Engine) dispatch() {
	defer close(e.drained)
	for {
		e.dispatchMu.Lock()
		for len(e.queue) == 0 && !e.stopped {
			e.cond.Wait()
		}
		batch := e.queue
		e.queue = nil
		stopped := e.stopped
		e.dispatchMu.Unlock()

		for _, ev := range batch {
			e.deliver(ev)
		}
		if stopped && len(batch) == 0 {
			return
		}
	}
}

func (e *Engine) deliver(ev events.Event) {
	e.sinkMu.Lock()
	sink := e.sink
	e.sinkMu.Unlock()
	if sink == nil {
		return
	}
	sink(ev)
}
