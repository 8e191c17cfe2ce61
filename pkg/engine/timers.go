package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/souschef-ai/souschef/pkg/events"
	"github.com/souschef-ai/souschef/pkg/models"
)

// TimerManager owns every countdown for one engine. It knows nothing about
// the DAG: step ids are opaque keys. Each running timer is one cancellable
// goroutine sleeping on a monotonic deadline; reminder loops are separate
// cancellable goroutines keyed by step id.
//
// Event emission goes through the hook injected by the engine so timer
// events share the engine's ordered delivery path. The fired callback is
// invoked off the manager lock; the engine serializes it with its own lock.
type TimerManager struct {
	emit  func(ctx context.Context, ev events.Event)
	fired func(meta models.ActiveTimer)

	mu        sync.Mutex
	timers    map[string]*timerEntry
	reminders map[string]context.CancelFunc
}

// timerEntry tracks one timer. cancel is nil for metadata-only entries
// (end timestamp registered for the UI, worker not yet started).
type timerEntry struct {
	meta   models.ActiveTimer
	cancel context.CancelFunc
	ctx    context.Context
}

// NewTimerManager creates a manager with the given emission hook and fired
// callback. Both may be nil for tests that only exercise bookkeeping.
func NewTimerManager(emit func(ctx context.Context, ev events.Event), fired func(meta models.ActiveTimer)) *TimerManager {
	return &TimerManager{
		emit:      emit,
		fired:     fired,
		timers:    make(map[string]*timerEntry),
		reminders: make(map[string]context.CancelFunc),
	}
}

// TimerIDForStep derives the conventional timer id for a step-bound timer.
func TimerIDForStep(stepID string) string {
	return "timer_" + stepID
}

// SetTimerMetadata registers duration and end timestamp for a step's timer
// before the worker starts, so any snapshot built between registration and
// TIMER_STARTED already carries timer info. No-op if the step already has
// a running timer.
func (m *TimerManager) SetTimerMetadata(stepID string, durationSecs int) {
	id := TimerIDForStep(stepID)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.timers[id]; ok && e.cancel != nil {
		return
	}
	m.timers[id] = &timerEntry{meta: models.ActiveTimer{
		ID:           id,
		StepID:       stepID,
		DurationSecs: durationSecs,
		StartedAt:    now,
		EndTS:        now.Add(time.Duration(durationSecs) * time.Second),
	}}
}

// StartTimer starts a countdown with an explicit id. Fails with
// ErrTimerAlreadyRunning if a worker already exists under the id.
// Emits TIMER_STARTED and TIMER_LIST_UPDATE before the worker runs.
func (m *TimerManager) StartTimer(id, stepID, label string, durationSecs int) (*models.ActiveTimer, error) {
	if durationSecs <= 0 {
		return nil, ErrTimerDuration
	}
	now := time.Now()

	m.mu.Lock()
	if e, ok := m.timers[id]; ok && e.cancel != nil {
		m.mu.Unlock()
		return nil, ErrTimerAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	entry := &timerEntry{
		meta: models.ActiveTimer{
			ID:           id,
			StepID:       stepID,
			Label:        label,
			DurationSecs: durationSecs,
			StartedAt:    now,
			EndTS:        now.Add(time.Duration(durationSecs) * time.Second),
		},
		cancel: cancel,
		ctx:    ctx,
	}
	m.timers[id] = entry
	meta := entry.meta
	timers := m.activeLocked()
	m.mu.Unlock()

	m.emitEvent(ctx, events.Event{
		Kind:         events.KindTimerStarted,
		StepID:       stepID,
		TimerID:      id,
		DurationSecs: durationSecs,
		Timer:        &meta,
	})
	m.emitEvent(ctx, events.Event{Kind: events.KindTimerListUpdate, Timers: timers})

	go m.runWorker(ctx, meta)

	slog.Debug("Timer started", "timer_id", id, "step_id", stepID, "duration_secs", durationSecs)
	return &meta, nil
}

// StartTimerForStep derives id, label, and duration from a timer step.
func (m *TimerManager) StartTimerForStep(step *models.Step) (*models.ActiveTimer, error) {
	if step.Type != models.StepTypeTimer {
		return nil, ErrTimerDuration
	}
	secs := step.DurationSecs()
	if secs <= 0 {
		return nil, ErrTimerDuration
	}
	return m.StartTimer(TimerIDForStep(step.ID), step.ID, step.Descr, secs)
}

// CancelTimer cancels a timer by id. Idempotent: returns false on a miss.
// The worker never fires after CancelTimer returns true; TIMER_CANCELLED
// is emitted only when emitEvent is set.
func (m *TimerManager) CancelTimer(id string, emitEvent bool) bool {
	m.mu.Lock()
	entry, ok := m.timers[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.timers, id)
	m.mu.Unlock()

	if entry.cancel != nil {
		entry.cancel()
	}
	if emitEvent {
		m.emitEvent(context.Background(), events.Event{
			Kind:    events.KindTimerCancelled,
			StepID:  entry.meta.StepID,
			TimerID: id,
		})
	}
	slog.Debug("Timer cancelled", "timer_id", id, "emit_event", emitEvent)
	return true
}

// CancelTimerForStep cancels the timer owned by a step.
func (m *TimerManager) CancelTimerForStep(stepID string, emitEvent bool) bool {
	return m.CancelTimer(TimerIDForStep(stepID), emitEvent)
}

// HasActiveTimerForStep reports whether a worker-backed timer exists for
// the step. Metadata-only registrations do not count.
func (m *TimerManager) HasActiveTimerForStep(stepID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.timers[TimerIDForStep(stepID)]
	return ok && e.cancel != nil
}

// TimerForStep returns a copy of the step's running timer, or nil.
func (m *TimerManager) TimerForStep(stepID string) *models.ActiveTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.timers[TimerIDForStep(stepID)]
	if !ok || e.cancel == nil {
		return nil
	}
	meta := e.meta
	return &meta
}

// TimerState returns the legacy UI shape for a step's timer (metadata-only
// registrations included), or nil when no timer is known.
func (m *TimerManager) TimerState(stepID string) *models.TimerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.timers[TimerIDForStep(stepID)]
	if !ok {
		return nil
	}
	return e.meta.State()
}

// ActiveTimers returns copies of all running timers sorted by remaining
// time ascending.
func (m *TimerManager) ActiveTimers() []models.ActiveTimer {
	m.mu.Lock()
	out := m.activeLocked()
	m.mu.Unlock()
	return out
}

func (m *TimerManager) activeLocked() []models.ActiveTimer {
	out := make([]models.ActiveTimer, 0, len(m.timers))
	for _, e := range m.timers {
		if e.cancel == nil {
			continue
		}
		out = append(out, e.meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndTS.Before(out[j].EndTS)
	})
	return out
}

// StartReminder begins the periodic nag loop for a step awaiting ack.
// Replaces any existing reminder for the step. Cancelled by
// CancelReminder, CancelAll, or engine stop.
func (m *TimerManager) StartReminder(stepID, descr string, every time.Duration) {
	if every <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if prev, ok := m.reminders[stepID]; ok {
		prev()
	}
	m.reminders[stepID] = cancel
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.emitEvent(ctx, events.Event{
					Kind:   events.KindReminderTick,
					StepID: stepID,
					Descr:  descr,
				})
			}
		}
	}()
}

// CancelReminder stops the reminder loop for a step. Idempotent.
func (m *TimerManager) CancelReminder(stepID string) {
	m.mu.Lock()
	cancel, ok := m.reminders[stepID]
	if ok {
		delete(m.reminders, stepID)
	}
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll cancels every timer worker and reminder loop without emitting
// events. Used on engine stop.
func (m *TimerManager) CancelAll() {
	m.mu.Lock()
	entries := make([]*timerEntry, 0, len(m.timers))
	for _, e := range m.timers {
		entries = append(entries, e)
	}
	m.timers = make(map[string]*timerEntry)
	cancels := make([]context.CancelFunc, 0, len(m.reminders))
	for _, c := range m.reminders {
		cancels = append(cancels, c)
	}
	m.reminders = make(map[string]context.CancelFunc)
	m.mu.Unlock()

	for _, e := range entries {
		if e.cancel != nil {
			e.cancel()
		}
	}
	for _, c := range cancels {
		c()
	}
}

// runWorker sleeps until the deadline, removes the timer, and invokes the
// fired callback. A cancelled context wins any race with the deadline:
// once the entry is gone from the map the worker exits silently.
func (m *TimerManager) runWorker(ctx context.Context, meta models.ActiveTimer) {
	t := time.NewTimer(time.Until(meta.EndTS))
	defer t.Stop()

	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}

	m.mu.Lock()
	entry, ok := m.timers[meta.ID]
	if !ok || entry.ctx != ctx {
		m.mu.Unlock()
		return
	}
	delete(m.timers, meta.ID)
	m.mu.Unlock()

	if m.fired != nil {
		m.fired(meta)
	}
}

func (m *TimerManager) emitEvent(ctx context.Context, ev events.Event) {
	if m.emit == nil {
		return
	}
	m.emit(ctx, ev)
}
