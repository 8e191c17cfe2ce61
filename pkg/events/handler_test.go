package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souschef-ai/souschef/pkg/models"
)

type captureOut struct {
	mu     sync.Mutex
	events []UIEvent
	fail   bool
}

func (c *captureOut) Send(_ context.Context, ev UIEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection gone")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *captureOut) all() []UIEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]UIEvent(nil), c.events...)
}

func (c *captureOut) types() []string {
	out := []string{}
	for _, ev := range c.all() {
		out = append(out, ev.Type)
	}
	return out
}

type captureAssistant struct {
	mu     sync.Mutex
	spoken []string
	memos  []string
}

func (a *captureAssistant) InjectSystemMessage(_ context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spoken = append(a.spoken, text)
	return nil
}

func (a *captureAssistant) AddSystemMemo(_ context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memos = append(a.memos, text)
	return nil
}

func newTestHandler() (*Handler, *captureOut, *captureAssistant) {
	out := &captureOut{}
	asst := &captureAssistant{}
	state := func() *models.RecipeState {
		return &models.RecipeState{RecipeID: "stew", Running: true}
	}
	return NewHandler("s1", out, asst, state), out, asst
}

func TestStepLifecycleSendsState(t *testing.T) {
	h, out, asst := newTestHandler()

	h.Handle(Event{Kind: KindStepReady, StepID: "brown"})
	h.Handle(Event{Kind: KindStepCompleted, StepID: "brown"})

	assert.Equal(t, []string{UITypeRecipeState, UITypeRecipeState}, out.types())
	assert.Empty(t, asst.spoken)
}

func TestStepStartFocusesStep(t *testing.T) {
	h, out, _ := newTestHandler()

	h.Handle(Event{Kind: KindStepStart, StepID: "brown"})

	require.Equal(t, []string{UITypeRecipeState, UITypeControl}, out.types())
	focus := out.all()[1]
	assert.Equal(t, ControlFocusStep, focus.Data["action"])
	assert.Equal(t, "brown", focus.Data["step_id"])
}

func TestTimerStartedSendsControl(t *testing.T) {
	h, out, _ := newTestHandler()

	h.Handle(Event{
		Kind:         KindTimerStarted,
		StepID:       "simmer",
		Descr:        "Simmer gently",
		TimerID:      "timer_simmer",
		DurationSecs: 5400,
	})

	require.Equal(t, []string{UITypeControl}, out.types())
	ev := out.all()[0]
	assert.Equal(t, ControlTimerStart, ev.Data["action"])
	assert.Equal(t, "timer_simmer", ev.Data["timer_id"])
	assert.Equal(t, 5400, ev.Data["duration_secs"])
	assert.Equal(t, "Simmer gently", ev.Data["label"])
}

func TestTimerDoneWithConfirmSpeaks(t *testing.T) {
	h, out, asst := newTestHandler()

	h.Handle(Event{
		Kind:            KindTimerDone,
		StepID:          "simmer",
		Descr:           "Simmer gently",
		RequiresConfirm: true,
	})

	require.Equal(t, []string{UITypeManagerSystem}, out.types())
	assert.Equal(t, SystemTimerDone, out.all()[0].Data["system_type"])

	require.Len(t, asst.spoken, 1)
	assert.Contains(t, asst.spoken[0], "Simmer gently")
	assert.Empty(t, asst.memos)
}

func TestTimerDoneWithoutConfirmStaysSilent(t *testing.T) {
	h, _, asst := newTestHandler()

	h.Handle(Event{Kind: KindTimerDone, StepID: "boil", RequiresConfirm: false})

	assert.Empty(t, asst.spoken)
	require.Len(t, asst.memos, 1)
	assert.Contains(t, asst.memos[0], "auto-completed")
}

func TestReminderTickNudges(t *testing.T) {
	h, out, asst := newTestHandler()

	h.Handle(Event{Kind: KindReminderTick, StepID: "simmer", Descr: "Simmer gently"})

	require.Equal(t, []string{UITypeManagerSystem}, out.types())
	assert.Equal(t, SystemReminderTick, out.all()[0].Data["system_type"])
	require.Len(t, asst.spoken, 1)
	assert.Contains(t, asst.spoken[0], "remind")
}

func TestAllCompletedCongratulates(t *testing.T) {
	h, out, asst := newTestHandler()

	h.Handle(Event{Kind: KindAllCompleted, RecipeTitle: "Beef Stew"})

	assert.Equal(t, []string{UITypeRecipeState}, out.types())
	require.Len(t, asst.spoken, 1)
	assert.Contains(t, asst.spoken[0], "Beef Stew")
}

func TestTimerListUpdate(t *testing.T) {
	h, out, _ := newTestHandler()

	end := time.Now().Add(time.Minute)
	h.Handle(Event{Kind: KindTimerListUpdate, Timers: []models.ActiveTimer{
		{ID: "timer_simmer", StepID: "simmer", Label: "Simmer gently",
			DurationSecs: 60, EndTS: end},
	}})

	require.Equal(t, []string{UITypeRecipeState, UITypeTimerList}, out.types())
	list := out.all()[1]
	assert.Equal(t, 1, list.Data["count"])
}

func TestMessageAndErrorPassThrough(t *testing.T) {
	h, out, _ := newTestHandler()

	h.Handle(Event{Kind: KindMessage, Message: "Preheat the oven now."})
	h.Handle(Event{Kind: KindError, Message: "recipe has no initial steps"})

	assert.Equal(t, []string{UITypeRecipeMessage, UITypeRecipeError}, out.types())
}

func TestSendFailuresAreSwallowed(t *testing.T) {
	out := &captureOut{fail: true}
	h := NewHandler("s1", out, &captureAssistant{}, nil)

	// Must not panic and must not propagate the send error.
	h.Handle(Event{Kind: KindStepStart, StepID: "brown"})
	h.Handle(Event{Kind: KindMessage, Message: "hi"})
}

func TestNilCollaboratorsAreTolerated(t *testing.T) {
	h := NewHandler("s1", nil, nil, nil)

	h.Handle(Event{Kind: KindStepReady, StepID: "brown"})
	h.Handle(Event{Kind: KindTimerDone, StepID: "x", RequiresConfirm: true})
	h.Handle(Event{Kind: KindAllCompleted, RecipeTitle: "x"})
}

func TestUIEventMarshalsFlat(t *testing.T) {
	ev := SessionInfo("s1", "cooking", "stew")
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "session_info", m["type"])
	assert.Equal(t, "s1", m["session_id"])
	assert.Equal(t, "cooking", m["mode"])
	assert.Equal(t, "stew", m["recipe_id"])
}
