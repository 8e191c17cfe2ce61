package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souschef-ai/souschef/pkg/events"
	"github.com/souschef-ai/souschef/pkg/models"
	"github.com/souschef-ai/souschef/pkg/recipes"
	"github.com/souschef-ai/souschef/pkg/session"
)

const roastDoc = `{
	"recipe": {"id": "roast", "title": "Sunday Roast"},
	"steps": [
		{"id": "prep", "descr": "Season the chicken", "next": ["roast"]},
		{"id": "roast", "descr": "Roast the chicken", "type": "timer",
		 "duration": "PT1H", "depends_on": ["prep"], "next": ["rest"]},
		{"id": "rest", "descr": "Rest the chicken", "depends_on": ["roast"]}
	]
}`

const saladDoc = `{
	"recipe": {"id": "salad", "title": "Green Salad", "estimated_total": "PT15M"},
	"steps": [
		{"id": "wash", "descr": "Wash the greens"},
		{"id": "dry", "descr": "Dry the greens", "depends_on": ["wash"]}
	]
}`

type memSource struct {
	docs map[string]string
}

func (s *memSource) List(_ context.Context) ([]models.RecipeSummary, error) {
	var out []models.RecipeSummary
	for _, doc := range s.docs {
		r, err := models.ParseDocument([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, models.RecipeSummary{
			ID: r.ID, Title: r.Title, EstimatedTotal: r.EstimatedTotal,
		})
	}
	return out, nil
}

func (s *memSource) Load(_ context.Context, id string) (*models.Recipe, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", recipes.ErrRecipeNotFound, id)
	}
	return models.ParseDocument([]byte(doc))
}

type nullChannel struct {
	mu  sync.Mutex
	evs []events.UIEvent
}

func (c *nullChannel) Send(_ context.Context, ev events.UIEvent) error {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
	return nil
}

func (c *nullChannel) last() (events.UIEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.evs) == 0 {
		return events.UIEvent{}, false
	}
	return c.evs[len(c.evs)-1], true
}

func newTestRegistry(t *testing.T) (*Registry, *session.Service, context.Context) {
	t.Helper()
	svc := session.NewService(&memSource{docs: map[string]string{
		"roast": roastDoc,
		"salad": saladDoc,
	}})
	t.Cleanup(svc.StopAll)
	svc.Create("s1")
	return NewRegistry(svc), svc, WithSessionID(context.Background(), "s1")
}

func TestDispatchUnknownTool(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	out := reg.Dispatch(ctx, "no_such_tool", nil)
	assert.True(t, strings.HasPrefix(out, StatusError))
}

func TestDispatchOverridesSessionID(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "roast"})

	// A forged session id must be replaced with the ambient one, so the
	// call still lands on s1.
	out := reg.Dispatch(ctx, "get_current_step", map[string]any{"session_id": "victim"})
	assert.True(t, strings.HasPrefix(out, StatusInfo), out)
	assert.Contains(t, out, "Season the chicken")
}

func TestToolsWithoutSession(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := WithSessionID(context.Background(), "ghost")

	out := reg.Dispatch(ctx, "get_current_step", nil)
	assert.True(t, strings.HasPrefix(out, StatusError), out)
	assert.Contains(t, out, "No session")
}

func TestToolsBeforeRecipeStart(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)

	out := reg.Dispatch(ctx, "get_current_step", nil)
	assert.True(t, strings.HasPrefix(out, StatusInfo), out)
	assert.Contains(t, out, "No recipe in progress")
}

func TestListAvailableRecipes(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	out := reg.Dispatch(ctx, "list_available_recipes", nil)
	assert.True(t, strings.HasPrefix(out, StatusInfo))
	assert.Contains(t, out, "roast: Sunday Roast")
	assert.Contains(t, out, "salad: Green Salad")
}

func TestStartRecipeReturnsStepReference(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	out := reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "roast"})

	assert.True(t, strings.HasPrefix(out, StatusStarted), out)
	assert.Contains(t, out, "Step reference")
	assert.Contains(t, out, "prep: Season the chicken")
	assert.Contains(t, out, "roast: Roast the chicken (timer 1 hour")
	assert.Contains(t, out, "ready: Season the chicken")
}

func TestStartRecipeUnknownID(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	out := reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "souffle"})
	assert.True(t, strings.HasPrefix(out, StatusError), out)
	assert.Contains(t, out, "souffle")
}

func TestStartStepByDescription(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "roast"})

	out := reg.Dispatch(ctx, "start_step", map[string]any{"step_description": "season"})
	assert.True(t, strings.HasPrefix(out, StatusStarted), out)
	assert.Contains(t, out, "Season the chicken")
}

func TestStartStepBlockedListsDependencies(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "roast"})

	out := reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "roast"})
	assert.True(t, strings.HasPrefix(out, StatusBlocked), out)
	assert.Contains(t, out, "Current:")
	assert.Contains(t, out, "Action:")
	assert.Contains(t, out, "Season the chicken")
}

func TestStartStepAmbiguousDescription(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "salad"})
	reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "wash"})
	reg.Dispatch(ctx, "confirm_step_done", map[string]any{"step_id": "wash"})
	reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "dry"})

	// Both steps mention "greens" and neither is READY anymore, so the
	// description cannot be resolved.
	out := reg.Dispatch(ctx, "start_step", map[string]any{"step_description": "greens"})
	assert.True(t, strings.HasPrefix(out, StatusBlocked), out)
}

func TestStartStepUnknownIDIsError(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "roast"})

	out := reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "flambe"})
	assert.True(t, strings.HasPrefix(out, StatusError), out)
	assert.Contains(t, out, "flambe")
}

func TestStartTimerTwiceIsBlocked(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "roast"})
	reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "prep"})
	reg.Dispatch(ctx, "confirm_step_done", map[string]any{"step_id": "prep"})
	reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "roast"})
	reg.Dispatch(ctx, "start_timer_for_step", map[string]any{"step_id": "roast"})

	out := reg.Dispatch(ctx, "start_timer_for_step", map[string]any{"step_id": "roast"})
	assert.True(t, strings.HasPrefix(out, StatusBlocked), out)
	assert.Contains(t, out, "already running")
	assert.Contains(t, out, "Current:")
}

func TestTimerFlowThroughTools(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "roast"})
	reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "prep"})
	reg.Dispatch(ctx, "confirm_step_done", map[string]any{"step_id": "prep"})
	reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "roast"})

	out := reg.Dispatch(ctx, "start_timer_for_step", map[string]any{"step_id": "roast"})
	assert.True(t, strings.HasPrefix(out, StatusTimerRunning), out)
	assert.Contains(t, out, "1 hour")

	out = reg.Dispatch(ctx, "get_active_timers", nil)
	assert.True(t, strings.HasPrefix(out, StatusInfo), out)
	assert.Contains(t, out, "Roast the chicken")

	// Confirming against a live countdown is refused without force.
	out = reg.Dispatch(ctx, "confirm_step_done", map[string]any{"step_id": "roast"})
	assert.True(t, strings.HasPrefix(out, StatusTimerActive), out)
	assert.Contains(t, out, "force_cancel_timer")

	out = reg.Dispatch(ctx, "confirm_step_done", map[string]any{
		"step_id": "roast", "force_cancel_timer": true,
	})
	assert.True(t, strings.HasPrefix(out, StatusDone), out)
	assert.Contains(t, out, "Rest the chicken")
}

func TestConfirmStepDefaultsToOnlyActive(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "salad"})
	reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "wash"})

	out := reg.Dispatch(ctx, "confirm_step_done", nil)
	assert.True(t, strings.HasPrefix(out, StatusDone), out)
	assert.Contains(t, out, "Wash the greens")
}

func TestConfirmCompletedStepIsInfo(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "salad"})
	reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "wash"})
	reg.Dispatch(ctx, "confirm_step_done", map[string]any{"step_id": "wash"})

	out := reg.Dispatch(ctx, "confirm_step_done", map[string]any{"step_id": "wash"})
	assert.True(t, strings.HasPrefix(out, StatusInfo), out)
	assert.Contains(t, out, "already completed")
}

func TestGetRecipeStateReturnsSnapshot(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "salad"})

	out := reg.Dispatch(ctx, "get_recipe_state", nil)
	var state models.RecipeState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, "salad", state.RecipeID)
	assert.True(t, state.Running)
	assert.Len(t, state.Steps, 2)
}

func TestRepeatStepAliasesGetCurrentStep(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)
	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "salad"})
	reg.Dispatch(ctx, "start_step", map[string]any{"step_id": "wash"})

	a := reg.Dispatch(ctx, "get_current_step", nil)
	b := reg.Dispatch(ctx, "repeat_step", nil)
	assert.Equal(t, a, b)
}

func TestStopRecipeSession(t *testing.T) {
	reg, _, ctx := newTestRegistry(t)

	out := reg.Dispatch(ctx, "stop_recipe_session", nil)
	assert.True(t, strings.HasPrefix(out, StatusInfo), out)

	reg.Dispatch(ctx, "start_recipe", map[string]any{"recipe_id": "salad"})
	out = reg.Dispatch(ctx, "stop_recipe_session", nil)
	assert.True(t, strings.HasPrefix(out, StatusDone), out)
}

func TestKitchenTimerControls(t *testing.T) {
	reg, svc, ctx := newTestRegistry(t)

	// Without a connected display, widget control is refused.
	out := reg.Dispatch(ctx, "start_kitchen_timer", map[string]any{"seconds": float64(300)})
	assert.True(t, strings.HasPrefix(out, StatusError), out)

	sess, err := svc.Get("s1")
	require.NoError(t, err)
	ch := &nullChannel{}
	sess.AttachOutput(ch)

	out = reg.Dispatch(ctx, "start_kitchen_timer", map[string]any{
		"seconds": float64(300), "label": "Eggs",
	})
	assert.True(t, strings.HasPrefix(out, StatusStarted), out)
	ev, ok := ch.last()
	require.True(t, ok)
	assert.Equal(t, events.UITypeControl, ev.Type)
	assert.Equal(t, events.ControlTimerStart, ev.Data["action"])
	assert.Equal(t, 300, ev.Data["duration_secs"])

	out = reg.Dispatch(ctx, "pause_kitchen_timer", nil)
	assert.True(t, strings.HasPrefix(out, StatusDone), out)

	out = reg.Dispatch(ctx, "resume_kitchen_timer", nil)
	assert.True(t, strings.HasPrefix(out, StatusStarted), out)

	// Reset falls back to the last requested duration.
	out = reg.Dispatch(ctx, "reset_kitchen_timer", nil)
	assert.True(t, strings.HasPrefix(out, StatusDone), out)
	assert.Contains(t, out, "5 minutes")

	out = reg.Dispatch(ctx, "start_kitchen_timer", map[string]any{"seconds": float64(0)})
	assert.True(t, strings.HasPrefix(out, StatusError), out)
}
