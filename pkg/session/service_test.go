package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souschef-ai/souschef/pkg/events"
	"github.com/souschef-ai/souschef/pkg/models"
)

const testDoc = `{
	"recipe": {"id": "pasta", "title": "Weeknight Pasta"},
	"steps": [
		{"id": "prep", "descr": "Chop the garlic", "next": ["cook"]},
		{"id": "cook", "descr": "Cook the pasta", "depends_on": ["prep"]}
	]
}`

// stubSource serves fixed documents from memory.
type stubSource struct {
	docs map[string]string
}

func (s *stubSource) List(_ context.Context) ([]models.RecipeSummary, error) {
	var out []models.RecipeSummary
	for _, doc := range s.docs {
		r, err := models.ParseDocument([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, models.RecipeSummary{ID: r.ID, Title: r.Title})
	}
	return out, nil
}

func (s *stubSource) Load(_ context.Context, id string) (*models.Recipe, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("recipe not found: %q", id)
	}
	return models.ParseDocument([]byte(doc))
}

// captureChannel records UI events sent to it.
type captureChannel struct {
	mu  sync.Mutex
	evs []events.UIEvent
}

func (c *captureChannel) Send(_ context.Context, ev events.UIEvent) error {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
	return nil
}

func (c *captureChannel) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.evs))
	for _, ev := range c.evs {
		out = append(out, ev.Type)
	}
	return out
}

func newTestService() *Service {
	return NewService(&stubSource{docs: map[string]string{"pasta": testDoc}})
}

func TestCreateGeneratesID(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	sess := svc.Create("")
	assert.NotEmpty(t, sess.ID)

	got, err := svc.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestGetUnknownSession(t *testing.T) {
	svc := newTestService()
	_, err := svc.Get("ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEngineRequiresStartedRecipe(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	sess := svc.Create("s1")
	_, err := sess.Engine()
	assert.ErrorIs(t, err, ErrNoRecipe)

	_, err = svc.Engine("s1")
	assert.ErrorIs(t, err, ErrNoRecipe)
}

func TestStartRecipeExplicitID(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	svc.Create("s1")
	eng, err := svc.StartRecipe(context.Background(), "s1", "pasta")
	require.NoError(t, err)
	assert.True(t, eng.Running())
	assert.Equal(t, "pasta", eng.Recipe().ID)

	got, err := svc.Engine("s1")
	require.NoError(t, err)
	assert.Same(t, eng, got)
}

func TestStartRecipeUsesSessionDefault(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	sess := svc.Create("s1")
	sess.SetRecipeID("pasta")
	eng, err := svc.StartRecipe(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "pasta", eng.Recipe().ID)
	assert.Equal(t, "pasta", sess.RecipeID())
}

func TestStartRecipePrefersInlinePayload(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	inline := `{
		"recipe": {"id": "custom", "title": "Inline Dish"},
		"steps": [{"id": "only", "descr": "Do the thing"}]
	}`
	sess := svc.Create("s1")
	sess.SetRecipeID("pasta")
	sess.SetRecipePayload([]byte(inline))

	eng, err := svc.StartRecipe(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "custom", eng.Recipe().ID)
}

func TestStartRecipeWithoutAnyRecipe(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	svc.Create("s1")
	_, err := svc.StartRecipe(context.Background(), "s1", "")
	assert.ErrorIs(t, err, ErrNoRecipe)
}

func TestStartRecipeReplacesRunningEngine(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	svc.Create("s1")
	first, err := svc.StartRecipe(context.Background(), "s1", "pasta")
	require.NoError(t, err)

	second, err := svc.StartRecipe(context.Background(), "s1", "pasta")
	require.NoError(t, err)

	assert.False(t, first.Running(), "old engine must be stopped")
	assert.True(t, second.Running())
}

func TestSessionIsolation(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	svc.Create("s1")
	svc.Create("s2")
	e1, err := svc.StartRecipe(context.Background(), "s1", "pasta")
	require.NoError(t, err)
	e2, err := svc.StartRecipe(context.Background(), "s2", "pasta")
	require.NoError(t, err)

	require.NoError(t, e1.StartStep("prep"))
	require.NoError(t, e1.ConfirmStepDone("prep", false))

	// Progress in one session never leaks into another.
	assert.Equal(t, models.StepCompleted, e1.Recipe().Step("prep").Status)
	assert.Equal(t, models.StepReady, e2.Recipe().Step("prep").Status)
}

func TestStopRecipeKeepsSession(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	svc.Create("s1")
	eng, err := svc.StartRecipe(context.Background(), "s1", "pasta")
	require.NoError(t, err)

	require.NoError(t, svc.StopRecipe("s1"))
	assert.False(t, eng.Running())
	_, err = svc.Engine("s1")
	assert.ErrorIs(t, err, ErrNoRecipe)
	assert.ErrorIs(t, svc.StopRecipe("s1"), ErrNoRecipe)

	// Session survives and can start again.
	_, err = svc.StartRecipe(context.Background(), "s1", "pasta")
	require.NoError(t, err)
}

func TestCleanupIsIdempotent(t *testing.T) {
	svc := newTestService()

	svc.Create("s1")
	eng, err := svc.StartRecipe(context.Background(), "s1", "pasta")
	require.NoError(t, err)

	svc.Cleanup("s1")
	assert.False(t, eng.Running())
	_, err = svc.Get("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	svc.Cleanup("s1") // second call is a no-op
}

func TestSendControlRequiresOutput(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	sess := svc.Create("s1")
	err := svc.SendControl(context.Background(), "s1", events.ControlTimerPause, nil)
	assert.ErrorIs(t, err, ErrNoOutput)

	out := &captureChannel{}
	sess.AttachOutput(out)
	require.NoError(t, svc.SendControl(context.Background(), "s1",
		events.ControlTimerPause, map[string]any{"timer_id": "t1"}))
	require.Len(t, out.types(), 1)
	assert.Equal(t, events.UITypeControl, out.types()[0])

	err = svc.SendControl(context.Background(), "ghost", events.ControlTimerPause, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEngineEventsReachAttachedOutput(t *testing.T) {
	svc := newTestService()
	defer svc.StopAll()

	sess := svc.Create("s1")
	out := &captureChannel{}
	sess.AttachOutput(out)

	eng, err := svc.StartRecipe(context.Background(), "s1", "pasta")
	require.NoError(t, err)
	require.NoError(t, eng.StartStep("prep"))
	eng.Stop() // barrier: all events delivered

	types := out.types()
	assert.Contains(t, types, events.UITypeRecipeState)
	assert.Contains(t, types, events.UITypeControl)
}
