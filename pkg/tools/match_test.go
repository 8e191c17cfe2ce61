package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souschef-ai/souschef/pkg/models"
)

func matchRecipe(t *testing.T) *models.Recipe {
	t.Helper()
	r, err := models.ParseDocument([]byte(`{
		"recipe": {"id": "curry", "title": "Chicken Curry"},
		"steps": [
			{"id": "marinate", "descr": "Marinate the chicken"},
			{"id": "fry", "descr": "Fry the chicken pieces"},
			{"id": "rice", "descr": "Cook the rice"}
		]
	}`))
	require.NoError(t, err)
	return r
}

func TestMatchStepByID(t *testing.T) {
	r := matchRecipe(t)
	step, cands := matchStep(r, "rice", "")
	require.NotNil(t, step)
	assert.Equal(t, "rice", step.ID)
	assert.Empty(t, cands)

	step, cands = matchStep(r, "ghost", "")
	assert.Nil(t, step)
	assert.Empty(t, cands)
}

func TestMatchStepBySubstring(t *testing.T) {
	r := matchRecipe(t)

	// Query contained in descr.
	step, _ := matchStep(r, "", "the rice")
	require.NotNil(t, step)
	assert.Equal(t, "rice", step.ID)

	// Descr contained in query, case-insensitive.
	step, _ = matchStep(r, "", "please COOK THE RICE now")
	require.NotNil(t, step)
	assert.Equal(t, "rice", step.ID)
}

func TestMatchStepByKeywordTokens(t *testing.T) {
	r := matchRecipe(t)
	step, _ := matchStep(r, "", "fry pieces")
	require.NotNil(t, step)
	assert.Equal(t, "fry", step.ID)
}

func TestMatchStepStatusBreaksTie(t *testing.T) {
	r := matchRecipe(t)
	r.Step("marinate").Status = models.StepCompleted
	r.Step("fry").Status = models.StepReady

	// "chicken" matches both chicken steps; only one is READY.
	step, cands := matchStep(r, "", "chicken", models.StepReady)
	require.NotNil(t, step)
	assert.Equal(t, "fry", step.ID)
	assert.Empty(t, cands)
}

func TestMatchStepAmbiguous(t *testing.T) {
	r := matchRecipe(t)
	r.Step("marinate").Status = models.StepReady
	r.Step("fry").Status = models.StepReady

	step, cands := matchStep(r, "", "chicken", models.StepReady)
	assert.Nil(t, step)
	assert.Len(t, cands, 2)
}

func TestMatchStepNoMatch(t *testing.T) {
	r := matchRecipe(t)
	step, cands := matchStep(r, "", "bake the bread")
	assert.Nil(t, step)
	assert.Empty(t, cands)
}
