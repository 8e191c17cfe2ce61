// Package recipes resolves recipe documents from a local directory or a
// remote catalog. Every Load returns a freshly parsed Recipe instance so
// concurrent sessions never share mutable step state.
package recipes

import (
	"context"
	"errors"

	"github.com/souschef-ai/souschef/pkg/models"
)

// ErrRecipeNotFound is returned when no document exists for a recipe id.
var ErrRecipeNotFound = errors.New("recipe not found")

// Source resolves recipe ids to parsed documents.
type Source interface {
	// List returns the catalog of available recipes.
	List(ctx context.Context) ([]models.RecipeSummary, error)

	// Load parses the document for the given recipe id. Each call returns
	// a fresh instance.
	Load(ctx context.Context, id string) (*models.Recipe, error)
}

func summaryOf(r *models.Recipe) models.RecipeSummary {
	return models.RecipeSummary{
		ID:             r.ID,
		Title:          r.Title,
		Servings:       r.Servings,
		EstimatedTotal: r.EstimatedTotal,
		Difficulty:     r.Difficulty,
		Locale:         r.Locale,
	}
}
