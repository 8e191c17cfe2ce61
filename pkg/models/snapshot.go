package models

// StepSnapshot is the per-step view inside a recipe state snapshot.
type StepSnapshot struct {
	ID        string      `json:"id"`
	Descr     string      `json:"descr"`
	Status    StepStatus  `json:"status"`
	Type      StepType    `json:"type"`
	DependsOn []string    `json:"depends_on"`
	Next      []string    `json:"next"`
	Timer     *TimerState `json:"timer"`
}

// RecipeState is the full engine snapshot sent to the UI as a
// `recipe_state` event and returned by the get_recipe_state tool.
type RecipeState struct {
	RecipeID  string         `json:"recipe_id"`
	Title     string         `json:"title"`
	Running   bool           `json:"running"`
	Completed []string       `json:"completed"`
	Steps     []StepSnapshot `json:"steps"`
}

// RecipeSummary is a catalog listing entry.
type RecipeSummary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Servings       int    `json:"servings,omitempty"`
	EstimatedTotal string `json:"estimated_total,omitempty"`
	Difficulty     string `json:"difficulty,omitempty"`
	Locale         string `json:"locale,omitempty"`
}
