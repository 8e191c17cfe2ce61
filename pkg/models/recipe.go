// Package models defines the recipe domain model: the immutable recipe
// document, per-session step state, and timer metadata shared across the
// engine, tool layer, and API.
package models

import (
	"encoding/json"
	"fmt"
)

// StepType discriminates plain steps from countdown steps.
type StepType string

const (
	StepTypeImmediate StepType = "immediate"
	StepTypeTimer     StepType = "timer"
)

// UnlockWhen is the predicate applied over a step's depends_on set.
type UnlockWhen string

const (
	UnlockAll UnlockWhen = "all"
	UnlockAny UnlockWhen = "any"
)

// StepStatus is the finite step state machine:
// PENDING → READY → ACTIVE → (WAITING_ACK) → COMPLETED, plus CANCELLED.
type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepReady      StepStatus = "READY"
	StepActive     StepStatus = "ACTIVE"
	StepWaitingAck StepStatus = "WAITING_ACK"
	StepCompleted  StepStatus = "COMPLETED"
	StepCancelled  StepStatus = "CANCELLED"
)

// Action is a side effect executed when a step becomes active.
// Currently the only supported action is a spoken/display message.
type Action struct {
	Say string `json:"say,omitempty"`
}

// Reminder configures the periodic nag emitted after a timer fires while
// the step is awaiting acknowledgment.
type Reminder struct {
	Every string `json:"every"` // ISO-8601 duration, e.g. "PT2M"
}

// Step is a single node of the recipe DAG. All fields except Status are
// frozen at load time; Status is owned by the engine.
type Step struct {
	ID              string     `json:"id"`
	Descr           string     `json:"descr"`
	Type            StepType   `json:"type"`
	DependsOn       []string   `json:"depends_on,omitempty"`
	Next            []string   `json:"next,omitempty"`
	UnlockWhen      UnlockWhen `json:"unlock_when,omitempty"`
	AutoStart       bool       `json:"auto_start,omitempty"`
	RequiresConfirm bool       `json:"requires_confirm,omitempty"`
	Duration        string     `json:"duration,omitempty"` // required iff Type == timer
	Reminder        *Reminder  `json:"reminder,omitempty"`
	OnEnter         []Action   `json:"on_enter,omitempty"`

	Status StepStatus `json:"status"`
}

// DurationSecs returns the step duration in seconds (0 for immediate steps
// or malformed durations).
func (s *Step) DurationSecs() int {
	return ParseISODuration(s.Duration)
}

// ReminderSecs returns the reminder interval in seconds, or 0 if the step
// has no reminder configured.
func (s *Step) ReminderSecs() int {
	if s.Reminder == nil {
		return 0
	}
	return ParseISODuration(s.Reminder.Every)
}

// Recipe is one loaded recipe document. Scalars and topology are immutable
// after Load; step Status fields mutate as the engine drives the session.
// StepOrder preserves the document order of the steps array, which the
// engine uses for deterministic frontier and unlock evaluation.
type Recipe struct {
	ID             string
	Title          string
	Servings       int
	EstimatedTotal string
	Difficulty     string
	Locale         string

	Steps     map[string]*Step
	StepOrder []string

	// Raw is the full source document, passed through to the UI unchanged.
	Raw json.RawMessage
}

// StepsInOrder returns the steps in document order.
func (r *Recipe) StepsInOrder() []*Step {
	out := make([]*Step, 0, len(r.StepOrder))
	for _, id := range r.StepOrder {
		out = append(out, r.Steps[id])
	}
	return out
}

// Step returns the step with the given id, or nil.
func (r *Recipe) Step(id string) *Step {
	return r.Steps[id]
}

// recipeHeader mirrors the "recipe" object of the document format.
type recipeHeader struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Servings       int    `json:"servings"`
	EstimatedTotal string `json:"estimated_total"`
	Difficulty     string `json:"difficulty"`
	Locale         string `json:"locale"`
}

// document mirrors the top-level recipe document. Ingredients, utensils and
// notes are not consumed by the core; they survive in Recipe.Raw.
type document struct {
	Recipe recipeHeader `json:"recipe"`
	Steps  []*Step      `json:"steps"`
}

// ParseDocument parses and validates a recipe document.
// Each call returns a fresh Recipe instance with all steps PENDING, so
// concurrent sessions never share mutable step state.
func ParseDocument(data []byte) (*Recipe, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse recipe document: %w", err)
	}
	if doc.Recipe.ID == "" {
		return nil, fmt.Errorf("recipe document missing recipe.id")
	}
	if len(doc.Steps) == 0 {
		return nil, fmt.Errorf("recipe %q has no steps", doc.Recipe.ID)
	}

	r := &Recipe{
		ID:             doc.Recipe.ID,
		Title:          doc.Recipe.Title,
		Servings:       doc.Recipe.Servings,
		EstimatedTotal: doc.Recipe.EstimatedTotal,
		Difficulty:     doc.Recipe.Difficulty,
		Locale:         doc.Recipe.Locale,
		Steps:          make(map[string]*Step, len(doc.Steps)),
		StepOrder:      make([]string, 0, len(doc.Steps)),
		Raw:            json.RawMessage(append([]byte(nil), data...)),
	}

	for _, step := range doc.Steps {
		if step == nil {
			return nil, fmt.Errorf("recipe %q: null entry in steps array", r.ID)
		}
		if step.ID == "" {
			return nil, fmt.Errorf("recipe %q: step with empty id", r.ID)
		}
		if _, dup := r.Steps[step.ID]; dup {
			return nil, fmt.Errorf("recipe %q: duplicate step id %q", r.ID, step.ID)
		}
		if step.UnlockWhen == "" {
			step.UnlockWhen = UnlockAll
		}
		if step.Type == "" {
			step.Type = StepTypeImmediate
		}
		step.Status = StepPending
		r.Steps[step.ID] = step
		r.StepOrder = append(r.StepOrder, step.ID)
	}

	if err := Validate(r); err != nil {
		return nil, err
	}
	return r, nil
}
