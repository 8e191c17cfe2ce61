package tools

import (
	"strings"

	"github.com/souschef-ai/souschef/pkg/models"
)

// matchStep resolves a step from an explicit id or a free-text description.
//
// Id lookup is exact. Description matching runs two passes over the steps
// in document order: case-insensitive substring containment in either
// direction, then keyword-token overlap. When several steps match, the
// allowed-status filter breaks the tie if it leaves exactly one; otherwise
// all candidates come back and the caller reports the ambiguity.
func matchStep(r *models.Recipe, stepID, description string, allowed ...models.StepStatus) (*models.Step, []*models.Step) {
	if stepID != "" {
		if step := r.Step(stepID); step != nil {
			return step, nil
		}
		return nil, nil
	}

	q := strings.ToLower(strings.TrimSpace(description))
	if q == "" {
		return nil, nil
	}

	var candidates []*models.Step
	for _, step := range r.StepsInOrder() {
		d := strings.ToLower(step.Descr)
		if strings.Contains(d, q) || strings.Contains(q, d) {
			candidates = append(candidates, step)
		}
	}

	if len(candidates) == 0 {
		candidates = tokenMatches(r, q)
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	}

	var eligible []*models.Step
	for _, step := range candidates {
		if statusAllowed(step.Status, allowed) {
			eligible = append(eligible, step)
		}
	}
	if len(eligible) == 1 {
		return eligible[0], nil
	}
	return nil, candidates
}

// tokenMatches returns the steps sharing the most keyword tokens with the
// query. Only the top-scoring steps survive.
func tokenMatches(r *models.Recipe, q string) []*models.Step {
	qTokens := keywordTokens(q)
	if len(qTokens) == 0 {
		return nil
	}

	best := 0
	var out []*models.Step
	for _, step := range r.StepsInOrder() {
		dTokens := keywordTokens(strings.ToLower(step.Descr))
		score := 0
		for tok := range qTokens {
			if dTokens[tok] {
				score++
			}
		}
		switch {
		case score == 0:
			continue
		case score > best:
			best = score
			out = []*models.Step{step}
		case score == best:
			out = append(out, step)
		}
	}
	return out
}

// stopwords excluded from keyword matching.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true,
	"and": true, "in": true, "on": true, "for": true, "with": true,
	"it": true, "is": true, "step": true,
}

func keywordTokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) < 2 || stopwords[tok] {
			continue
		}
		out[tok] = true
	}
	return out
}

func statusAllowed(status models.StepStatus, allowed []models.StepStatus) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
