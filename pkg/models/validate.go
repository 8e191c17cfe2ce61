package models

import "fmt"

// Validate checks the structural invariants of a loaded recipe:
// every depends_on/next referent exists, timer steps carry a parseable
// duration, and the dependency graph is acyclic. Cycles are authoring
// errors and reject the whole document.
func Validate(r *Recipe) error {
	for _, id := range r.StepOrder {
		step := r.Steps[id]

		for _, dep := range step.DependsOn {
			if _, ok := r.Steps[dep]; !ok {
				return fmt.Errorf("recipe %q: step %q depends on unknown step %q", r.ID, id, dep)
			}
		}
		for _, nxt := range step.Next {
			if _, ok := r.Steps[nxt]; !ok {
				return fmt.Errorf("recipe %q: step %q lists unknown next step %q", r.ID, id, nxt)
			}
		}

		switch step.Type {
		case StepTypeImmediate, StepTypeTimer:
		default:
			return fmt.Errorf("recipe %q: step %q has unknown type %q", r.ID, id, step.Type)
		}
		if step.Type == StepTypeTimer && step.DurationSecs() <= 0 {
			return fmt.Errorf("recipe %q: timer step %q has missing or invalid duration %q", r.ID, id, step.Duration)
		}
		switch step.UnlockWhen {
		case UnlockAll, UnlockAny:
		default:
			return fmt.Errorf("recipe %q: step %q has unknown unlock_when %q", r.ID, id, step.UnlockWhen)
		}
	}

	if cycle := findCycle(r); cycle != "" {
		return fmt.Errorf("recipe %q: dependency cycle through step %q", r.ID, cycle)
	}
	return nil
}

// findCycle runs a three-color DFS over the execution graph and returns
// the id of a step on a cycle, or "" if the graph is acyclic. Both edge
// kinds count, walked in flow direction: depends_on as dependency →
// dependent, next as step → successor. The usual mirrored depends_on/next
// pair thus collapses to one forward edge instead of a false cycle.
// Steps are visited in document order so the reported step is deterministic.
func findCycle(r *Recipe) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	succs := make(map[string][]string, len(r.Steps))
	for _, id := range r.StepOrder {
		step := r.Steps[id]
		for _, dep := range step.DependsOn {
			succs[dep] = append(succs[dep], id)
		}
		succs[id] = append(succs[id], step.Next...)
	}
	color := make(map[string]int, len(r.Steps))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, succ := range succs[id] {
			switch color[succ] {
			case gray:
				return succ
			case white:
				if c := visit(succ); c != "" {
					return c
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, id := range r.StepOrder {
		if color[id] == white {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	return ""
}
