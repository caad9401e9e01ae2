// Package validate flags tasks whose status contradicts their blocks and
// depends relations. Findings are advisory and never block an operation.
package validate

import (
	"fmt"

	"github.com/wolf75222/alldone/internal/model"
)

// Kind is the severity of a finding.
type Kind string

const (
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info" // reserved, no rule emits it yet
)

// Warning is a single advisory finding about a task.
type Warning struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Warnings checks one task's relations against the statuses of the tasks on
// the other end. Relations pointing at unknown tasks are skipped.
//
// Findings come out blocked-by checks first, then blocks checks, then
// depends checks, each in relation order.
func Warnings(taskID string, status model.Status, relations []model.Relation, tasks []model.Task) []Warning {
	idx := model.Index(tasks)
	lookup := func(id string) (model.Task, bool) {
		i, ok := idx[id]
		if !ok {
			return model.Task{}, false
		}
		return tasks[i], true
	}

	var out []Warning

	// Something blocks this task but is not done yet.
	for _, r := range relations {
		if r.Type != model.RelationBlocks || r.TargetTaskID != taskID {
			continue
		}
		blocker, ok := lookup(r.SourceTaskID)
		if !ok {
			continue
		}
		if blocker.Status != model.StatusDone && status.Started() {
			out = append(out, Warning{
				Kind:    KindError,
				Message: fmt.Sprintf(`Blocked by "%s" (%s)`, blocker.Title, blocker.Status),
			})
		}
	}

	// This task blocks something that already moved on.
	for _, r := range relations {
		if r.Type != model.RelationBlocks || r.SourceTaskID != taskID {
			continue
		}
		blocked, ok := lookup(r.TargetTaskID)
		if !ok {
			continue
		}
		if blocked.Status.Started() && status != model.StatusDone {
			out = append(out, Warning{
				Kind:    KindWarning,
				Message: fmt.Sprintf(`Blocks "%s" which is already %s`, blocked.Title, blocked.Status),
			})
		}
	}

	// This task is done but a dependency is not.
	for _, r := range relations {
		if r.Type != model.RelationDepends || r.SourceTaskID != taskID {
			continue
		}
		dep, ok := lookup(r.TargetTaskID)
		if !ok {
			continue
		}
		if dep.Status != model.StatusDone && status == model.StatusDone {
			out = append(out, Warning{
				Kind:    KindWarning,
				Message: fmt.Sprintf(`Depends on "%s" (%s)`, dep.Title, dep.Status),
			})
		}
	}

	return out
}

// Report runs Warnings for every task using its own status and returns the
// tasks that have at least one finding.
func Report(tasks []model.Task, relations []model.Relation) map[string][]Warning {
	out := make(map[string][]Warning)
	for id, i := range model.Index(tasks) {
		if w := Warnings(id, tasks[i].Status, relations, tasks); len(w) > 0 {
			out[id] = w
		}
	}
	return out
}

// Counts tallies findings by kind.
func Counts(findings map[string][]Warning) map[Kind]int {
	counts := make(map[Kind]int)
	for _, ws := range findings {
		for _, w := range ws {
			counts[w.Kind]++
		}
	}
	return counts
}
