package cpm

import (
	"sort"

	"github.com/wolf75222/alldone/internal/model"
)

// Result holds the complete critical path analysis.
type Result struct {
	Tasks           map[string]*Schedule `json:"tasks"`
	Critical        IDSet                `json:"-"`
	CriticalPath    []string             `json:"critical_path"` // critical ids in topological order
	ProjectDuration int                  `json:"project_duration"`
	Waves           []Wave               `json:"waves"`
	TopoOrder       []string             `json:"topo_order"`
	Excluded        []string             `json:"excluded,omitempty"` // tasks on a dependency cycle
}

// Schedule holds the timing of a single task, in days from project start.
type Schedule struct {
	TaskID     string `json:"task_id"`
	Duration   int    `json:"duration"`
	ES         int    `json:"earliest_start"`
	EF         int    `json:"earliest_finish"`
	LS         int    `json:"latest_start"`
	LF         int    `json:"latest_finish"`
	Slack      int    `json:"slack"`
	IsCritical bool   `json:"is_critical"`
	Wave       int    `json:"wave"`
}

// Wave is a group of tasks sharing the same earliest start.
type Wave struct {
	Index      int      `json:"index"`
	Start      int      `json:"start"`
	TaskIDs    []string `json:"task_ids"`
	IsCritical bool     `json:"is_critical"` // true if wave contains critical path tasks
}

// Edge is a dependency arrow between two tasks for drawing.
type Edge struct {
	From string             `json:"from"`
	To   string             `json:"to"`
	Kind model.RelationType `json:"kind"`
}

// IDSet is an unordered set of task ids.
type IDSet map[string]struct{}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
