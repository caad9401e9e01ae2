package model

import (
	"fmt"
	"math"
	"time"
)

// Status is the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every valid status in board order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone, StatusCancelled}

// ParseStatus converts a raw status string into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Started reports whether work on the task has begun or finished.
func (s Status) Started() bool {
	return s == StatusInProgress || s == StatusDone
}

// RelationType is the kind of directed link between two tasks.
type RelationType string

const (
	// RelationBlocks means the source blocks the target.
	RelationBlocks RelationType = "blocks"
	// RelationDepends means the source depends on the target.
	RelationDepends    RelationType = "depends"
	RelationDuplicates RelationType = "duplicates"
	RelationRelates    RelationType = "relates"
)

// RelationTypes lists every valid relation type.
var RelationTypes = []RelationType{RelationBlocks, RelationDepends, RelationDuplicates, RelationRelates}

// ParseRelationType converts a raw relation type string into a RelationType.
func ParseRelationType(s string) (RelationType, error) {
	for _, rt := range RelationTypes {
		if string(rt) == s {
			return rt, nil
		}
	}
	return "", fmt.Errorf("unknown relation type %q", s)
}

// Schedules reports whether relations of this type order tasks in time.
func (t RelationType) Schedules() bool {
	return t == RelationBlocks || t == RelationDepends
}

// Task is a single unit of work as supplied by the data-access layer.
type Task struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id,omitempty"`
	ProjectID   string     `json:"project_id,omitempty"`
	Title       string     `json:"title"`
	Status      Status     `json:"status"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// HasDates reports whether both the start and due date are set.
func (t Task) HasDates() bool {
	return t.StartDate != nil && t.DueDate != nil
}

// Duration returns the task length in whole calendar days, never less than 1.
// Tasks without both dates report 0.
func (t Task) Duration() int {
	if !t.HasDates() {
		return 0
	}
	return DaysBetween(*t.StartDate, *t.DueDate)
}

// DaysBetween returns ceil((end-start) / 1 day), floored at 1.
func DaysBetween(start, end time.Time) int {
	days := math.Ceil(end.Sub(start).Hours() / 24)
	if days < 1 {
		return 1
	}
	return int(days)
}

// Relation is a directed edge between two tasks.
type Relation struct {
	ID           string       `json:"id,omitempty"`
	SourceTaskID string       `json:"source_task_id"`
	TargetTaskID string       `json:"target_task_id"`
	Type         RelationType `json:"relation_type"`
	CreatedAt    time.Time    `json:"created_at,omitempty"`
	CreatedBy    string       `json:"created_by,omitempty"`
}

// Index maps task ids to positions in a task slice. The first task with a
// given id wins.
func Index(tasks []Task) map[string]int {
	idx := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if _, ok := idx[t.ID]; !ok {
			idx[t.ID] = i
		}
	}
	return idx
}
