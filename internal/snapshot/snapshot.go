// Package snapshot loads task and relation snapshots for a workspace and
// writes relation changes back to the store.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolf75222/alldone/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrSelfRelation      = errors.New("a task cannot relate to itself")
	ErrDuplicateRelation = errors.New("tasks are already related")
)

// Snapshot is the full set of tasks and relations for one workspace.
type Snapshot struct {
	Tasks     []model.Task     `json:"tasks"`
	Relations []model.Relation `json:"relations"`
}

// Source supplies snapshots to the engine.
type Source interface {
	Load(ctx context.Context, workspaceID string) (*Snapshot, error)
}

// Scope keeps the tasks of one workspace and the relations touching them.
// An empty workspaceID keeps everything.
func (s *Snapshot) Scope(workspaceID string) *Snapshot {
	if workspaceID == "" {
		return s
	}
	out := &Snapshot{}
	keep := make(map[string]bool)
	for _, t := range s.Tasks {
		if t.WorkspaceID == workspaceID {
			out.Tasks = append(out.Tasks, t)
			keep[t.ID] = true
		}
	}
	for _, r := range s.Relations {
		if keep[r.SourceTaskID] || keep[r.TargetTaskID] {
			out.Relations = append(out.Relations, r)
		}
	}
	return out
}

// Task returns the first task with the given id.
func (s *Snapshot) Task(id string) (model.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// rawTask is a task record as it appears in files and database rows, before
// enum and date parsing.
type rawTask struct {
	ID          string  `yaml:"id"`
	WorkspaceID string  `yaml:"workspace_id"`
	ProjectID   string  `yaml:"project_id"`
	Title       string  `yaml:"title"`
	Status      string  `yaml:"status"`
	StartDate   *string `yaml:"start_date"`
	DueDate     *string `yaml:"due_date"`
}

type rawRelation struct {
	ID           string `yaml:"id"`
	SourceTaskID string `yaml:"source_task_id"`
	TargetTaskID string `yaml:"target_task_id"`
	RelationType string `yaml:"relation_type"`
	CreatedAt    string `yaml:"created_at"`
	CreatedBy    string `yaml:"created_by"`
}

func (r rawTask) toModel() (model.Task, error) {
	status := model.StatusTodo
	if r.Status != "" {
		var err error
		status, err = model.ParseStatus(r.Status)
		if err != nil {
			return model.Task{}, fmt.Errorf("task %s: %w", r.ID, err)
		}
	}
	start, err := parseOptionalTime(r.StartDate)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s start_date: %w", r.ID, err)
	}
	due, err := parseOptionalTime(r.DueDate)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s due_date: %w", r.ID, err)
	}
	return model.Task{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		ProjectID:   r.ProjectID,
		Title:       r.Title,
		Status:      status,
		StartDate:   start,
		DueDate:     due,
	}, nil
}

func (r rawRelation) toModel() (model.Relation, error) {
	rt, err := model.ParseRelationType(r.RelationType)
	if err != nil {
		return model.Relation{}, fmt.Errorf("relation %s: %w", r.ID, err)
	}
	rel := model.Relation{
		ID:           r.ID,
		SourceTaskID: r.SourceTaskID,
		TargetTaskID: r.TargetTaskID,
		Type:         rt,
		CreatedBy:    r.CreatedBy,
	}
	if r.CreatedAt != "" {
		ts, err := ParseTime(r.CreatedAt)
		if err != nil {
			return model.Relation{}, fmt.Errorf("relation %s created_at: %w", r.ID, err)
		}
		rel.CreatedAt = ts
	}
	return rel, nil
}

func fromRaw(tasks []rawTask, relations []rawRelation) (*Snapshot, error) {
	snap := &Snapshot{
		Tasks:     make([]model.Task, 0, len(tasks)),
		Relations: make([]model.Relation, 0, len(relations)),
	}
	for _, rt := range tasks {
		t, err := rt.toModel()
		if err != nil {
			return nil, err
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	for _, rr := range relations {
		r, err := rr.toModel()
		if err != nil {
			return nil, err
		}
		snap.Relations = append(snap.Relations, r)
	}
	return snap, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 timestamps, Postgres-style timestamps with a
// space separator, timestamps without zone (read as UTC) and plain dates.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := ParseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
