package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// FileSource reads a snapshot from a JSON or YAML file on every Load.
type FileSource struct {
	Path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads the file and scopes it to workspaceID.
func (f *FileSource) Load(ctx context.Context, workspaceID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap *Snapshot
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".yaml", ".yml":
		snap, err = DecodeYAML(data)
	default:
		snap, err = DecodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", f.Path, err)
	}
	return snap.Scope(workspaceID), nil
}

// DecodeJSON parses a JSON snapshot. Relations may live under "relations" or
// under "task_relations" as in a raw table export.
func DecodeJSON(data []byte) (*Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)

	var tasks []rawTask
	root.Get("tasks").ForEach(func(_, item gjson.Result) bool {
		tasks = append(tasks, rawTask{
			ID:          item.Get("id").String(),
			WorkspaceID: item.Get("workspace_id").String(),
			ProjectID:   item.Get("project_id").String(),
			Title:       item.Get("title").String(),
			Status:      item.Get("status").String(),
			StartDate:   optionalString(item.Get("start_date")),
			DueDate:     optionalString(item.Get("due_date")),
		})
		return true
	})

	rels := root.Get("relations")
	if !rels.Exists() {
		rels = root.Get("task_relations")
	}
	var relations []rawRelation
	rels.ForEach(func(_, item gjson.Result) bool {
		relations = append(relations, rawRelation{
			ID:           item.Get("id").String(),
			SourceTaskID: item.Get("source_task_id").String(),
			TargetTaskID: item.Get("target_task_id").String(),
			RelationType: item.Get("relation_type").String(),
			CreatedAt:    item.Get("created_at").String(),
			CreatedBy:    item.Get("created_by").String(),
		})
		return true
	})

	return fromRaw(tasks, relations)
}

// DecodeYAML parses a YAML snapshot with "tasks" and "relations" lists.
func DecodeYAML(data []byte) (*Snapshot, error) {
	var doc struct {
		Tasks     []rawTask     `yaml:"tasks"`
		Relations []rawRelation `yaml:"relations"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return fromRaw(doc.Tasks, doc.Relations)
}

func optionalString(r gjson.Result) *string {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	s := r.String()
	return &s
}
