package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/wolf75222/alldone/internal/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store reads and writes tasks and relations in a SQL database using the
// tasks / task_relations layout.
type Store struct {
	db     *sql.DB
	driver string
	Log    logrus.FieldLogger
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q (use %s or %s)", driver, DriverSQLite, DriverPostgres)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps :memory: databases shared and writes serialized.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, driver: driver, Log: logrus.StandardLogger()}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		project_id TEXT,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'todo',
		start_date TIMESTAMP,
		due_date TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS task_relations (
		id TEXT PRIMARY KEY,
		source_task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		target_task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		relation_type TEXT NOT NULL CHECK (relation_type IN ('blocks', 'depends', 'duplicates', 'relates')),
		created_at TIMESTAMP NOT NULL,
		created_by TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_workspace ON tasks(workspace_id)`,
	`CREATE INDEX IF NOT EXISTS idx_task_relations_source ON task_relations(source_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_task_relations_target ON task_relations(target_task_id)`,
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Load returns the tasks of a workspace and every relation touching them.
// An empty workspaceID loads the whole database.
func (s *Store) Load(ctx context.Context, workspaceID string) (*Snapshot, error) {
	taskQuery := `SELECT id, workspace_id, COALESCE(project_id, ''), title, status, start_date, due_date
		FROM tasks`
	relQuery := `SELECT id, source_task_id, target_task_id, relation_type, created_at, COALESCE(created_by, '')
		FROM task_relations`
	var args []any
	if workspaceID != "" {
		taskQuery += ` WHERE workspace_id = ?`
		relQuery += ` WHERE source_task_id IN (SELECT id FROM tasks WHERE workspace_id = ?)
			OR target_task_id IN (SELECT id FROM tasks WHERE workspace_id = ?)`
		args = []any{workspaceID}
	}
	taskQuery += ` ORDER BY created_at, id`
	relQuery += ` ORDER BY created_at, id`

	snap := &Snapshot{}

	rows, err := s.db.QueryContext(ctx, s.rebind(taskQuery), args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t          model.Task
			status     string
			start, due sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.ProjectID, &t.Title, &status, &start, &due); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t.Status, err = model.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		if start.Valid {
			v := start.Time
			t.StartDate = &v
		}
		if due.Valid {
			v := due.Time
			t.DueDate = &v
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	if workspaceID != "" {
		args = []any{workspaceID, workspaceID}
	}
	relRows, err := s.db.QueryContext(ctx, s.rebind(relQuery), args...)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer relRows.Close()
	for relRows.Next() {
		var (
			r    model.Relation
			kind string
		)
		if err := relRows.Scan(&r.ID, &r.SourceTaskID, &r.TargetTaskID, &kind, &r.CreatedAt, &r.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		if r.Type, err = model.ParseRelationType(kind); err != nil {
			return nil, fmt.Errorf("relation %s: %w", r.ID, err)
		}
		snap.Relations = append(snap.Relations, r)
	}
	if err := relRows.Err(); err != nil {
		return nil, fmt.Errorf("read relations: %w", err)
	}

	s.Log.WithFields(logrus.Fields{
		"workspace": workspaceID,
		"tasks":     len(snap.Tasks),
		"relations": len(snap.Relations),
	}).Debug("snapshot loaded")
	return snap, nil
}

// AddTask inserts a task. A missing id is generated.
func (s *Store) AddTask(ctx context.Context, t model.Task) (*model.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.StatusTodo
	}
	var project any
	if t.ProjectID != "" {
		project = t.ProjectID
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO tasks
		(id, workspace_id, project_id, title, status, start_date, due_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.WorkspaceID, project, t.Title, string(t.Status), nullTime(t.StartDate), nullTime(t.DueDate), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return &t, nil
}

// UpdateTaskStatus sets a task's status.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status model.Status) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE tasks SET status = ? WHERE id = ?`), string(status), id)
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	return expectOne(res, "task "+id)
}

// AddRelation links source to target. Self relations, unknown tasks and a
// second relation between the same pair (in either direction) are refused.
func (s *Store) AddRelation(ctx context.Context, source, target string, kind model.RelationType, createdBy string) (*model.Relation, error) {
	if source == target {
		return nil, ErrSelfRelation
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var found int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM tasks WHERE id IN (?, ?)`), source, target).Scan(&found)
	if err != nil {
		return nil, fmt.Errorf("check tasks: %w", err)
	}
	if found != 2 {
		return nil, fmt.Errorf("task %s or %s: %w", source, target, ErrNotFound)
	}

	var existing int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM task_relations
		WHERE (source_task_id = ? AND target_task_id = ?) OR (source_task_id = ? AND target_task_id = ?)`),
		source, target, target, source).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("check relations: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicateRelation
	}

	rel := &model.Relation{
		ID:           uuid.NewString(),
		SourceTaskID: source,
		TargetTaskID: target,
		Type:         kind,
		CreatedAt:    time.Now().UTC(),
		CreatedBy:    createdBy,
	}
	var by any
	if createdBy != "" {
		by = createdBy
	}
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO task_relations
		(id, source_task_id, target_task_id, relation_type, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?)`),
		rel.ID, rel.SourceTaskID, rel.TargetTaskID, string(rel.Type), rel.CreatedAt, by)
	if err != nil {
		return nil, fmt.Errorf("insert relation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.Log.WithFields(logrus.Fields{
		"relation": rel.ID,
		"source":   source,
		"target":   target,
		"type":     kind,
	}).Info("relation added")
	return rel, nil
}

// RemoveRelation deletes a relation by id.
func (s *Store) RemoveRelation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM task_relations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete relation %s: %w", id, err)
	}
	if err := expectOne(res, "relation "+id); err != nil {
		return err
	}
	s.Log.WithField("relation", id).Info("relation removed")
	return nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// IsConflict reports whether err is a relation rule violation rather than an
// infrastructure failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSelfRelation) || errors.Is(err, ErrDuplicateRelation)
}
