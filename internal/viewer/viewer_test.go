package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolf75222/alldone/internal/model"
	"github.com/wolf75222/alldone/internal/snapshot"
)

type stubSource struct {
	snap      *snapshot.Snapshot
	err       error
	workspace string
}

func (s *stubSource) Load(_ context.Context, workspace string) (*snapshot.Snapshot, error) {
	s.workspace = workspace
	if s.err != nil {
		return nil, s.err
	}
	return s.snap.Scope(workspace), nil
}

func day(n int) *time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return &t
}

func fixture() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Tasks: []model.Task{
			{ID: "a", WorkspaceID: "w1", Title: "Design", Status: model.StatusDone, StartDate: day(0), DueDate: day(2)},
			{ID: "b", WorkspaceID: "w1", Title: "Build", Status: model.StatusTodo, StartDate: day(2), DueDate: day(5)},
			{ID: "c", WorkspaceID: "w1", Title: "Polish", Status: model.StatusTodo, StartDate: day(2), DueDate: day(3)},
			{ID: "d", WorkspaceID: "w1", Title: "Notes", Status: model.StatusInProgress},
			{ID: "z", WorkspaceID: "w2", Title: "Elsewhere", Status: model.StatusTodo, StartDate: day(0), DueDate: day(9)},
		},
		Relations: []model.Relation{
			{SourceTaskID: "a", TargetTaskID: "b", Type: model.RelationBlocks},
			{SourceTaskID: "a", TargetTaskID: "c", Type: model.RelationBlocks},
			{SourceTaskID: "b", TargetTaskID: "d", Type: model.RelationBlocks},
		},
	}
}

func newTestServer(src snapshot.Source) (*Server, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	s := New(src, "w1", log)
	s.now = func() time.Time { return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC) }
	return s, hook
}

func getGraph(t *testing.T, h http.Handler, url string) (*http.Response, Graph) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	resp := rec.Result()

	var g Graph
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	}
	return resp, g
}

func TestGetGraph(t *testing.T) {
	src := &stubSource{snap: fixture()}
	s, hook := newTestServer(src)

	resp, g := getGraph(t, s.Handler(), "/graph")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "w1", src.workspace, "default workspace is used")

	require.Len(t, g.Nodes, 4)
	assert.Equal(t, []string{"a", "b"}, g.CriticalPath)
	assert.Empty(t, g.Excluded)
	assert.Len(t, g.Edges, 3)

	a := g.Nodes[0]
	assert.True(t, a.IsCritical)
	require.NotNil(t, a.Slack)
	assert.Equal(t, 0, *a.Slack)
	require.NotNil(t, a.WaveIndex)
	assert.Equal(t, 0, *a.WaveIndex)
	assert.Empty(t, a.Warnings)

	c := g.Nodes[2]
	assert.False(t, c.IsCritical)
	assert.Equal(t, 2, *c.Slack)

	d := g.Nodes[3]
	assert.Nil(t, d.Slack)
	assert.Nil(t, d.StartDate)
	require.Len(t, d.Warnings, 1)
	assert.Equal(t, `Blocked by "Build" (todo)`, d.Warnings[0].Message)

	assert.Equal(t, GraphMetadata{
		Workspace:       "w1",
		ProjectDuration: 5,
		TotalTasks:      4,
		GeneratedAt:     "2024-02-01T12:00:00Z",
	}, g.Metadata)

	assert.Equal(t, 2.0, testutil.ToFloat64(criticalTasks.WithLabelValues("w1")))
	assert.Equal(t, 5.0, testutil.ToFloat64(projectDuration.WithLabelValues("w1")))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request completed", entry.Message)
	assert.Equal(t, http.StatusOK, entry.Data["status"])
}

func TestGetGraph_WorkspaceQuery(t *testing.T) {
	src := &stubSource{snap: fixture()}
	s, _ := newTestServer(src)

	resp, g := getGraph(t, s.Handler(), "/graph?workspace=w2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "w2", src.workspace)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, 9, g.Metadata.ProjectDuration)
	assert.Equal(t, []string{"z"}, g.CriticalPath)
}

func TestGetGraph_EmptyListsNotNull(t *testing.T) {
	s, _ := newTestServer(&stubSource{snap: &snapshot.Snapshot{}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graph", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"edges":[]`)
	assert.Contains(t, string(body), `"critical_path":[]`)
	assert.Contains(t, string(body), `"excluded":[]`)
}

func TestGetGraph_SourceError(t *testing.T) {
	s, hook := newTestServer(&stubSource{err: errors.New("database is down")})

	resp, _ := getGraph(t, s.Handler(), "/graph")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "load snapshot" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestGetGraph_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(&stubSource{snap: fixture()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graph", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(&stubSource{snap: fixture()})
	h := s.Handler()
	getGraph(t, h, "/graph")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `alldone_http_requests_total{method="GET",route="/graph",status="200"}`)
	assert.Contains(t, rec.Body.String(), "alldone_critical_path_tasks")
}

func TestServe_StopsOnCancel(t *testing.T) {
	s, _ := newTestServer(&stubSource{snap: fixture()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, 0) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
