// Package viewer serves the timeline graph over HTTP: every task with its
// schedule and findings, the dependency edges and the critical path.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/wolf75222/alldone/internal/cpm"
	"github.com/wolf75222/alldone/internal/reporter"
	"github.com/wolf75222/alldone/internal/snapshot"
	"github.com/wolf75222/alldone/internal/validate"
)

// --- Graph types ---

type GraphNode struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Status     string             `json:"status"`
	StartDate  *time.Time         `json:"start_date"`
	DueDate    *time.Time         `json:"due_date"`
	IsCritical bool               `json:"is_critical"`
	Slack      *int               `json:"slack"`
	WaveIndex  *int               `json:"wave_index"`
	Warnings   []validate.Warning `json:"warnings"`
}

type GraphMetadata struct {
	Workspace       string `json:"workspace"`
	ProjectDuration int    `json:"project_duration"`
	TotalTasks      int    `json:"total_tasks"`
	GeneratedAt     string `json:"generated_at"`
}

type Graph struct {
	Nodes        []GraphNode   `json:"nodes"`
	Edges        []cpm.Edge    `json:"edges"`
	CriticalPath []string      `json:"critical_path"`
	Excluded     []string      `json:"excluded"`
	Metadata     GraphMetadata `json:"metadata"`
}

// toGraph converts an analysed snapshot into the Graph the timeline renders.
// Undated tasks are included without a schedule.
func toGraph(rpt *reporter.Reporter, workspace string, now time.Time) *Graph {
	nodes := make([]GraphNode, 0, len(rpt.Snapshot.Tasks))
	seen := make(map[string]bool, len(rpt.Snapshot.Tasks))
	for _, t := range rpt.Snapshot.Tasks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true

		n := GraphNode{
			ID:        t.ID,
			Title:     t.Title,
			Status:    string(t.Status),
			StartDate: t.StartDate,
			DueDate:   t.DueDate,
			Warnings:  rpt.Findings[t.ID],
		}
		if n.Warnings == nil {
			n.Warnings = []validate.Warning{}
		}
		if s, ok := rpt.Result.Tasks[t.ID]; ok {
			slack, wave := s.Slack, s.Wave
			n.IsCritical = s.IsCritical
			n.Slack = &slack
			n.WaveIndex = &wave
		}
		nodes = append(nodes, n)
	}

	g := &Graph{
		Nodes:        nodes,
		Edges:        rpt.Edges,
		CriticalPath: rpt.Result.CriticalPath,
		Excluded:     rpt.Result.Excluded,
		Metadata: GraphMetadata{
			Workspace:       workspace,
			ProjectDuration: rpt.Result.ProjectDuration,
			TotalTasks:      len(nodes),
			GeneratedAt:     now.UTC().Format(time.RFC3339),
		},
	}
	if g.Edges == nil {
		g.Edges = []cpm.Edge{}
	}
	if g.CriticalPath == nil {
		g.CriticalPath = []string{}
	}
	if g.Excluded == nil {
		g.Excluded = []string{}
	}
	return g
}

// --- Metrics ---

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alldone_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alldone_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.3, 1, 3},
		},
		[]string{"method", "route"},
	)

	criticalTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alldone_critical_path_tasks",
			Help: "Number of tasks on the critical path at the last graph request",
		},
		[]string{"workspace"},
	)

	projectDuration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alldone_project_duration_days",
			Help: "Project duration in days at the last graph request",
		},
		[]string{"workspace"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrument records metrics and logs one line per request.
func instrument(route string, log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		elapsed := time.Since(start)
		requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		requestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": elapsed.Milliseconds(),
			"remote_ip":   r.RemoteAddr,
		}).Info("request completed")
	})
}

// --- HTTP server ---

// Server answers graph requests by loading a fresh snapshot from Source.
type Server struct {
	Source    snapshot.Source
	Workspace string // used when the request names none
	Log       logrus.FieldLogger

	now func() time.Time
}

// New creates a Server. A nil log falls back to the standard logrus logger.
func New(src snapshot.Source, workspace string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{Source: src, Workspace: workspace, Log: log, now: time.Now}
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workspace := r.URL.Query().Get("workspace")
	if workspace == "" {
		workspace = s.Workspace
	}

	snap, err := s.Source.Load(r.Context(), workspace)
	if err != nil {
		s.Log.WithError(err).WithField("workspace", workspace).Error("load snapshot")
		http.Error(w, "load snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}

	g := toGraph(reporter.New(snap), workspace, s.now())
	criticalTasks.WithLabelValues(workspace).Set(float64(len(g.CriticalPath)))
	projectDuration.WithLabelValues(workspace).Set(float64(g.Metadata.ProjectDuration))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(g)
}

// Handler returns the routes: GET /graph and GET /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/graph", instrument("/graph", s.Log, http.HandlerFunc(s.handleGetGraph)))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve listens on port and blocks until ctx is cancelled, then shuts the
// server down gracefully.
func (s *Server) Serve(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.Log.WithField("addr", ln.Addr().String()).Info("viewer listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// IsPortOpen checks if something is listening on the given address.
func IsPortOpen(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
