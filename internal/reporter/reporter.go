package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wolf75222/alldone/internal/cpm"
	"github.com/wolf75222/alldone/internal/model"
	"github.com/wolf75222/alldone/internal/snapshot"
	"github.com/wolf75222/alldone/internal/ui"
	"github.com/wolf75222/alldone/internal/validate"
)

// Reporter renders the engine output for one snapshot.
type Reporter struct {
	Snapshot *snapshot.Snapshot
	Result   *cpm.Result
	Findings map[string][]validate.Warning
	Edges    []cpm.Edge
}

// New runs the critical path calculator and the relation validator over snap.
func New(snap *snapshot.Snapshot) *Reporter {
	return &Reporter{
		Snapshot: snap,
		Result:   cpm.Analyze(snap.Tasks, snap.Relations),
		Findings: validate.Report(snap.Tasks, snap.Relations),
		Edges:    cpm.Connections(snap.Tasks, snap.Relations),
	}
}

func (r *Reporter) title(id string) string {
	if t, ok := r.Snapshot.Task(id); ok {
		return t.Title
	}
	return ""
}

func (r *Reporter) status(id string) model.Status {
	t, _ := r.Snapshot.Task(id)
	return t.Status
}

// PrintPath writes the critical path summary followed by the schedule,
// grouped in waves of tasks that can start on the same day.
func (r *Reporter) PrintPath(w io.Writer) {
	dated := 0
	for _, t := range r.Snapshot.Tasks {
		if t.HasDates() {
			dated++
		}
	}

	fmt.Fprintf(w, "🎯 %s\n", ui.BoldCyan("Critical Path"))
	fmt.Fprintln(w, ui.Cyan("═════════════"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Tasks:     %s total, %s scheduled\n", ui.Bold(len(r.Snapshot.Tasks)), ui.Bold(len(r.Result.Tasks)))
	if undated := len(r.Snapshot.Tasks) - dated; undated > 0 {
		fmt.Fprintf(w, "           %s\n", ui.Dim(fmt.Sprintf("%d without start and due date", undated)))
	}
	fmt.Fprintf(w, "Duration:  %s days\n", ui.Bold(r.Result.ProjectDuration))
	if len(r.Result.CriticalPath) > 0 {
		fmt.Fprintf(w, "⚡ Path:   %s (%d tasks)\n",
			ui.BoldYellow(strings.Join(r.Result.CriticalPath, " → ")), len(r.Result.CriticalPath))
	} else {
		fmt.Fprintf(w, "⚡ Path:   %s\n", ui.Dim("none"))
	}
	if len(r.Result.Excluded) > 0 {
		fmt.Fprintf(w, "%s %s\n", ui.BoldRed("Cycle:"), strings.Join(r.Result.Excluded, ", "))
		fmt.Fprintf(w, "           %s\n", ui.Dim("tasks on a dependency cycle are left out of the schedule"))
	}
	fmt.Fprintln(w)

	for _, wave := range r.Result.Waves {
		fmt.Fprintf(w, "🌊 %s %d %s\n", ui.BoldWhite("Day"), wave.Start, ui.Dim(fmt.Sprintf("(%d tasks)", len(wave.TaskIDs))))
		for _, id := range wave.TaskIDs {
			s := r.Result.Tasks[id]
			fmt.Fprintf(w, "  %s %s %s  %s  %s\n",
				ui.Critical(s.IsCritical),
				ui.StatusIcon(r.status(id)),
				ui.TaskID(id),
				r.title(id),
				ui.Dim(fmt.Sprintf("[%dd, ends day %d, slack %s]", s.Duration, s.EF, ui.Slack(s.Slack))))
		}
		fmt.Fprintln(w)
	}
}

// PrintWarnings writes the findings for taskID, or for every task with
// findings when taskID is empty. It returns the number of findings printed.
func (r *Reporter) PrintWarnings(w io.Writer, taskID string) int {
	ids := make([]string, 0, len(r.Findings))
	if taskID != "" {
		ids = append(ids, taskID)
	} else {
		for _, t := range r.Snapshot.Tasks {
			if _, ok := r.Findings[t.ID]; ok && !contains(ids, t.ID) {
				ids = append(ids, t.ID)
			}
		}
	}

	n := 0
	for _, id := range ids {
		findings := r.Findings[id]
		if len(findings) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s %s  %s\n", ui.StatusIcon(r.status(id)), ui.TaskID(id), r.title(id))
		for _, f := range findings {
			fmt.Fprintf(w, "    %s  %s\n", ui.KindLabel(f.Kind), f.Message)
			n++
		}
	}

	if n == 0 {
		fmt.Fprintf(w, "%s\n", ui.Green("✓ No relation problems found."))
		return 0
	}
	counts := validate.Counts(r.Findings)
	if taskID == "" {
		fmt.Fprintf(w, "\n%s errors, %s warnings\n",
			ui.BoldRed(counts[validate.KindError]), ui.BoldYellow(counts[validate.KindWarning]))
	}
	return n
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// PrintEdges lists the dependency connections, critical ones highlighted.
func (r *Reporter) PrintEdges(w io.Writer) {
	if len(r.Edges) == 0 {
		fmt.Fprintln(w, ui.Dim("No dependency connections."))
		return
	}
	for _, e := range r.Edges {
		arrow := ui.Dim("──→")
		if r.Result.Critical.Has(e.From) && r.Result.Critical.Has(e.To) {
			arrow = ui.BoldYellow("══→")
		}
		fmt.Fprintf(w, "  %s %s %s  %s\n", ui.TaskID(e.From), arrow, ui.TaskID(e.To), ui.Dim(string(e.Kind)))
	}
}

// PrintDOT writes a Graphviz digraph of the tasks and their connections.
// Critical tasks and edges between two critical tasks are drawn in red;
// excluded tasks are dashed.
func (r *Reporter) PrintDOT(w io.Writer) {
	fmt.Fprintln(w, "digraph alldone {")
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box, style=rounded];")
	fmt.Fprintln(w)

	excluded := make(map[string]bool, len(r.Result.Excluded))
	for _, id := range r.Result.Excluded {
		excluded[id] = true
	}

	seen := make(map[string]bool, len(r.Snapshot.Tasks))
	for _, t := range r.Snapshot.Tasks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true

		label := fmt.Sprintf("%s\\n%s", dotEscape(t.ID), dotEscape(t.Title))
		if s, ok := r.Result.Tasks[t.ID]; ok {
			label += fmt.Sprintf("\\n%dd, slack %d", s.Duration, s.Slack)
		}
		attrs := fmt.Sprintf(`label="%s"`, label)
		switch {
		case r.Result.Critical.Has(t.ID):
			attrs += `, style="rounded,bold", color=red`
		case excluded[t.ID]:
			attrs += `, style="rounded,dashed", color=gray`
		}
		fmt.Fprintf(w, "  %q [%s];\n", t.ID, attrs)
	}

	fmt.Fprintln(w)

	for _, e := range r.Edges {
		style := ""
		if r.Result.Critical.Has(e.From) && r.Result.Critical.Has(e.To) {
			style = ` [color=red, penwidth=2]`
		}
		fmt.Fprintf(w, "  %q -> %q%s;\n", e.From, e.To, style)
	}

	fmt.Fprintln(w, "}")
}

func dotEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// JSON returns the machine-readable analysis.
func (r *Reporter) JSON() ([]byte, error) {
	type output struct {
		*cpm.Result
		Edges    []cpm.Edge                    `json:"edges"`
		Warnings map[string][]validate.Warning `json:"warnings"`
	}
	o := output{Result: r.Result, Edges: r.Edges, Warnings: r.Findings}
	if o.Edges == nil {
		o.Edges = []cpm.Edge{}
	}
	return json.MarshalIndent(o, "", "  ")
}

// Summary returns a one-line description of the analysis.
func (r *Reporter) Summary() string {
	counts := validate.Counts(r.Findings)
	s := fmt.Sprintf("%d tasks scheduled over %d days, %d on the critical path, %d errors, %d warnings",
		len(r.Result.Tasks), r.Result.ProjectDuration, len(r.Result.CriticalPath),
		counts[validate.KindError], counts[validate.KindWarning])
	if len(r.Result.Excluded) > 0 {
		excluded := append([]string(nil), r.Result.Excluded...)
		sort.Strings(excluded)
		s += fmt.Sprintf(", cycle through %s", strings.Join(excluded, ", "))
	}
	return s
}
