package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/wolf75222/alldone/internal/model"
	"github.com/wolf75222/alldone/internal/validate"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	Blue        = color.New(color.FgBlue).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// SetEnabled forces colors on or off, e.g. when output is JSON or piped.
func SetEnabled(on bool) {
	color.NoColor = !on
}

// PrintBanner writes the one-line alldone banner to w.
func PrintBanner(w io.Writer, subtitle string) {
	brand := color.New(color.Bold, color.FgMagenta)
	brand.Fprint(w, "alldone")
	fmt.Fprintf(w, " %s %s\n", Dim("·"), Dim(subtitle))
}

// taskColors is a palette of distinct bold colors for differentiating tasks.
var taskColors = []func(a ...interface{}) string{
	BoldMagenta,
	BoldCyan,
	BoldYellow,
	BoldGreen,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

// taskColorIndex hashes a task ID to a palette index.
func taskColorIndex(taskID string) int {
	var h uint32
	for _, c := range taskID {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(len(taskColors)))
}

// TaskID returns the task id in a color derived from the id, so the same
// task reads the same across tables.
func TaskID(taskID string) string {
	return taskColors[taskColorIndex(taskID)](taskID)
}

// StatusIcon returns a colored icon for a task status.
func StatusIcon(status model.Status) string {
	switch status {
	case model.StatusDone:
		return Green("✓")
	case model.StatusInProgress:
		return Cyan("●")
	case model.StatusCancelled:
		return Dim("⊘")
	default:
		return Dim("◌")
	}
}

// Status returns the status name colored like its icon.
func Status(status model.Status) string {
	switch status {
	case model.StatusDone:
		return Green(string(status))
	case model.StatusInProgress:
		return Cyan(string(status))
	default:
		return Dim(string(status))
	}
}

// KindLabel returns the colored label of a validator finding.
func KindLabel(kind validate.Kind) string {
	switch kind {
	case validate.KindError:
		return BoldRed("✗ error")
	case validate.KindWarning:
		return BoldYellow("! warning")
	default:
		return Blue("i info")
	}
}

// Critical marks a task on the critical path.
func Critical(critical bool) string {
	if critical {
		return BoldYellow("⚡")
	}
	return " "
}

// Slack renders a slack value, highlighting zero.
func Slack(days int) string {
	if days <= 0 {
		return BoldRed("0")
	}
	return fmt.Sprintf("%d", days)
}
