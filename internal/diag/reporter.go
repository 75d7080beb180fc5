package diag

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"optcore/internal/stats"
)

// Reporter prints a post-pipeline summary: the run ID, every non-zero
// counter (when Verbose), and the terminal error if the pipeline stopped
// early. Color
// conventions (bold headers, dim labels, red for fatal, green for a clean
// run) follow the teacher's ErrorReporter in internal/errors/reporter.go.
type Reporter struct {
	Out     io.Writer
	Verbose bool
}

// NewReporter returns a Reporter writing to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{Out: out}
}

// Report prints runID, then (when Verbose) every non-zero counter sorted by
// name for reproducible output, then the terminal error if err is non-nil.
func (r *Reporter) Report(runID string, counters *stats.Counters, err error) {
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(r.Out, "%s %s\n", bold("optimization run"), dim(runID))

	if r.Verbose {
		r.reportCounters(dim, counters)
	}

	if err != nil {
		red := color.New(color.FgRed, color.Bold).SprintFunc()
		fmt.Fprintf(r.Out, "%s %s\n", red("error:"), err)
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.Out, "%s\n", green("ok"))
}

func (r *Reporter) reportCounters(dim func(...interface{}) string, counters *stats.Counters) {
	snap := counters.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if snap[name] == 0 {
			continue
		}
		fmt.Fprintf(r.Out, "  %s %d\n", dim(name+":"), snap[name])
	}
}
