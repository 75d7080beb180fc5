package diag_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"optcore/internal/diag"
	"optcore/internal/stats"
)

// disableColor makes Reporter output deterministic to assert on regardless
// of whether the test runner's stdout is a terminal.
func disableColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestBailoutIsWrappable(t *testing.T) {
	err := fmt.Errorf("vectorizer: unsupported body shape: %w", diag.Bailout)
	require.True(t, errors.Is(err, diag.Bailout))
	require.False(t, errors.Is(err, diag.ResourceExhausted))
}

func TestReporterPrintsNonZeroCountersWhenVerbose(t *testing.T) {
	disableColor(t)
	counters := stats.NewCounters()
	counters.Add("lse_reads_eliminated", 3)
	counters.Inc("loops_vectorized")

	var buf bytes.Buffer
	r := diag.NewReporter(&buf)
	r.Verbose = true
	r.Report("run-1", counters, nil)

	out := buf.String()
	require.Contains(t, out, "run-1")
	require.Contains(t, out, "lse_reads_eliminated: 3")
	require.Contains(t, out, "loops_vectorized: 1")
}

func TestReporterOmitsCountersWhenNotVerbose(t *testing.T) {
	disableColor(t)
	counters := stats.NewCounters()
	counters.Inc("lse_reads_eliminated")

	var buf bytes.Buffer
	r := diag.NewReporter(&buf)
	r.Report("run-1", counters, nil)

	require.NotContains(t, buf.String(), "lse_reads_eliminated")
}

func TestReporterPrintsError(t *testing.T) {
	disableColor(t)
	var buf bytes.Buffer
	r := diag.NewReporter(&buf)
	r.Report("run-1", stats.NewCounters(), errors.New("boom"))
	require.Contains(t, buf.String(), "boom")
}
