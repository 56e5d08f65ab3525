package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func resetRunFlags() {
	runConfigPath = ""
	runDuration = 10 * time.Second
	runRate = 0
	runWorkers = 0
	runJSON = false
	runNoColor = false
	runVerbose = false
}

func TestLoadRunConfigFlagOverrides(t *testing.T) {
	resetRunFlags()
	runRate = 750
	runWorkers = 3

	cfg, err := loadRunConfig()
	require.NoError(t, err)
	require.Equal(t, float64(750), cfg.Workload.Rate)
	require.Equal(t, 3, cfg.Workload.Workers)
	// Everything else stays at defaults.
	require.Equal(t, 1024, cfg.Estimator.Window)
}

func TestLoadRunConfigFromFile(t *testing.T) {
	resetRunFlags()

	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workload:
  rate: 50
  operationLatency: 2ms
report:
  interval: 100ms
`), 0o644))

	runConfigPath = path
	cfg, err := loadRunConfig()
	require.NoError(t, err)
	require.Equal(t, float64(50), cfg.Workload.Rate)
	require.Equal(t, 2*time.Millisecond, cfg.Workload.OperationLatency.Std())
	require.Equal(t, 100*time.Millisecond, cfg.Report.Interval.Std())
}

func TestLoadRunConfigRejectsBadFile(t *testing.T) {
	resetRunFlags()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workload:\n  rate: -5\n"), 0o644))

	runConfigPath = path
	_, err := loadRunConfig()
	require.Error(t, err)
}

func TestRunCommandJSONOutput(t *testing.T) {
	resetRunFlags()
	defer resetRunFlags()

	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(&buf)
	defer RootCmd.SetOut(nil)
	defer RootCmd.SetErr(nil)

	RootCmd.SetArgs([]string{"run",
		"--duration", "300ms",
		"--rate", "500",
		"--json",
		"--no-color",
	})
	require.NoError(t, RootCmd.Execute())

	// First line is the drained interval report; the indented object
	// after it is the run summary.
	lines := strings.SplitN(buf.String(), "\n", 2)
	require.NotEmpty(t, lines[0])

	interval := gjson.Parse(lines[0])
	require.True(t, interval.Get("uncorrected.count").Exists(), "interval JSON missing counts: %s", lines[0])
	require.Greater(t, interval.Get("uncorrected.count").Int(), int64(0),
		"a 300ms run at 500/s should record some latencies")

	require.Contains(t, lines[1], "\"intervals\"")
}
