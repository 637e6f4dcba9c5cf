package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/ambient-go/internal/analysis"
	"github.com/tphakala/ambient-go/internal/buildinfo"
	"github.com/tphakala/ambient-go/internal/logger"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "logging:\n  console:\n    enabled: false\n  file_output:\n    enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	prev := logger.Global()
	t.Cleanup(func() {
		viper.Reset()
		logger.SetGlobal(prev)
	})

	root := RootCommand(buildinfo.NewContext("1.2.3", "2024-05-01"))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestRootCommandTree(t *testing.T) {
	root := RootCommand(buildinfo.NewContext("", ""))

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"realtime", "file", "capture", "devices"}, names)
	assert.Equal(t, "unknown (built unknown)", root.Version)
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.2.3 (built 2024-05-01)")
}

func TestFileRequiresOneArgument(t *testing.T) {
	_, err := execute(t, "file")
	require.Error(t, err)
}

func TestCaptureRejectsPeriod(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "capture", "-p", "11")
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrInvalidPeriod)
}

func TestFlagsOverrideConfig(t *testing.T) {
	// the period check fails after settings are loaded, so no device opens
	_, err := execute(t, "--config", writeConfig(t), "-t", "0.4", "-n", "7", "capture", "--source", "hw:2,0", "-p", "0")
	require.ErrorIs(t, err, analysis.ErrInvalidPeriod)

	assert.InDelta(t, 0.4, viper.GetFloat64("prediction.threshold"), 1e-9)
	assert.Equal(t, 7, viper.GetInt("prediction.count"))
	assert.Equal(t, "hw:2,0", viper.GetString("audio.source"))
}
