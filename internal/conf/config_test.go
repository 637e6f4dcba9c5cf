package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func loadFrom(t *testing.T, content string) (*Settings, error) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	SetConfigFile(path)
	t.Cleanup(func() { SetConfigFile("") })

	return Load()
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	settings, err := loadFrom(t, getDefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "ambient-go", settings.Main.Name)
	assert.Equal(t, DefaultSampleRate, settings.Features.SampleRate)
	assert.InDelta(t, 5.0, settings.Audio.Capture.MinTime, 1e-9)
	assert.InDelta(t, 5.0, settings.Audio.Capture.MaxTime, 1e-9)
	assert.Equal(t, DefaultMaxFrames, settings.Prediction.MaxFrames)
	assert.Equal(t, DefaultCountLimit, settings.Prediction.Count)
	assert.InDelta(t, DefaultHitThreshold, settings.Prediction.Threshold, 1e-9)
	assert.Equal(t, DefaultMelBands, settings.Features.MelBands)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	assert.Same(t, settings, GetSettings())
}

func TestLoadPartialFileUsesDefaults(t *testing.T) {
	settings, err := loadFrom(t, `
audio:
  capture:
    mintime: 2
    maxtime: 8
mqtt:
  enabled: true
  cooldown: 30s
logging:
  file_output:
    enabled: true
    max_size: 5
`)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, settings.Audio.Capture.MinTime, 1e-9)
	assert.InDelta(t, 8.0, settings.Audio.Capture.MaxTime, 1e-9)
	assert.Equal(t, DefaultChunkSamples, settings.Audio.ChunkSamples)
	assert.True(t, settings.MQTT.Enabled)
	assert.Equal(t, 30*time.Second, settings.MQTT.Cooldown)
	assert.Equal(t, "ambient/predictions", settings.MQTT.Topic)
	require.NotNil(t, settings.Logging.FileOutput)
	assert.True(t, settings.Logging.FileOutput.Enabled)
	assert.Equal(t, 5, settings.Logging.FileOutput.MaxSize)
}

func TestLoadRejectsMinAboveMax(t *testing.T) {
	_, err := loadFrom(t, `
audio:
  capture:
    mintime: 6
    maxtime: 5
`)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Errors, 1)
	assert.Contains(t, ve.Errors[0], "exceeds max time")
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("AMBIENT_PREDICTION_COUNT", "7")
	t.Setenv("AMBIENT_AUDIO_SOURCE", "-")

	settings, err := loadFrom(t, getDefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 7, settings.Prediction.Count)
	assert.Equal(t, "-", settings.Audio.Source)
}

func TestWriteDefaultConfig(t *testing.T) {
	fsys := afero.NewMemMapFs()

	path, err := writeDefaultConfig(fsys, "/etc/ambient-go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/etc/ambient-go", "config.yaml"), path)

	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, getDefaultConfig(), string(data))
}

func TestSaveYAMLConfig(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/cfg", 0o755))

	settings := &Settings{}
	settings.Main.Name = "garden"
	settings.Audio.Capture.MinTime = 3
	settings.MQTT.Cooldown = time.Minute

	require.NoError(t, saveYAMLConfig(fsys, "/cfg/config.yaml", settings))

	data, err := afero.ReadFile(fsys, "/cfg/config.yaml")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "garden", decoded["main"].(map[string]any)["name"])
	assert.Equal(t, "1m0s", decoded["mqtt"].(map[string]any)["cooldown"])

	// temporary file is gone
	entries, err := afero.ReadDir(fsys, "/cfg")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
