package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/median-degree/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Window())
	assert.Equal(t, "2006-01-02T15:04:05Z", cfg.TimestampLayout)
	assert.Equal(t, 10*time.Second, cfg.ProgressInterval())
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
	assert.Empty(t, cfg.DBPath)
}

func TestLoadConfigJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json", `{
		"input_paths": ["venmo-trans.txt"],
		"output_path": "output.txt",
		"window_seconds": 30,
		"db_path": "medians.db",
		"log_level": "debug",
		"check_invariants": true
	}`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"venmo-trans.txt"}, cfg.InputPaths)
	assert.Equal(t, "output.txt", cfg.OutputPath)
	assert.Equal(t, 30*time.Second, cfg.Window())
	assert.Equal(t, "medians.db", cfg.DBPath)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.True(t, cfg.CheckInvariants)
	assert.Equal(t, config.DefaultQueueCapacity, cfg.QueueCapacity)
}

func TestLoadConfigYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
input_url: "https://example.com/venmo.txt"
window_seconds: 90
fetch_timeout_ms: 5000
prometheus_textfile: /var/lib/node_exporter/median_degree.prom
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/venmo.txt", cfg.InputURL)
	assert.Equal(t, 90*time.Second, cfg.Window())
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout())
	assert.Equal(t, "/var/lib/node_exporter/median_degree.prom", cfg.PrometheusTextfile)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{name: "negative window", file: "c.json", content: `{"window_seconds": -5}`, want: config.ErrInvalidWindow},
		{name: "bad log level", file: "c.json", content: `{"log_level": "loud"}`, want: config.ErrInvalidLogLevel},
		{name: "url and paths", file: "c.yml", content: "input_url: http://x\ninput_paths: [a]\n", want: config.ErrConflictingURL},
		{name: "negative batch", file: "c.json", content: `{"batch_size": -1}`, want: config.ErrInvalidBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeFile(t, tt.file, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfigRejectsUnknownJSONField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeFile(t, "config.json", `{"seed_url": "https://example.com"}`))
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
