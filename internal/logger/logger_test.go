package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalplan/internal/config"
)

func TestNew_WritesAllLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Info("lane %d ready", 1)
	l.Warning("could not open %s", "lane2.mp4")
	l.Error("detector failed: %v", "boom")

	out := buf.String()
	assert.Contains(t, out, "INFO    ")
	assert.Contains(t, out, "lane 1 ready")
	assert.Contains(t, out, "WARNING ")
	assert.Contains(t, out, "could not open lane2.mp4")
	assert.Contains(t, out, "ERROR   ")
	assert.Contains(t, out, "detector failed: boom")
	assert.Contains(t, out, "logger_test.go", "call site should be reported")
}

func TestNewLogger_CreatesLevelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewLogger(&config.Config{LogDirectory: dir})
	require.NoError(t, err)

	l.Warning("density is zero")
	require.NoError(t, l.Close())

	for _, name := range []string{"info.log", "warning.log", "error.log"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, "warning.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "density is zero")
}

func TestNewLogger_EmptyDirectoryUsesConsoleOnly(t *testing.T) {
	l, err := NewLogger(&config.Config{})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.Info("ignored")
		l.Error("ignored")
	})
}
