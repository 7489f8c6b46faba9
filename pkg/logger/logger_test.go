package logger

import (
	"os"
	"path/filepath"
	"testing"

	"marking_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func useFileLogger(t *testing.T, levelName string) (*config.Config, string) {
	t.Helper()
	file := filepath.Join(t.TempDir(), "marking.log")
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "release"},
		Log:    config.LogConfig{Level: levelName, File: file, MaxSizeMB: 1},
	}
	require.NoError(t, InitLogger(cfg))
	t.Cleanup(func() {
		Log = zap.NewNop()
		level.SetLevel(zap.InfoLevel)
	})
	return cfg, file
}

func readLog(t *testing.T, file string) string {
	t.Helper()
	require.NoError(t, Log.Sync())
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	return string(data)
}

func TestInitLogger_WritesJSONWithSubmissionFields(t *testing.T) {
	_, file := useFileLogger(t, "warn")

	Log.Info("grade saved", Submission(3, 7)...)
	Log.Warn("mark rejected", Submission(3, 7)...)

	content := readLog(t, file)
	assert.NotContains(t, content, "grade saved")
	assert.Contains(t, content, `"msg":"mark rejected"`)
	assert.Contains(t, content, `"assignmentId":3`)
	assert.Contains(t, content, `"userId":7`)
	assert.Contains(t, content, `"logger":"marking"`)
}

func TestSetLevel_Reload(t *testing.T) {
	cfg, file := useFileLogger(t, "warn")

	cfg.Log.Level = "debug"
	require.NoError(t, SetLevel(cfg))
	Log.Debug("workflow recalculated")
	assert.Contains(t, readLog(t, file), "workflow recalculated")

	cfg.Log.Level = "loud"
	assert.Error(t, SetLevel(cfg))
	assert.Equal(t, zap.DebugLevel, level.Level())
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(&config.Config{Log: config.LogConfig{Level: "verbose"}})
	assert.Error(t, err)
}
