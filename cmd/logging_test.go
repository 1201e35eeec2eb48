package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/logging"
)

func TestSetupLogging_File(t *testing.T) {
	prev := logging.Default()
	t.Cleanup(func() { logging.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "api.log")
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.File = &config.LogFileConfig{Path: path, MaxSizeMB: 1}

	logger, cleanup := setupLogging(cfg, "api")
	logger.Info("Invocation complete", "operation", "run")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Invocation complete")
	assert.Contains(t, string(data), "operation=run")
	assert.Equal(t, logging.LevelDebug, logging.Default().GetLevel())
}

func TestApplyLogLevel(t *testing.T) {
	prev := logging.Default()
	t.Cleanup(func() { logging.SetDefault(prev) })

	logging.SetDefault(quietLogger(os.Stderr))
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "warn"

	applyLogLevel(cfg)
	assert.Equal(t, logging.LevelWarn, logging.Default().GetLevel())
}
