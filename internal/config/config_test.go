// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	// Keep a developer's real ~/.axpilot/config.yaml out of the test.
	homedir.DisableCache = true
	t.Setenv("HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	// An explicit path that does not exist is an error, not a silent fallback.
	require.Error(t, err)
	require.Nil(t, cfg)

	viper.Reset()
	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Engine.OuterRetryBudget)
	assert.Equal(t, 1, cfg.Engine.InnerReplanBudget)
	assert.Equal(t, 4, cfg.Engine.VolumeThreshold)
	assert.Equal(t, 600*time.Millisecond, cfg.Engine.SettleDelay)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "http://127.0.0.1:8790/plan", cfg.Planner.Endpoint)
	assert.Contains(t, cfg.Engine.ConfirmKeywords, "search")
}

func TestLoadFromFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
engine:
  outer_retry_budget: 5
  volume_threshold: 7
browser:
  headless: false
planner:
  endpoint: "http://planner.internal/plan"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.OuterRetryBudget)
	assert.Equal(t, 7, cfg.Engine.VolumeThreshold)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "http://planner.internal/plan", cfg.Planner.Endpoint)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1, cfg.Engine.InnerReplanBudget)
}

func TestValidateRejectsBadBudgets(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Engine.OuterRetryBudget = 0
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Engine.InnerReplanBudget = -1
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Engine.VolumeThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Planner.Endpoint = ""
	assert.Error(t, cfg.Validate())

	assert.NoError(t, NewDefaultConfig().Validate())
}

func TestStepTimeoutPerActionFamily(t *testing.T) {
	cfg := NewDefaultConfig().Engine

	assert.Equal(t, 4*time.Second, cfg.StepTimeout("click"))
	assert.Equal(t, 4*time.Second, cfg.StepTimeout("focus"))
	assert.Equal(t, 5*time.Second, cfg.StepTimeout("input"))
	assert.Equal(t, 5*time.Second, cfg.StepTimeout("input_select"))
	assert.Equal(t, 3*time.Second, cfg.StepTimeout("scroll"))
	assert.Equal(t, 6*time.Second, cfg.StepTimeout("navigate"))
	assert.Equal(t, 6*time.Second, cfg.StepTimeout("history_back"))
	assert.Equal(t, 6*time.Second, cfg.StepTimeout("reload"))
}
