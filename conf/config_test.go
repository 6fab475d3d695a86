package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("listen: \":9000\"\npipeline:\n  stealth-slices: 3\n  slice-delay: 500ms\nhub:\n  idle-timeout: 90s\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	require.NoError(t, LoadConfig(path))
	t.Cleanup(func() { AppConfig = Default() })

	assert.Equal(t, ":9000", AppConfig.Listen)
	assert.Equal(t, 3, AppConfig.Pipeline.StealthSlices)
	assert.Equal(t, 500*time.Millisecond, AppConfig.Pipeline.SliceDelay)
	assert.Equal(t, 90*time.Second, AppConfig.Hub.IdleTimeout)
	// 未出现的字段保留默认值
	assert.Equal(t, 85.0, AppConfig.Tracker.Threshold)
	assert.Equal(t, 1000, AppConfig.Ledger.MaxQueueSize)
	assert.True(t, AppConfig.Pipeline.HITLEnabled)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
