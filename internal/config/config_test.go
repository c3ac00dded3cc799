package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/dagent/internal/testutil"
)

func TestFromViper(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		v := viper.New()
		v.Set(KeyDataDir, "/tmp/dagent-data")

		cfg, err := FromViper(v)
		require.NoError(t, err)
		assert.Equal(t, DefaultServer, cfg.Server)
		assert.Equal(t, DefaultTimeout, cfg.Timeout)
		assert.Equal(t, DefaultModel, cfg.Model)
		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
		assert.True(t, cfg.CacheEnabled)
		assert.Equal(t, filepath.Join("/tmp/dagent-data", "cache.db"), cfg.CachePath())
		assert.Equal(t, filepath.Join("/tmp/dagent-data", "dagent.log"), cfg.LogPath())
	})

	t.Run("overrides", func(t *testing.T) {
		v := viper.New()
		v.Set(KeyServer, "https://agent.example.com/api/")
		v.Set(KeyTimeout, "3s")
		v.Set(KeyLogLevel, "debug")
		v.Set(KeyCacheEnabled, false)
		v.Set(KeyDataDir, "/tmp/x")

		cfg, err := FromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "https://agent.example.com/api", cfg.Server)
		assert.Equal(t, 3*time.Second, cfg.Timeout)
		assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
		assert.False(t, cfg.CacheEnabled)
	})

	t.Run("env overrides through automatic env", func(t *testing.T) {
		testutil.SetEnv(t, "DAGENT_SERVER", "http://10.0.0.1:9000/api")
		v := viper.New()
		v.SetEnvPrefix(EnvPrefix)
		v.AutomaticEnv()
		v.Set(KeyDataDir, "/tmp/x")

		cfg, err := FromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "http://10.0.0.1:9000/api", cfg.Server)
	})

	t.Run("data dir defaults to home", func(t *testing.T) {
		home := testutil.TempDir(t)
		testutil.SetEnv(t, "HOME", home)

		cfg, err := FromViper(viper.New())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".dagent"), cfg.DataDir)
	})
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr string
	}{
		{"bad scheme", KeyServer, "ftp://host/api", "scheme must be http or https"},
		{"missing host", KeyServer, "http:///api", "missing host"},
		{"zero timeout", KeyTimeout, "0s", "timeout must be positive"},
		{"bad level", KeyLogLevel, "loud", "invalid log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(KeyDataDir, "/tmp/x")
			v.Set(tt.key, tt.value)

			_, err := FromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
