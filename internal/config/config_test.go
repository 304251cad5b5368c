package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 300*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.ResolveTimeout)
	assert.Equal(t, 4, cfg.LookupConcurrency)
	assert.Equal(t, time.Hour, cfg.LyricsCacheTTL)
	assert.True(t, cfg.ResolverSearchFallback)
	assert.False(t, cfg.SpotifyEnabled())
}

func TestLoadConfigMissingToken(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DISCORD_TOKEN", "")

	_, err := LoadConfig()
	require.Error(t, err)
	var cfgErr ErrConfig
	assert.ErrorAs(t, err, &cfgErr)
}

func TestGetdur(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{"seconds", "45", 45 * time.Second},
		{"duration", "2m", 2 * time.Minute},
		{"garbage", "soon", time.Minute},
		{"empty", "", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TANSEN_TEST_DUR", tt.raw)
			assert.Equal(t, tt.want, getdur("TANSEN_TEST_DUR", time.Minute))
		})
	}
}
