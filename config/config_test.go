package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialWait)
	assert.Equal(t, 1.5, cfg.Retry.Multiplier)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxWait)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, DefaultUserAgent, cfg.Fetch.UserAgent)
	assert.Equal(t, int64(10<<20), cfg.Fetch.MaxPageSize)
	assert.Equal(t, 4, cfg.Browser.MaxSessions)
	assert.Equal(t, 15*time.Second, cfg.Browser.SessionWaitTimeout)
	assert.Equal(t, 10*time.Second, cfg.Browser.MarkerWaitTimeout)
	assert.Equal(t, "www.youtube.com", cfg.Browser.ChannelHost)
	assert.Equal(t, []string{"Image", "Font", "Media"}, cfg.Browser.BlockedResourceTypes)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "json", cfg.Log.Format)

	p, err := cfg.Retry.Policy()
	require.NoError(t, err)
	assert.Equal(t, 3, p.MaxAttempts)

	assert.True(t, cfg.Webhook.Enabled)
	wp, err := cfg.Webhook.Policy()
	require.NoError(t, err)
	assert.Equal(t, 4, wp.MaxAttempts)
	assert.Equal(t, 30*time.Second, wp.MaxWait)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SITEPROBE_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("SITEPROBE_RETRY_INITIAL_WAIT", "500ms")
	t.Setenv("SITEPROBE_BROWSER_MAX_SESSIONS", "2")
	t.Setenv("SITEPROBE_AUTH_ENABLED", "true")
	t.Setenv("SITEPROBE_AUTH_API_KEYS", "k1,k2")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialWait)
	assert.Equal(t, 2, cfg.Browser.MaxSessions)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.APIKeys)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("retry:\n  max_attempts: 7\n  max_wait: 1m\nfetch:\n  user_agent: custom-agent\nlog:\n  format: text\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "siteprobe.yaml"), yaml, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Retry.MaxWait)
	assert.Equal(t, "custom-agent", cfg.Fetch.UserAgent)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialWait)
}

func TestLoad_RejectsInvalidPolicy(t *testing.T) {
	t.Setenv("SITEPROBE_RETRY_MAX_ATTEMPTS", "0")
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry")
}

func TestValidate_AuthNeedsKeys(t *testing.T) {
	t.Setenv("SITEPROBE_AUTH_ENABLED", "true")
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestValidate_ChannelMarkerMustBeASelector(t *testing.T) {
	t.Setenv("SITEPROBE_BROWSER_CHANNEL_MARKER", "#page-header, yt-page-header-renderer")
	_, err := Load(t.TempDir())
	require.NoError(t, err)

	t.Setenv("SITEPROBE_BROWSER_CHANNEL_MARKER", "div[unclosed")
	_, err = Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_marker")
}
