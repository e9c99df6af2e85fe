package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultMaxParallel, cfg.MaxParallel)
	assert.Equal(t, QualityMedium, cfg.Quality)
	assert.Equal(t, "mp4", cfg.Container)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.StallTimeout)
	assert.Equal(t, 5*time.Second, cfg.StallPollInterval)
	assert.Equal(t, 2*time.Second, cfg.BatchDelay)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Empty(t, cfg.DownloadDir)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ytq.yaml")
	content := `
download_dir: /srv/videos
max_parallel: 4
quality: 720p
max_retries: 0
stall_timeout: 30s
batch_delay: 500ms
log_format: json
expand_playlists: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/videos", cfg.DownloadDir)
	assert.Equal(t, 4, cfg.MaxParallel)
	assert.Equal(t, QualityPreset("720p"), cfg.Quality)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.StallTimeout)
	assert.Equal(t, DefaultStallPollInterval, cfg.StallPollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchDelay)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.ExpandPlaylists)
	assert.Equal(t, "mp4", cfg.Container)
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadYAMLInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stall_timeout: forever\n"), 0o644))

	_, err := LoadFromFile(path)
	assert.ErrorContains(t, err, "stall_timeout")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("YTQ_DOWNLOAD_DIR", "/env/videos")
	t.Setenv("YTQ_MAX_PARALLEL", "3")
	t.Setenv("YTQ_QUALITY", "audio")
	t.Setenv("YTQ_STALL_TIMEOUT", "15s")
	t.Setenv("YTQ_EXPAND_PLAYLISTS", "1")

	cfg := Default()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "/env/videos", cfg.DownloadDir)
	assert.Equal(t, 3, cfg.MaxParallel)
	assert.Equal(t, QualityAudio, cfg.Quality)
	assert.Equal(t, 15*time.Second, cfg.StallTimeout)
	assert.True(t, cfg.ExpandPlaylists)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	t.Setenv("YTQ_MAX_PARALLEL", "many")
	cfg := Default()
	assert.ErrorContains(t, cfg.LoadFromEnv(), "YTQ_MAX_PARALLEL")
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("YTQ_CONTAINER=webm\nYTQ_LISTEN_ADDR=:9000\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("YTQ_LISTEN_ADDR=:9100\n"), 0o644))

	// Registered with t.Setenv so the values loaded below are restored afterwards
	t.Setenv("YTQ_CONTAINER", "")
	t.Setenv("YTQ_LISTEN_ADDR", "")
	os.Unsetenv("YTQ_CONTAINER")
	os.Unsetenv("YTQ_LISTEN_ADDR")

	require.NoError(t, LoadEnvFiles(dir))

	cfg := Default()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, "webm", cfg.Container)
	assert.Equal(t, ":9100", cfg.ListenAddr)
}

func TestLoadEnvFiles_Missing(t *testing.T) {
	assert.NoError(t, LoadEnvFiles(t.TempDir()))
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.DownloadDir = "/tmp/videos"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"height ceiling", func(c *Config) { c.Quality = "1080p" }, false},
		{"no dir", func(c *Config) { c.DownloadDir = "" }, true},
		{"zero parallel", func(c *Config) { c.MaxParallel = 0 }, true},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"zero stall timeout", func(c *Config) { c.StallTimeout = 0 }, true},
		{"unknown quality", func(c *Config) { c.Quality = "ultra" }, true},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	merged := base.Merge(Config{
		DownloadDir: "/flag/dir",
		MaxParallel: 7,
		LogLevel:    "debug",
	})

	assert.Equal(t, "/flag/dir", merged.DownloadDir)
	assert.Equal(t, 7, merged.MaxParallel)
	assert.Equal(t, "debug", merged.LogLevel)
	assert.Equal(t, base.Quality, merged.Quality)
	assert.Equal(t, base.StallTimeout, merged.StallTimeout)
	assert.Equal(t, base.ListenAddr, merged.ListenAddr)
}

func TestClampedParallel(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{-1, 1},
		{0, 1},
		{1, 1},
		{5, 5},
		{10, 10},
		{15, 10},
	}
	for _, tt := range tests {
		cfg := Config{MaxParallel: tt.input}
		if got := cfg.ClampedParallel(); got != tt.expected {
			t.Errorf("Expected %d for %d, got %d", tt.expected, tt.input, got)
		}
	}
}

func TestQualityPresetOptions(t *testing.T) {
	options := QualityPresetOptions()
	expected := []QualityPreset{QualityBest, QualityMedium, QualityAudio}
	if len(options) != len(expected) {
		t.Fatalf("Expected %d options, got %d", len(expected), len(options))
	}
	for i, opt := range options {
		if opt != expected[i] {
			t.Errorf("Expected option %s at index %d, got %s", expected[i], i, opt)
		}
		if !opt.Valid() {
			t.Errorf("Expected preset %s to be valid", opt)
		}
	}
}
