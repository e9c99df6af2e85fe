package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Quality presets for downloads
type QualityPreset string

const (
	QualityBest   QualityPreset = "best"
	QualityMedium QualityPreset = "medium"
	QualityAudio  QualityPreset = "audio"
)

// EnvPrefix prefixes every environment variable the config reads
const EnvPrefix = "YTQ_"

// Default values
const (
	DefaultMaxParallel       = 2
	MinParallel              = 1
	MaxParallel              = 10
	DefaultQualityPreset     = QualityMedium
	DefaultContainer         = "mp4"
	DefaultMaxRetries        = 5
	DefaultStallTimeout      = 10 * time.Second
	DefaultStallPollInterval = 5 * time.Second
	DefaultBatchDelay        = 2 * time.Second
	DefaultListenAddr        = ":8080"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

var heightCeiling = regexp.MustCompile(`^\d{3,4}p$`)

// Config holds the runtime configuration. It is passed into constructors
// explicitly; nothing reads it from package state.
type Config struct {
	DownloadDir       string        `yaml:"download_dir"`
	MaxParallel       int           `yaml:"max_parallel"`
	Quality           QualityPreset `yaml:"quality"`
	Container         string        `yaml:"container"`
	MaxRetries        int           `yaml:"max_retries"`
	StallTimeout      time.Duration `yaml:"stall_timeout"`
	StallPollInterval time.Duration `yaml:"stall_poll_interval"`
	BatchDelay        time.Duration `yaml:"batch_delay"`
	ListenAddr        string        `yaml:"listen_addr"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	ExpandPlaylists   bool          `yaml:"expand_playlists"`
}

// Default returns a Config with sensible defaults. DownloadDir is left empty
// and resolved to the user's Downloads directory by the caller.
func Default() Config {
	return Config{
		MaxParallel:       DefaultMaxParallel,
		Quality:           DefaultQualityPreset,
		Container:         DefaultContainer,
		MaxRetries:        DefaultMaxRetries,
		StallTimeout:      DefaultStallTimeout,
		StallPollInterval: DefaultStallPollInterval,
		BatchDelay:        DefaultBatchDelay,
		ListenAddr:        DefaultListenAddr,
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
	}
}

// yamlConfig is used for YAML unmarshaling with string durations
type yamlConfig struct {
	DownloadDir       string `yaml:"download_dir"`
	MaxParallel       int    `yaml:"max_parallel"`
	Quality           string `yaml:"quality"`
	Container         string `yaml:"container"`
	MaxRetries        *int   `yaml:"max_retries"`
	StallTimeout      string `yaml:"stall_timeout"`
	StallPollInterval string `yaml:"stall_poll_interval"`
	BatchDelay        string `yaml:"batch_delay"`
	ListenAddr        string `yaml:"listen_addr"`
	LogLevel          string `yaml:"log_level"`
	LogFormat         string `yaml:"log_format"`
	ExpandPlaylists   bool   `yaml:"expand_playlists"`
}

// LoadFromFile loads configuration from a YAML file on top of Default
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	if yc.DownloadDir != "" {
		cfg.DownloadDir = yc.DownloadDir
	}
	if yc.MaxParallel != 0 {
		cfg.MaxParallel = yc.MaxParallel
	}
	if yc.Quality != "" {
		cfg.Quality = QualityPreset(yc.Quality)
	}
	if yc.Container != "" {
		cfg.Container = yc.Container
	}
	if yc.MaxRetries != nil {
		cfg.MaxRetries = *yc.MaxRetries
	}
	if err := parseDurationInto(&cfg.StallTimeout, yc.StallTimeout, "stall_timeout"); err != nil {
		return Config{}, err
	}
	if err := parseDurationInto(&cfg.StallPollInterval, yc.StallPollInterval, "stall_poll_interval"); err != nil {
		return Config{}, err
	}
	if err := parseDurationInto(&cfg.BatchDelay, yc.BatchDelay, "batch_delay"); err != nil {
		return Config{}, err
	}
	if yc.ListenAddr != "" {
		cfg.ListenAddr = yc.ListenAddr
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.LogFormat != "" {
		cfg.LogFormat = yc.LogFormat
	}
	cfg.ExpandPlaylists = yc.ExpandPlaylists

	return cfg, nil
}

// LoadEnvFiles loads the optional .env file followed by .env.local, which
// overrides it. Variables already set in the process environment win over .env.
func LoadEnvFiles(dir string) error {
	base := filepath.Join(dir, ".env")
	if _, err := os.Stat(base); err == nil {
		if err := godotenv.Load(base); err != nil {
			return fmt.Errorf("failed to load %s: %w", base, err)
		}
	}

	local := filepath.Join(dir, ".env.local")
	if _, err := os.Stat(local); err == nil {
		if err := godotenv.Overload(local); err != nil {
			return fmt.Errorf("failed to load %s: %w", local, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the YTQ_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := getenv("DOWNLOAD_DIR"); v != "" {
		c.DownloadDir = v
	}
	if v := getenv("MAX_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sMAX_PARALLEL: %w", EnvPrefix, err)
		}
		c.MaxParallel = n
	}
	if v := getenv("QUALITY"); v != "" {
		c.Quality = QualityPreset(v)
	}
	if v := getenv("CONTAINER"); v != "" {
		c.Container = v
	}
	if v := getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sMAX_RETRIES: %w", EnvPrefix, err)
		}
		c.MaxRetries = n
	}
	if err := parseDurationInto(&c.StallTimeout, getenv("STALL_TIMEOUT"), EnvPrefix+"STALL_TIMEOUT"); err != nil {
		return err
	}
	if err := parseDurationInto(&c.StallPollInterval, getenv("STALL_POLL_INTERVAL"), EnvPrefix+"STALL_POLL_INTERVAL"); err != nil {
		return err
	}
	if err := parseDurationInto(&c.BatchDelay, getenv("BATCH_DELAY"), EnvPrefix+"BATCH_DELAY"); err != nil {
		return err
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := getenv("EXPAND_PLAYLISTS"); v != "" {
		c.ExpandPlaylists = v == "true" || v == "1"
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DownloadDir == "" {
		return errors.New("config: download_dir is required")
	}
	if c.MaxParallel <= 0 {
		return errors.New("config: max_parallel must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("config: max_retries must not be negative")
	}
	if c.StallTimeout <= 0 || c.StallPollInterval <= 0 {
		return errors.New("config: stall timings must be positive")
	}
	if !c.Quality.Valid() {
		return fmt.Errorf("config: unknown quality %q", c.Quality)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.DownloadDir != "" {
		c.DownloadDir = override.DownloadDir
	}
	if override.MaxParallel != 0 {
		c.MaxParallel = override.MaxParallel
	}
	if override.Quality != "" {
		c.Quality = override.Quality
	}
	if override.Container != "" {
		c.Container = override.Container
	}
	if override.MaxRetries != 0 {
		c.MaxRetries = override.MaxRetries
	}
	if override.StallTimeout != 0 {
		c.StallTimeout = override.StallTimeout
	}
	if override.StallPollInterval != 0 {
		c.StallPollInterval = override.StallPollInterval
	}
	if override.BatchDelay != 0 {
		c.BatchDelay = override.BatchDelay
	}
	if override.ListenAddr != "" {
		c.ListenAddr = override.ListenAddr
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.LogFormat != "" {
		c.LogFormat = override.LogFormat
	}
	if override.ExpandPlaylists {
		c.ExpandPlaylists = true
	}
	return c
}

// ClampedParallel returns MaxParallel limited to MinParallel..MaxParallel
func (c Config) ClampedParallel() int {
	switch {
	case c.MaxParallel < MinParallel:
		return MinParallel
	case c.MaxParallel > MaxParallel:
		return MaxParallel
	default:
		return c.MaxParallel
	}
}

// Valid reports whether q is a preset or an explicit height ceiling like 720p
func (q QualityPreset) Valid() bool {
	switch q {
	case QualityBest, QualityMedium, QualityAudio:
		return true
	}
	return heightCeiling.MatchString(string(q))
}

// QualityPresetOptions returns available quality preset options
func QualityPresetOptions() []QualityPreset {
	return []QualityPreset{QualityBest, QualityMedium, QualityAudio}
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func parseDurationInto(dst *time.Duration, raw, name string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}
