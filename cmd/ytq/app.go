package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/ytget/ytq/internal/config"
	"github.com/ytget/ytq/internal/download"
	"github.com/ytget/ytq/internal/logging"
	"github.com/ytget/ytq/internal/model"
	"github.com/ytget/ytq/internal/platform"
	"github.com/ytget/ytq/internal/resume"
)

// commonFlags are the configuration overrides shared by every command
type commonFlags struct {
	configPath   string
	envDir       string
	dir          string
	parallel     int
	quality      string
	container    string
	retries      int
	stallTimeout time.Duration
	logLevel     string
	logFormat    string
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.envDir, "env-dir", ".", "Directory holding optional .env and .env.local files")
	fs.StringVar(&f.dir, "dir", "", "Download directory (default ~/Downloads)")
	fs.IntVar(&f.parallel, "parallel", 0, "Maximum concurrent downloads (1-10)")
	fs.StringVar(&f.quality, "quality", "", "Quality ceiling: best, medium, audio or e.g. 720p")
	fs.StringVar(&f.container, "container", "", "Output container (default mp4)")
	fs.IntVar(&f.retries, "retries", -1, "Retries after the first attempt (default 5)")
	fs.DurationVar(&f.stallTimeout, "stall-timeout", 0, "Abort an attempt after this long without progress")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: text or json")
	return f
}

// loadConfig layers defaults, the YAML file, .env files, YTQ_* variables and
// finally the command line.
func loadConfig(f *commonFlags, override config.Config) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.LoadFromFile(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if err := config.LoadEnvFiles(f.envDir); err != nil {
		return config.Config{}, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	override.DownloadDir = f.dir
	override.MaxParallel = f.parallel
	override.Quality = config.QualityPreset(f.quality)
	override.Container = f.container
	override.StallTimeout = f.stallTimeout
	override.LogLevel = f.logLevel
	override.LogFormat = f.logFormat
	cfg = cfg.Merge(override)
	if f.retries >= 0 {
		cfg.MaxRetries = f.retries
	}

	dir, err := platform.ResolveDownloadDir(cfg.DownloadDir)
	if err != nil {
		return config.Config{}, err
	}
	cfg.DownloadDir = dir

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app holds the components built from a Config
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *resume.Store
	registry *resume.Registry
	fetcher  *platform.YTDLPFetcher
}

func newApp(cfg config.Config, logOut io.Writer) (*app, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, logOut)

	if err := platform.CreateDirectoryIfNotExists(cfg.DownloadDir); err != nil {
		return nil, fmt.Errorf("failed to ensure download dir: %w", err)
	}

	// Paths handed to the store are absolute, so the filesystem is rooted at /
	fs := osfs.New("/")
	opts := []resume.Option{
		resume.WithLogger(logger),
		resume.WithStallTimeout(cfg.StallTimeout),
		resume.WithPartialSuffix(platform.PartialSuffix),
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    resume.NewStore(fs, opts...),
		registry: resume.NewRegistry(fs, opts...),
		fetcher:  platform.NewYTDLPFetcher(nil, logger),
	}, nil
}

func (a *app) orchestrator(m download.Metrics) *download.Orchestrator {
	retries := a.cfg.MaxRetries
	if retries == 0 {
		// Options treats zero as "use the default"
		retries = -1
	}

	return download.NewOrchestrator(a.fetcher, a.store, download.Options{
		OutputDir:     a.cfg.DownloadDir,
		Container:     a.cfg.Container,
		Quality:       string(a.cfg.Quality),
		MaxRetries:    retries,
		StallInterval: a.cfg.StallPollInterval,
		Logger:        a.logger,
		Metrics:       m,
	})
}

// exitCodeFor maps a finished run onto the process exit code
func exitCodeFor(res *download.Result, err error) int {
	if res == nil {
		if err != nil {
			return ExitGeneralError
		}
		return ExitSuccess
	}

	switch res.Outcome {
	case model.OutcomeSucceeded:
		return ExitSuccess
	case model.OutcomeRateLimited:
		return ExitRateLimited
	case model.OutcomeCancelled:
		return ExitCancelled
	}

	var derr *download.Error
	if errors.As(err, &derr) && derr.Kind == download.KindInvalidTarget {
		return ExitInvalidTarget
	}
	return ExitGeneralError
}

// exitCodeForBatch reports the most severe outcome across a batch
func exitCodeForBatch(summary download.BatchSummary) int {
	switch {
	case summary.OK():
		return ExitSuccess
	case summary.Cancelled > 0 || summary.NotStarted > 0:
		return ExitCancelled
	case summary.Failed > 0:
		return ExitGeneralError
	default:
		return ExitRateLimited
	}
}

// progressPrinter writes whole-percent progress lines for one target
func progressPrinter(w io.Writer, label string) download.ProgressFunc {
	last := -1
	return func(fraction float64) {
		pct := model.ClampPercent(fraction)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\r[ytq] %s %3d%%", label, pct)
		if pct == 100 {
			fmt.Fprintln(w)
		}
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
