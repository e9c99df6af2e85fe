package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ytget/ytq/internal/config"
	"github.com/ytget/ytq/internal/download"
	"github.com/ytget/ytq/internal/model"
	"github.com/ytget/ytq/internal/platform"
)

func runBatch(args []string) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	common := bindCommon(fs)
	file := fs.String("f", "", "File with one video id or URL per line; - reads stdin (required)")
	useQueue := fs.Bool("queue", false, "Run targets through the bounded job queue instead of one by one")
	expand := fs.Bool("expand", false, "Expand playlist URLs into their videos")
	delay := fs.Duration("delay", 0, "Pause between sequential downloads (default 2s)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ytq batch -f <file> [options]

Download every target in a list. Blank lines and lines starting with # are
skipped. Sequential mode waits between downloads; -queue runs up to -parallel
downloads at once.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -f is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(common, config.Config{BatchDelay: *delay, ExpandPlaylists: *expand})
	if err != nil {
		fail("%v", err)
		return ExitConfigError
	}
	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		fail("%v", err)
		return ExitGeneralError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines, err := platform.ReadTargetFile(*file)
	if err != nil {
		fail("%v", err)
		return ExitInvalidArgs
	}

	var expander *platform.PlaylistExpander
	if cfg.ExpandPlaylists {
		expander = platform.NewPlaylistExpander()
	}
	targets, err := platform.ExpandTargets(ctx, expander, lines, string(cfg.Quality))
	if err != nil {
		fail("%v", err)
		return ExitGeneralError
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to download")
		return ExitSuccess
	}

	if *useQueue {
		return runQueued(ctx, a, targets)
	}

	summary := download.RunBatch(ctx, a.orchestrator(nil), targets, download.BatchOptions{
		Delay:  cfg.BatchDelay,
		Logger: a.logger,
		OnResult: func(target download.Target, res *download.Result, err error) {
			reportResult(res, err)
		},
	})
	printBatchSummary(summary.Succeeded, summary.RateLimited, summary.Failed, summary.Cancelled+summary.NotStarted)
	return exitCodeForBatch(summary)
}

// runQueued pushes every target through a download.Service and waits for all
// of them to reach a terminal state.
func runQueued(ctx context.Context, a *app, targets []download.Target) int {
	svc := download.NewService(a.orchestrator(nil), download.ServiceOptions{
		MaxParallel:    a.cfg.ClampedParallel(),
		DefaultQuality: string(a.cfg.Quality),
		Logger:         a.logger,
	})

	done := make(chan struct{})
	var remaining atomic.Int64
	remaining.Store(int64(len(targets)))
	svc.SetUpdateCallback(func(st model.JobStatus) {
		if st.CompletedAt == nil {
			return
		}
		fmt.Fprintf(os.Stderr, "[ytq] %s %s %s\n", st.ID, st.SourceID, st.Outcome)
		if remaining.Add(-1) == 0 {
			close(done)
		}
	})
	svc.Start(ctx)

	for _, t := range targets {
		if _, err := svc.Enqueue(model.JobRequest{SourceID: t.SourceID, Title: t.Title, Quality: t.Quality}); err != nil {
			fail("%v", err)
			return ExitGeneralError
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("queue shutdown timed out", "error", err)
	}

	stats := svc.Stats()
	printBatchSummary(int(stats.Completed), int(stats.RateLimited), int(stats.Failed), int(stats.Cancelled))
	return exitCodeForBatch(download.BatchSummary{
		Succeeded:   int(stats.Completed),
		RateLimited: int(stats.RateLimited),
		Failed:      int(stats.Failed),
		Cancelled:   int(stats.Cancelled),
	})
}

func printBatchSummary(succeeded, rateLimited, failed, cancelled int) {
	fmt.Printf("succeeded: %d, rate limited: %d, failed: %d, cancelled: %d\n",
		succeeded, rateLimited, failed, cancelled)
}
