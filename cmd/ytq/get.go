package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ytget/ytq/internal/config"
	"github.com/ytget/ytq/internal/download"
)

func runGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	common := bindCommon(fs)
	title := fs.String("title", "", "Display title used to name the output file")
	quiet := fs.Bool("quiet", false, "Do not print progress")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ytq get [options] <video id or URL>

Download a single video. An interrupted download leaves a sidecar next to the
output file; running the same command again resumes it.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one target is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(common, config.Config{})
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

	target := download.Target{SourceID: fs.Arg(0), Title: *title}
	var progress download.ProgressFunc
	if !*quiet {
		progress = progressPrinter(os.Stderr, target.SourceID)
	}

	res, err := a.orchestrator(nil).Run(ctx, target, progress)
	reportResult(res, err)
	return exitCodeFor(res, err)
}

func reportResult(res *download.Result, err error) {
	if res == nil {
		if err != nil {
			fail("%v", err)
		}
		return
	}

	switch {
	case res.Skipped:
		fmt.Printf("already complete: %s\n", res.OutputPath)
	case err == nil:
		fmt.Printf("saved %s (%d attempts, resumed: %t)\n", res.OutputPath, res.Attempts, res.Resumed)
	case res.RetryAfter > 0:
		fmt.Fprintf(os.Stderr, "\nrate limited: %s, retry in %s\n", res.SourceID, res.RetryAfter.Round(time.Second))
	default:
		fmt.Fprintf(os.Stderr, "\n%s: %s: %v\n", res.Outcome, res.SourceID, err)
	}
}
