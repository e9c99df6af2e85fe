package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ytget/ytq/internal/api"
	"github.com/ytget/ytq/internal/config"
	"github.com/ytget/ytq/internal/download"
	"github.com/ytget/ytq/internal/metrics"
)

// ShutdownTimeout bounds how long serve waits for running jobs on exit
const ShutdownTimeout = 30 * time.Second

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	common := bindCommon(fs)
	listen := fs.String("listen", "", "HTTP listen address (default :8080)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ytq serve [options]

Run the bounded job queue behind an HTTP API. Submit jobs with POST /jobs and
poll GET /jobs/{id}. Prometheus metrics are served on /metrics.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(common, config.Config{ListenAddr: *listen})
	if err != nil {
		fail("%v", err)
		return ExitConfigError
	}
	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		fail("%v", err)
		return ExitGeneralError
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New("ytq", reg)
	if err != nil {
		fail("failed to register metrics: %v", err)
		return ExitGeneralError
	}

	svc := download.NewService(a.orchestrator(collector), download.ServiceOptions{
		MaxParallel:    cfg.ClampedParallel(),
		DefaultQuality: string(cfg.Quality),
		Logger:         a.logger,
		Metrics:        collector,
	})
	server := api.NewServer(svc, a.registry, api.Options{
		Addr:        cfg.ListenAddr,
		DownloadDir: cfg.DownloadDir,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:      a.logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	code := ExitSuccess
	select {
	case <-ctx.Done():
		a.logger.Info("received interrupt, shutting down")
	case err := <-errCh:
		if err != nil {
			fail("%v", err)
			code = ExitGeneralError
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("queue shutdown timed out", "error", err)
	}
	return code
}
