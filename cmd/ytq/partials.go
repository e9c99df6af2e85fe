package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ytget/ytq/internal/config"
	"github.com/ytget/ytq/internal/resume"
)

func runPartials(args []string) int {
	fs := flag.NewFlagSet("partials", flag.ContinueOnError)
	common := bindCommon(fs)
	best := fs.Bool("best", false, "Print only the partial download to resume next")
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ytq partials [options]

List interrupted downloads in the download directory. Rate-limited entries
show the time left before they may be retried.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
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

	return listPartials(os.Stdout, a.registry, cfg.DownloadDir, *best, *asJSON)
}

func listPartials(w io.Writer, registry *resume.Registry, dir string, best, asJSON bool) int {
	var summaries []resume.Summary
	if best {
		s, ok, err := registry.BestToResume(dir)
		if err != nil {
			fail("%v", err)
			return ExitGeneralError
		}
		if ok {
			summaries = append(summaries, s)
		}
	} else {
		all, err := registry.ListAll(dir)
		if err != nil {
			fail("%v", err)
			return ExitGeneralError
		}
		summaries = all
	}

	if asJSON {
		if summaries == nil {
			summaries = []resume.Summary{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			fail("%v", err)
			return ExitGeneralError
		}
		return ExitSuccess
	}

	if len(summaries) == 0 {
		fmt.Fprintln(w, "no partial downloads")
		return ExitSuccess
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tPROGRESS\tUPDATED\tSTATUS\tFILE")
	for _, s := range summaries {
		status := "resumable"
		switch {
		case s.RateLimited:
			status = "rate limited, retry in " + s.RetryAfter.Round(time.Minute).String()
		case !s.FileExists:
			status = "file missing"
		}
		fmt.Fprintf(tw, "%s\t%5.1f%%\t%s\t%s\t%s\n",
			s.SourceID,
			s.Percent,
			s.LastUpdatedAt.Local().Format(time.DateTime),
			status,
			s.OutputPath,
		)
	}
	if err := tw.Flush(); err != nil {
		fail("%v", err)
		return ExitGeneralError
	}
	return ExitSuccess
}
