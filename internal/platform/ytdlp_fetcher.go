package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ytget/ytdlp/v2"
	"github.com/ytget/ytdlp/v2/errs"

	"github.com/ytget/ytq/internal/download"
)

// Format selectors passed to ytdlp
const (
	FormatBest   = "best"
	FormatMedium = "height<=720"
	FormatAudio  = "bestaudio"
)

// PartialSuffix is appended to the output path for the file ytdlp writes while
// a download is in flight. An existing file is appended to and renamed onto
// the output path once complete.
const PartialSuffix = ".tmp"

// qualityFormats maps quality presets onto ytdlp format selectors. Anything
// else is passed through as a raw selector.
var qualityFormats = map[string]string{
	"":       FormatBest,
	"best":   FormatBest,
	"high":   FormatBest,
	"medium": FormatMedium,
	"audio":  FormatAudio,
}

var heightCeiling = regexp.MustCompile(`^\d{3,4}p$`)

// FormatFor returns the ytdlp format selector for a quality ceiling
func FormatFor(quality string) string {
	q := strings.ToLower(strings.TrimSpace(quality))
	if f, ok := qualityFormats[q]; ok {
		return f
	}
	if heightCeiling.MatchString(q) {
		return "height<=" + strings.TrimSuffix(q, "p")
	}
	return quality
}

// DownloadRequest is one call into the underlying downloader
type DownloadRequest struct {
	URL        string
	Format     string
	Container  string
	OutputPath string
	Progress   func(percent float64) // 0..100
}

// Downloader performs a single download. The ytdlp library implements it by default.
type Downloader func(ctx context.Context, req DownloadRequest) (title string, err error)

// YTDLPFetcher implements download.Fetcher on top of the ytdlp library
type YTDLPFetcher struct {
	download Downloader
	logger   *slog.Logger
}

// NewYTDLPFetcher creates a fetcher. A nil downloader uses ytdlp.
func NewYTDLPFetcher(dl Downloader, logger *slog.Logger) *YTDLPFetcher {
	if dl == nil {
		dl = downloadWithYTDLP
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YTDLPFetcher{download: dl, logger: logger}
}

// ResolveBestOption maps the requested ceiling onto a format selector. ytdlp
// falls back to the best stream below the ceiling on its own, so resolution
// never fails for a lower quality.
func (f *YTDLPFetcher) ResolveBestOption(ctx context.Context, sourceID string, req download.PlanRequest) (*download.TransferPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	container := req.Container
	if container == "" {
		container = download.DefaultContainer
	}
	return &download.TransferPlan{
		SourceURL: download.WatchURL(sourceID),
		Container: container,
		Quality:   FormatFor(req.QualityCeiling),
	}, nil
}

// PartialPath returns the in-flight file for outputPath
func (f *YTDLPFetcher) PartialPath(outputPath string) string {
	return outputPath + PartialSuffix
}

// Transfer downloads the plan to outputPath. ytdlp continues an existing
// partial file on its own, so ResumeFrom is informational.
func (f *YTDLPFetcher) Transfer(ctx context.Context, outputPath string, meta download.SourceMetadata, plan *download.TransferPlan, progress download.ProgressFunc) error {
	if plan.ResumeFrom > 0 {
		f.logger.Info("continuing partial file", "source_id", meta.SourceID, "partial", f.PartialPath(outputPath), "resume_from", plan.ResumeFrom)
	}

	title, err := f.download(ctx, DownloadRequest{
		URL:        plan.SourceURL,
		Format:     plan.Quality,
		Container:  plan.Container,
		OutputPath: outputPath,
		Progress: func(percent float64) {
			if progress != nil {
				progress(percent / 100)
			}
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isRateLimited(err) {
			return fmt.Errorf("%w: %w", download.ErrRateLimited, err)
		}
		return fmt.Errorf("ytdlp: %w", err)
	}

	if title != "" && plan.Title == "" {
		plan.Title = title
	}
	return nil
}

// isRateLimited trusts the library's typed error first. ytdlp flattens errors
// raised during the byte transfer into text, so message matching stays as the
// fallback for those.
func isRateLimited(err error) bool {
	if errors.Is(err, errs.ErrRateLimited) {
		return true
	}
	return download.IsRateLimitError(err)
}

func downloadWithYTDLP(ctx context.Context, req DownloadRequest) (string, error) {
	info, err := ytdlp.New().
		WithFormat(req.Format, req.Container).
		WithOutputPath(req.OutputPath).
		WithProgress(func(p ytdlp.Progress) {
			req.Progress(p.Percent)
		}).
		Download(ctx, req.URL)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return info.Title, nil
}
