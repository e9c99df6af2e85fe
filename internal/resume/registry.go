package resume

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Summary joins a sidecar record with the live size of its output file.
// It is recomputed on every scan and never persisted.
type Summary struct {
	Record
	SidecarPath string        `json:"sidecar_path"`
	FileSize    int64         `json:"file_size"`
	FileExists  bool          `json:"file_exists"`
	Percent     float64       `json:"percent"`
	RateLimited bool          `json:"rate_limited"`
	RetryAfter  time.Duration `json:"retry_after"`
}

// Registry scans directories for partial downloads. It only reads sidecars;
// records belong to whichever orchestrator is running against them.
type Registry struct {
	fs   billy.Filesystem
	opts options
}

// NewRegistry creates a registry over fs
func NewRegistry(fs billy.Filesystem, opts ...Option) *Registry {
	return &Registry{
		fs:   fs,
		opts: newOptions(opts),
	}
}

// ListAll returns every parsable sidecar in dir, least recently updated first.
// Sidecars that fail to parse are skipped.
func (r *Registry) ListAll(dir string) ([]Summary, error) {
	entries, err := r.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	now := r.opts.now()
	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsSidecar(entry.Name()) {
			continue
		}

		path := r.fs.Join(dir, entry.Name())
		data, err := util.ReadFile(r.fs, path)
		if err != nil {
			r.opts.logger.Debug("skipping unreadable sidecar", "path", path, "error", err)
			continue
		}
		rec, err := decodeRecord(data)
		if err != nil {
			r.opts.logger.Debug("skipping malformed sidecar", "path", path, "error", err)
			continue
		}

		summaries = append(summaries, r.summarize(rec, path, now))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastUpdatedAt.Before(summaries[j].LastUpdatedAt)
	})
	return summaries, nil
}

// BestToResume picks the most complete partial that is not cooling down. When
// every partial is rate limited it picks the one whose cooldown ends first.
// The boolean is false when dir has no sidecars.
func (r *Registry) BestToResume(dir string) (Summary, bool, error) {
	summaries, err := r.ListAll(dir)
	if err != nil {
		return Summary{}, false, err
	}
	best, ok := SelectBest(summaries)
	return best, ok, nil
}

// SelectBest applies the resume selection policy to already built summaries
func SelectBest(summaries []Summary) (Summary, bool) {
	if len(summaries) == 0 {
		return Summary{}, false
	}

	bestIdx := -1
	for i, s := range summaries {
		if s.RateLimited {
			continue
		}
		if bestIdx < 0 || s.Percent > summaries[bestIdx].Percent {
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		return summaries[bestIdx], true
	}

	// All rate limited: shortest remaining cooldown wins
	bestIdx = 0
	for i, s := range summaries {
		if s.RetryAfter < summaries[bestIdx].RetryAfter {
			bestIdx = i
		}
	}
	return summaries[bestIdx], true
}

// summarize resolves the partial file as the sidecar's sibling, which stays
// correct even when the directory was moved after the record was written.
func (r *Registry) summarize(rec Record, sidecarPath string, now time.Time) Summary {
	s := Summary{
		Record:      rec,
		SidecarPath: sidecarPath,
		Percent:     rec.Percent(),
	}

	if info, err := r.fs.Stat(r.opts.partialPath(OutputPathFor(sidecarPath))); err == nil && !info.IsDir() {
		s.FileExists = true
		s.FileSize = info.Size()
	}

	s.RetryAfter, s.RateLimited = rec.RateLimitRemaining(now)
	return s
}
