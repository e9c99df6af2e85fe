package resume

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Timing constants
const (
	// DefaultStallTimeout is how long progress may stay flat before a transfer counts as stalled
	DefaultStallTimeout = 10 * time.Second

	// RateLimitCooldown is the window after a rate-limit signal during which resume is withheld
	RateLimitCooldown = 2 * time.Hour
)

// ProgressEpsilon is the smallest fractional change treated as forward progress
const ProgressEpsilon = 0.001

// File permissions
const (
	DefaultFilePermissions = 0o644
)

// ErrPersistenceDegraded marks a sidecar read or write failure. It is logged and
// never returned to callers of Store or Tracker.
var ErrPersistenceDegraded = errors.New("resume: persistence degraded")

type options struct {
	logger       *slog.Logger
	now          func() time.Time
	stallTimeout time.Duration
	partial      string
}

// Option configures a Store or Registry
type Option func(*options)

// WithLogger sets the logger used for degraded persistence warnings
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithStallTimeout overrides DefaultStallTimeout
func WithStallTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stallTimeout = d
		}
	}
}

// WithPartialSuffix names the file a Fetcher writes while a transfer is in
// flight: outputPath+suffix. The default, "", means the Fetcher writes the
// output path directly.
func WithPartialSuffix(suffix string) Option {
	return func(o *options) {
		o.partial = suffix
	}
}

func (o options) partialPath(outputPath string) string {
	return outputPath + o.partial
}

func newOptions(opts []Option) options {
	o := options{
		logger:       slog.Default(),
		now:          time.Now,
		stallTimeout: DefaultStallTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store loads and saves sidecar records on a filesystem
type Store struct {
	fs   billy.Filesystem
	opts options
}

// NewStore creates a store over fs
func NewStore(fs billy.Filesystem, opts ...Option) *Store {
	return &Store{
		fs:   fs,
		opts: newOptions(opts),
	}
}

// Filesystem returns the filesystem the store persists to
func (s *Store) Filesystem() billy.Filesystem {
	return s.fs
}

// Now returns the store's current time
func (s *Store) Now() time.Time {
	return s.opts.now()
}

// Load returns a tracker for the target. A missing, unreadable or foreign
// sidecar yields a fresh zero-valued record; Load never fails.
func (s *Store) Load(sourceID, outputPath string) *Tracker {
	rec, err := s.read(outputPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		rec = freshRecord(sourceID, outputPath)
	case err != nil:
		s.degraded("load", SidecarPath(outputPath), err)
		rec = freshRecord(sourceID, outputPath)
	case rec.SourceID != sourceID:
		s.opts.logger.Debug("ignoring sidecar for another source",
			"path", SidecarPath(outputPath), "want", sourceID, "got", rec.SourceID)
		rec = freshRecord(sourceID, outputPath)
	default:
		rec.OutputPath = outputPath
	}

	return &Tracker{
		store:        s,
		rec:          rec,
		lastFraction: fractionOf(rec),
	}
}

// HasSidecar reports whether a sidecar exists for outputPath
func (s *Store) HasSidecar(outputPath string) bool {
	_, ok := s.fileSize(SidecarPath(outputPath))
	return ok
}

// PartialPath returns the in-flight file for outputPath. Resume checks, byte
// counts and stale partial cleanup all look at this path.
func (s *Store) PartialPath(outputPath string) string {
	return s.opts.partialPath(outputPath)
}

// PartialSize returns the size of the in-flight file, or false when it is absent
func (s *Store) PartialSize(outputPath string) (int64, bool) {
	return s.fileSize(s.PartialPath(outputPath))
}

// OutputSize returns the on-disk size of outputPath, or false when it is absent
func (s *Store) OutputSize(outputPath string) (int64, bool) {
	return s.fileSize(outputPath)
}

func (s *Store) read(outputPath string) (Record, error) {
	data, err := util.ReadFile(s.fs, SidecarPath(outputPath))
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(data)
}

// write replaces the sidecar through a temp file and rename
func (s *Store) write(rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	path := SidecarPath(rec.OutputPath)
	tmp := path + ".tmp"
	if err := util.WriteFile(s.fs, tmp, data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (s *Store) remove(path string) error {
	err := s.fs.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) fileSize(path string) (int64, bool) {
	info, err := s.fs.Stat(path)
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), true
}

// degraded logs a swallowed persistence failure
func (s *Store) degraded(op, path string, err error) {
	s.opts.logger.Warn("sidecar persistence degraded",
		"op", op,
		"path", path,
		"error", fmt.Errorf("%w: %v", ErrPersistenceDegraded, err),
	)
}

func freshRecord(sourceID, outputPath string) Record {
	return Record{
		SourceID:   sourceID,
		OutputPath: outputPath,
	}
}

func fractionOf(rec Record) float64 {
	if rec.TotalBytes <= 0 {
		return 0
	}
	return float64(rec.DownloadedBytes) / float64(rec.TotalBytes)
}
