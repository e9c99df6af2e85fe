package resume

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SidecarSuffix is appended to an output path to name its sidecar file
const SidecarSuffix = ".ytq.json"

// Record is the persisted resumable state of one output target
type Record struct {
	SourceID        string     `json:"source_id"`
	OutputPath      string     `json:"output_path"`
	TotalBytes      int64      `json:"total_bytes"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	StartedAt       time.Time  `json:"started_at"`
	LastUpdatedAt   time.Time  `json:"last_updated_at"`
	SourceURL       string     `json:"source_url"`
	RateLimitedAt   *time.Time `json:"rate_limited_at"`
	LastAttemptAt   *time.Time `json:"last_attempt_at"`
	DisplayTitle    string     `json:"display_title"`
}

// SidecarPath returns the sidecar file path for an output path
func SidecarPath(outputPath string) string {
	return outputPath + SidecarSuffix
}

// IsSidecar reports whether name looks like a sidecar file
func IsSidecar(name string) bool {
	return strings.HasSuffix(name, SidecarSuffix) && len(name) > len(SidecarSuffix)
}

// OutputPathFor strips the sidecar suffix, returning the output path it belongs to
func OutputPathFor(sidecarPath string) string {
	return strings.TrimSuffix(sidecarPath, SidecarSuffix)
}

// Percent returns completion in [0,100]. A record without a size estimate is at 0.
func (r Record) Percent() float64 {
	if r.TotalBytes <= 0 {
		return 0
	}
	p := float64(r.DownloadedBytes) / float64(r.TotalBytes) * 100
	if p > 100 {
		return 100
	}
	return p
}

// RateLimitRemaining returns the cooldown left at now, or false once it expired
func (r Record) RateLimitRemaining(now time.Time) (time.Duration, bool) {
	if r.RateLimitedAt == nil {
		return 0, false
	}
	elapsed := now.Sub(*r.RateLimitedAt)
	if elapsed >= RateLimitCooldown {
		return 0, false
	}
	return RateLimitCooldown - elapsed, true
}

// clone returns a copy that shares no pointers with r
func (r Record) clone() Record {
	out := r
	if r.RateLimitedAt != nil {
		t := *r.RateLimitedAt
		out.RateLimitedAt = &t
	}
	if r.LastAttemptAt != nil {
		t := *r.LastAttemptAt
		out.LastAttemptAt = &t
	}
	return out
}

func encodeRecord(r Record) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if r.SourceID == "" {
		return Record{}, fmt.Errorf("decode record: missing source_id")
	}
	return r, nil
}
