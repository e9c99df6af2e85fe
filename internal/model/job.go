package model

import (
	"strings"
	"time"
)

// JobRequest is what a caller submits to the download queue
type JobRequest struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title,omitempty"`
	Quality  string `json:"quality,omitempty"`
}

// JobStatus is a point-in-time snapshot of one queued download job
type JobStatus struct {
	ID              string     `json:"id"`
	SourceID        string     `json:"source_id"`
	Title           string     `json:"title,omitempty"`
	Quality         string     `json:"quality,omitempty"`
	State           JobState   `json:"state"`
	Outcome         Outcome    `json:"outcome,omitempty"`
	ProgressPercent int        `json:"progress_percent"` // 0 to 100
	Error           string     `json:"error,omitempty"`
	ResultPath      string     `json:"result_path,omitempty"`
	RetryAfter      string     `json:"retry_after,omitempty"` // remaining cooldown when rate limited
	QueuedAt        time.Time  `json:"queued_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// QueueStats aggregates job counters. Terminal counters only ever grow.
type QueueStats struct {
	Queued      int   `json:"queued"`
	Running     int   `json:"running"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	RateLimited int64 `json:"rate_limited"`
	Cancelled   int64 `json:"cancelled"`
}

// ClampPercent converts a fraction into a whole percentage in [0,100]
func ClampPercent(fraction float64) int {
	percent := int(fraction * 100)
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// GetDisplayTitle returns title, filename, or source id in order of preference
func (j JobStatus) GetDisplayTitle() string {
	if j.Title != "" && !strings.HasPrefix(j.Title, "http") {
		return j.Title
	}

	if j.ResultPath != "" {
		// Support both / and \ separators
		parts := strings.FieldsFunc(j.ResultPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	return j.SourceID
}
