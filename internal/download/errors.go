package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ytget/ytq/internal/model"
	"github.com/ytget/ytq/internal/stall"
)

// Kind classifies why a download did not succeed
type Kind int

const (
	// KindTransient is any other transfer failure; retried until attempts run out
	KindTransient Kind = iota
	// KindInvalidTarget means the identifier could not be parsed; never retried
	KindInvalidTarget
	// KindStalled means no progress within the stall timeout; retried
	KindStalled
	// KindRateLimited means the source throttled us; recorded with a cooldown
	KindRateLimited
	// KindUserCancelled means the caller asked to stop; partial state is kept
	KindUserCancelled
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindInvalidTarget:
		return "invalid_target"
	case KindStalled:
		return "stalled"
	case KindRateLimited:
		return "rate_limited"
	case KindUserCancelled:
		return "user_cancelled"
	default:
		return "transient"
	}
}

// Outcome maps a failure kind onto the user-visible outcome
func (k Kind) Outcome() model.Outcome {
	switch k {
	case KindRateLimited:
		return model.OutcomeRateLimited
	case KindUserCancelled:
		return model.OutcomeCancelled
	default:
		return model.OutcomeFailed
	}
}

var (
	// ErrInvalidTarget is matched by errors for unparsable identifiers
	ErrInvalidTarget = errors.New("invalid target")

	// ErrRateLimited lets a Fetcher signal throttling explicitly
	ErrRateLimited = errors.New("rate limited")

	// ErrRetriesExhausted wraps the last failure once every attempt was used
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Error is returned by the orchestrator for every unsuccessful run.
//
// Use errors.As to inspect Kind, or errors.Is against ErrInvalidTarget,
// ErrRateLimited, stall.ErrStalled and context.Canceled.
type Error struct {
	Kind       Kind
	SourceID   string
	Attempts   int
	RetryAfter time.Duration // remaining cooldown for KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("download %s", e.SourceID))
	switch e.Kind {
	case KindRateLimited:
		b.WriteString(fmt.Sprintf(": rate limited, retry in %s", e.RetryAfter.Round(time.Second)))
	case KindUserCancelled:
		b.WriteString(": cancelled")
	case KindInvalidTarget:
		b.WriteString(": invalid target")
	default:
		if e.Attempts > 0 {
			b.WriteString(fmt.Sprintf(" failed after %d attempt(s)", e.Attempts))
		} else {
			b.WriteString(" failed")
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel errors of each kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidTarget:
		return e.Kind == KindInvalidTarget
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case stall.ErrStalled:
		return e.Kind == KindStalled
	case context.Canceled:
		return e.Kind == KindUserCancelled
	}
	return false
}

// KindOf returns the kind carried by err, KindTransient for foreign errors
func KindOf(err error) Kind {
	var dlErr *Error
	if errors.As(err, &dlErr) {
		return dlErr.Kind
	}
	return KindTransient
}

// rateLimitIndicators are matched against error text when a Fetcher gives no
// structured signal. Best effort only.
var rateLimitIndicators = []string{
	"too many requests",
	"429",
	"rate limit",
	"rate-limit",
	"ratelimit",
	"rate limited",
}

// IsRateLimitError reports whether err means the source is throttling us.
// Structured signals win: ErrRateLimited in the chain or any error with a
// RateLimited() bool method. Message matching is the fallback.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var tagged interface{ RateLimited() bool }
	if errors.As(err, &tagged) {
		return tagged.RateLimited()
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range rateLimitIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
