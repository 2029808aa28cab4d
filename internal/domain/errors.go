package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnknownKind  = errors.New("unknown platform")
)

// ValidationError reports malformed client input. It maps to 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError is returned when an origin platform answers with a non-success
// status or a payload that cannot be decoded.
type UpstreamError struct {
	Platform string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s upstream error: %s", e.Platform, e.Body)
	}
	return fmt.Sprintf("%s upstream error: HTTP %d %s", e.Platform, e.Status, e.Body)
}

// CooldownError is returned when the ingestion throttle for a target is engaged.
type CooldownError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown_active: %s", e.Key)
}

// RetryAfterSeconds rounds the remaining cooldown up to whole seconds, minimum one.
func (e *CooldownError) RetryAfterSeconds() int {
	return ceilSeconds(e.RetryAfter)
}

// RateLimitError is returned when a client exceeded the write-rate cap.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return "rate_limited" }

func (e *RateLimitError) RetryAfterSeconds() int {
	return ceilSeconds(e.RetryAfter)
}

func ceilSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
