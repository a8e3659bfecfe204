package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InvalidRequestError rejects a malformed SearchRequest before any provider call.
type InvalidRequestError struct {
	Problems []string
}

func (e *InvalidRequestError) Error() string {
	return "invalid search request: " + strings.Join(e.Problems, "; ")
}

// InvalidPostError reports a provider record missing a required field.
type InvalidPostError struct {
	PostID string
	Field  string
}

func (e *InvalidPostError) Error() string {
	if e.PostID == "" {
		return fmt.Sprintf("invalid post: missing %s", e.Field)
	}
	return fmt.Sprintf("invalid post %s: missing %s", e.PostID, e.Field)
}

// RateLimitedError is returned once the retry policy gave up on a throttled call.
type RateLimitedError struct {
	Target     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.Target == "" {
		return "provider rate limited"
	}
	return fmt.Sprintf("provider rate limited for %s", e.Target)
}

// ProviderErrorKind classifies non rate-limit provider failures.
type ProviderErrorKind string

const (
	ProviderAuthFailed ProviderErrorKind = "auth_failed"
	ProviderNetwork    ProviderErrorKind = "network"
	ProviderStatus     ProviderErrorKind = "status"
	ProviderDecode     ProviderErrorKind = "decode"
)

// ProviderError wraps a failed provider call.
type ProviderError struct {
	Kind       ProviderErrorKind
	Target     string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s", e.Kind)
	if e.Target != "" {
		msg += " for " + e.Target
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderUnavailableError means every fan-out target failed.
type ProviderUnavailableError struct {
	FailedTargets []string
	Causes        []error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider unavailable: all %d targets failed (%s)",
		len(e.FailedTargets), strings.Join(e.FailedTargets, ", "))
}

func (e *ProviderUnavailableError) Unwrap() []error { return e.Causes }

// PersistenceWriteError is a storage failure after a successful search.
type PersistenceWriteError struct {
	Op  string
	Err error
}

func (e *PersistenceWriteError) Error() string {
	return fmt.Sprintf("persistence write failed (%s): %v", e.Op, e.Err)
}

func (e *PersistenceWriteError) Unwrap() error { return e.Err }

// Error categories exposed to API callers.
const (
	CategoryInvalidRequest      = "invalid_request"
	CategoryInvalidPost         = "invalid_post"
	CategoryRateLimited         = "rate_limited"
	CategoryProviderUnavailable = "provider_unavailable"
	CategoryProvider            = "provider_error"
	CategoryPersistence         = "persistence_write"
	CategoryTimeout             = "timeout"
	CategoryNotFound            = "not_found"
	CategoryInternal            = "internal"
)

// ErrNotFound is returned by lookups that matched nothing.
var ErrNotFound = errors.New("not found")

// ErrorCategory maps err onto a stable category name.
func ErrorCategory(err error) string {
	var (
		invalidReq  *InvalidRequestError
		invalidPost *InvalidPostError
		rateLimited *RateLimitedError
		unavailable *ProviderUnavailableError
		provider    *ProviderError
		persistence *PersistenceWriteError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalidReq):
		return CategoryInvalidRequest
	case errors.As(err, &unavailable):
		return CategoryProviderUnavailable
	case errors.As(err, &rateLimited):
		return CategoryRateLimited
	case errors.As(err, &provider):
		return CategoryProvider
	case errors.As(err, &invalidPost):
		return CategoryInvalidPost
	case errors.As(err, &persistence):
		return CategoryPersistence
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	default:
		return CategoryInternal
	}
}
