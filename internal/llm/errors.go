package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ppiankov/applytrail/internal/model"
)

// APIError is the typed failure every backend returns. It matches
// model.ErrInference always, and model.ErrRateLimited when the backend
// throttled the call.
type APIError struct {
	Provider   string
	StatusCode int    // 0 for transport failures
	Code       string // backend error type/code, if any
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s API error", e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil && e.Message == "" {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// RateLimited reports whether the backend asked us to slow down or is out of quota
func (e *APIError) RateLimited() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	switch strings.ToLower(e.Code) {
	case "rate_limit_exceeded", "rate_limit_error", "overloaded_error", "insufficient_quota", "resource_exhausted":
		return true
	}
	return false
}

// Is lets errors.Is match the shared taxonomy
func (e *APIError) Is(target error) bool {
	switch target {
	case model.ErrInference:
		return true
	case model.ErrRateLimited:
		return e.RateLimited()
	}
	return false
}

// IsRateLimited reports whether err is a rate/quota failure
func IsRateLimited(err error) bool {
	return errors.Is(err, model.ErrRateLimited)
}

// transportError wraps a failure that happened before any HTTP status was seen
func transportError(provider string, err error) error {
	return &APIError{Provider: provider, Err: err}
}
