package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUpstreamUnreachable indicates the inference backend could not be contacted
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	// ErrUpstream indicates the inference backend answered with a non-success status
	ErrUpstream = errors.New("upstream error")
	// ErrCallerAborted indicates the caller stopped the operation
	ErrCallerAborted = errors.New("caller aborted")
	// ErrEmptyPrompt indicates there was nothing to send
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrModelRequired indicates no model was selected
	ErrModelRequired = errors.New("model is required")
)

// UpstreamError is a non-success answer from a reachable backend
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrUpstream) match any UpstreamError
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// IsCallerAborted reports whether err stems from the caller stopping
func IsCallerAborted(err error) bool {
	return errors.Is(err, ErrCallerAborted)
}
