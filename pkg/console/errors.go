package console

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrUnauthorized     = errors.New("console rejected the api key")
	ErrEmptyIDs         = errors.New("no event ids supplied")
	ErrNoConsoleURL     = errors.New("console url is required")
)

// StatusError is returned for any non-success response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, http.StatusText(e.Status), e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrUnauthorized
	}
	return ErrUnexpectedStatus
}

// Retryable reports whether the response status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || (e.Status >= 500 && e.Status < 600)
}
