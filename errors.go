package ytdown

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidReference           = errors.New("input does not reference a valid video")
	ErrTemplateMissingPlaceholder = errors.New("provider template does not contain " + TemplatePlaceholder)
	ErrNoProviders                = errors.New("no stream providers available")
	ErrNoEligibleStreams          = errors.New("stream with audio unavailable from provider")
)

// HTTPError is a non-2xx response from a provider. Snippet carries a
// whitespace-collapsed, truncated prefix of the response body so that error
// pages from misbehaving instances still show up in diagnostics.
type HTTPError struct {
	Status     int
	StatusText string
	Snippet    string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %d %s", e.Status, e.StatusText)
	if e.Snippet != "" {
		msg += " - " + e.Snippet
	}
	return msg
}

// NonJSONError is a 2xx provider response whose body failed to parse as JSON.
type NonJSONError struct {
	Snippet string
}

func (e *NonJSONError) Error() string {
	if e.Snippet == "" {
		return "response is not JSON"
	}
	return "response is not JSON - " + e.Snippet
}

// A ProviderFailure records why one provider was skipped during resolution.
type ProviderFailure struct {
	Provider string
	Reason   error
}

func (f ProviderFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Provider, f.Reason)
}

// AllProvidersError is the terminal failure of a resolution call: every
// provider in the stack was tried and failed. Failures preserves stack order.
type AllProvidersError struct {
	Failures []ProviderFailure
	wrapped  error
}

func (e *AllProvidersError) Error() string {
	details := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		details[i] = f.String()
	}
	return "all providers failed: " + strings.Join(details, " | ")
}

func (e *AllProvidersError) Unwrap() error {
	return e.wrapped
}

// DownloadTriggerError wraps a failure of the external download mechanism.
type DownloadTriggerError struct {
	Err error
}

func (e *DownloadTriggerError) Error() string {
	return fmt.Sprintf("download trigger failed: %v", e.Err)
}

func (e *DownloadTriggerError) Unwrap() error {
	return e.Err
}
