package creatorsearch

import (
	"errors"
	"fmt"
)

// TransportError is returned when a backend call fails with a non-success status or times out
type TransportError struct {
	Endpoint   string
	StatusCode int
	Detail     string
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: request timed out", e.Endpoint)
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%s: backend returned %d: %s", e.Endpoint, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: backend returned %d", e.Endpoint, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("%s: transport failure", e.Endpoint)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NormalizationError is returned when a raw response is structurally unusable
type NormalizationError struct {
	Strategy Strategy
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("cannot normalise %s response: %s", e.Strategy, e.Reason)
}

// FallbackError carries both causes when the primary and the fallback strategy fail
type FallbackError struct {
	Primary          error
	Fallback         error
	PrimaryStrategy  Strategy
	FallbackStrategy Strategy
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%s search failed (%v); fallback %s search also failed (%v)",
		e.PrimaryStrategy, e.Primary, e.FallbackStrategy, e.Fallback)
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// AnalysisError is returned when content analysis reports a hard error status
type AnalysisError struct {
	Username string
	Message  string
}

func (e *AnalysisError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("content analysis failed for @%s", e.Username)
	}
	return fmt.Sprintf("content analysis failed for @%s: %s", e.Username, e.Message)
}

// IsRecoverable reports whether err is one the orchestrator falls back from
func IsRecoverable(err error) bool {
	var te *TransportError
	var ne *NormalizationError
	return errors.As(err, &te) || errors.As(err, &ne)
}
