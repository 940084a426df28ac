package matomo

import (
	"errors"
	"time"
)

var (
	ErrTransport  = errors.New("matomo: transport failure")
	ErrHTTPStatus = errors.New("matomo: unexpected response status")
)

type OutcomeKind string

const (
	OutcomeSuccess             OutcomeKind = "success"
	OutcomeSkipped             OutcomeKind = "skipped"
	OutcomeSkippedUnconfigured OutcomeKind = "skipped_unconfigured"
	OutcomeTransportError      OutcomeKind = "transport_error"
	OutcomeHTTPError           OutcomeKind = "http_error"
)

// Outcome is the result of one Deliver call. Skips are outcomes, not errors.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Err        error
	Duration   time.Duration
}

// Attempted reports whether a request was actually sent (or tried) to the collector.
func (o Outcome) Attempted() bool {
	switch o.Kind {
	case OutcomeSuccess, OutcomeTransportError, OutcomeHTTPError:
		return true
	}
	return false
}

func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// ErrorMessage is empty for successes and skips.
func (o Outcome) ErrorMessage() string {
	if o.Succeeded() || !o.Attempted() {
		return ""
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	return string(o.Kind)
}
