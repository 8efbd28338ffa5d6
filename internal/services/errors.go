package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrSubmission     = errors.New("submission error")
	ErrTransport      = errors.New("transport error")
	ErrParse          = errors.New("parse error")
	ErrAmbiguousClose = errors.New("stream closed before a terminal event")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTimeout        = errors.New("timeout")
)

// Outcome is the terminal classification an error maps to.
type Outcome string

const (
	OutcomeFailed  Outcome = "failed"
	OutcomeClosed  Outcome = "closed"
	OutcomeInvalid Outcome = "invalid"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// OutcomeFor maps an error to the terminal state a job should report.
// Validation problems never reach the network, so they are reported as invalid
// input rather than a failed job.
func OutcomeFor(err error) Outcome {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return OutcomeInvalid
	case errors.Is(err, ErrAmbiguousClose):
		return OutcomeClosed
	default:
		return OutcomeFailed
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "client failure"
	}
	return strings.Join(parts, ": ")
}
