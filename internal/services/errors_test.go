package services_test

import (
	"errors"
	"strings"
	"testing"

	"mvdown/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("connection refused")
	err := services.Wrap(services.ErrSubmission, "backend", "submit", "post /api/download", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrSubmission) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"backend", "submit", "post /api/download"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport marker by default, got %v", err)
	}
	if !strings.Contains(err.Error(), "client failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestOutcomeForMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Outcome
	}{
		{"validation", services.Wrap(services.ErrValidation, "orchestrator", "submit", "url is empty", nil), services.OutcomeInvalid},
		{"ambiguous", services.Wrap(services.ErrAmbiguousClose, "orchestrator", "stream", "closed", nil), services.OutcomeClosed},
		{"transport", services.Wrap(services.ErrTransport, "sse", "read", "", errors.New("eof")), services.OutcomeFailed},
		{"nil", nil, services.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.OutcomeFor(tt.err); got != tt.want {
				t.Fatalf("OutcomeFor = %s, want %s", got, tt.want)
			}
		})
	}
}
