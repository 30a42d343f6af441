package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := Provider("embed call failed", errors.New("connection reset"))
	if KindOf(err) != KindProvider {
		t.Fatalf("expected provider kind, got %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("expected empty kind for untyped error")
	}
}

func TestWrapNilCause(t *testing.T) {
	if Provider("nothing", nil) != nil {
		t.Fatal("wrapping a nil cause should yield nil")
	}
}

func TestIsKindThroughChain(t *testing.T) {
	inner := Input("empty document text")
	wrapped := fmt.Errorf("stage extracting: %w", inner)
	if !IsKind(wrapped, KindInput) {
		t.Fatal("expected input kind through wrapped chain")
	}
	if IsKind(wrapped, KindProvider) {
		t.Fatal("did not expect provider kind")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"provider", Provider("llm timeout", errors.New("boom")), true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"input", Input("text too long"), false},
		{"scope", Scope("session belongs to another tenant"), false},
		{"consistency", Consistency("ingestion already in flight"), false},
		{"untyped", errors.New("unknown"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := Provider("vector upsert failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the original cause")
	}
}
