// Package faults defines the error taxonomy shared by every pipeline stage
// and external-capability adapter. Handlers and the retry wrapper branch on
// the fault kind instead of matching error strings.
package faults

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and HTTP-status decisions.
type Kind string

const (
	// KindInput marks malformed or empty caller input. Never retried.
	KindInput Kind = "input"
	// KindProvider marks a transient external-capability failure. Retried with backoff.
	KindProvider Kind = "provider"
	// KindScope marks cross-tenant or empty-scope access. Never retried.
	KindScope Kind = "scope"
	// KindConsistency marks a lost conditional write, e.g. a concurrent
	// ingestion run already holds the document. Deduplicated, not fatal.
	KindConsistency Kind = "consistency"
	// KindExtraction marks corrupt or unreadable source content. Never retried.
	KindExtraction Kind = "extraction"
)

// Fault wraps a cause with its kind. Use errors.As / IsKind to branch.
type Fault struct {
	Kind Kind
	Msg  string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Msg, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Fault) Unwrap() error { return f.Err }

// New builds a fault without a cause.
func New(kind Kind, msg string) error {
	return &Fault{Kind: kind, Msg: msg}
}

// Wrap attaches a kind to an underlying cause. A nil cause yields nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: kind, Msg: msg, Err: err}
}

func Input(msg string) error { return New(KindInput, msg) }

// Scope is reserved for adapters that can observe a cross-tenant access
// directly. The stores key every read by tenant, so in-process access to
// another tenant's data surfaces as not-found instead.
func Scope(msg string) error       { return New(KindScope, msg) }
func Consistency(msg string) error { return New(KindConsistency, msg) }

func Provider(msg string, err error) error   { return Wrap(KindProvider, msg, err) }
func Extraction(msg string, err error) error { return Wrap(KindExtraction, msg, err) }

// KindOf returns the fault kind, or "" for untyped errors.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether err is worth another attempt. Provider failures
// and timeouts qualify; every other kind is deterministic and retrying it
// would only repeat the failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return IsKind(err, KindProvider)
}
