// Package errs defines the error-kind taxonomy shared across the
// orchestration core (see SPEC_FULL.md §7). Each Kind is a string tag that
// Wrap/New attach to an error; callers test for it with this package's Is,
// which walks the wrapped chain.
package errs

import "github.com/pkg/errors"

// Kind identifies one of the error categories from the error-handling
// design. It is attached to wrapped errors so HTTP handlers and status
// writers can recover the right behavior without string matching.
type Kind string

const (
	KindConfigMissing     Kind = "config-missing"
	KindSpawnFailure      Kind = "spawn-failure"
	KindProcessLost       Kind = "process-lost"
	KindStopTimeout       Kind = "stop-timeout"
	KindBusUnavailable    Kind = "bus-unavailable"
	KindStoreUnavailable  Kind = "store-unavailable"
	KindMalformedEnvelope Kind = "malformed-envelope"
	KindProtocolAuth      Kind = "protocol-auth-failure"
	KindTurnFailure       Kind = "turn-failure"
)

// kindError pairs a Kind with the underlying cause so errors.As can recover
// both the category and a human-readable detail in one allocation.
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return string(e.kind)
	}
	return string(e.kind) + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() error { return e.cause }

// Wrap annotates err with kind, preserving the chain for errors.Is/As.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: err}
}

// New creates a kind-tagged error from a message, in the style of
// errors.New but carrying a Kind for later dispatch.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, cause: errors.New(msg)}
}

// Is reports whether err (or any error it wraps) carries kind.
func Is(err error, kind Kind) bool {
	var ke *kindError
	for err != nil {
		if errors.As(err, &ke) && ke.kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Detail extracts the human-readable cause for storing in a status record's
// error_detail field.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var ke *kindError
	if errors.As(err, &ke) && ke.cause != nil {
		return ke.cause.Error()
	}
	return err.Error()
}
