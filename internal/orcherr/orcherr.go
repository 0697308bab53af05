// Package orcherr defines the closed taxonomy of error kinds surfaced across
// component boundaries, plus a small wrapping type that carries a kind
// alongside the usual %w-wrapped cause.
package orcherr

import "fmt"

// Kind is a category surfaced to callers and logs, never a type name.
type Kind string

const (
	KindTaskFormatInvalid  Kind = "TaskFormatInvalid"
	KindPreconditionFailed Kind = "PreconditionFailed"
	KindSpawnFailed        Kind = "SpawnFailed"
	KindSubprocessCrashed  Kind = "SubprocessCrashed"
	KindProbeMalformed     Kind = "ProbeMalformed"
	KindProbeTimeout       Kind = "ProbeTimeout"
	KindRescueFailed       Kind = "RescueFailed"
	KindStalled            Kind = "Stalled"
	KindPersistenceError   Kind = "PersistenceError"
	KindFSReadError        Kind = "FSReadError"
	KindFSWriteError       Kind = "FSWriteError"
)

// Error wraps an underlying cause with a stable Kind classifier.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. A nil err still produces a classifiable Error.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Wrap is a convenience for fmt.Errorf-style context plus a kind.
func Wrap(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; the ok return is false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// As is a tiny local alias of errors.As to avoid importing errors in every
// call site that only needs KindOf.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
