package audit

import (
	"errors"
	"fmt"
)

// Kind classifies everything that can go wrong during an audit run. Row and
// partition level kinds are isolated, counted into the run summary, and never
// abort unrelated partitions. KindInvariantViolation signals a logic bug and
// halts the whole run.
type Kind string

const (
	// KindStructuralDefect marks an unparseable raw row. The row is dropped
	// and counted; the run continues.
	KindStructuralDefect Kind = "structural_defect"

	// KindAmbiguousJoinKey marks a transaction id that matched more than one
	// transaction row. Events referencing it are excluded and reported.
	KindAmbiguousJoinKey Kind = "ambiguous_join_key"

	// KindSourceUnavailable marks an I/O failure reading a feed. The affected
	// partition aborts; the caller may retry.
	KindSourceUnavailable Kind = "source_unavailable"

	// KindWriteFailure marks a rejected sink upsert. Prior sink state stays
	// intact; the key may be retried.
	KindWriteFailure Kind = "write_failure"

	// KindInvariantViolation marks an impossible computed state, e.g.
	// nb_invalid > nb_total. Fatal to the run, never coerced.
	KindInvariantViolation Kind = "invariant_violation"
)

// Error is a classified audit error. Op names the operation that failed, in
// the same style the wrapped message prefixes do.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error wrapping err.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef builds a classified error from a formatted message.
func Ef(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, unwrapping as needed. Unclassified
// errors report an empty Kind.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsFatal reports whether err must halt the entire run rather than a single
// partition.
func IsFatal(err error) bool {
	return KindOf(err) == KindInvariantViolation
}
