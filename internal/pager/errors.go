package pager

import "github.com/clockdb/clockdb/internal/errtrace"

// Error codes surfaced by the pager (spec.md §6).
const (
	EINVAL  = errtrace.EINVAL
	ENOMEM  = errtrace.ENOMEM
	ESTRUCT = errtrace.ESTRUCT
)

// Error is the pager's fallible-operation result type: a code plus the
// trace of frames describing how the failure was observed and forwarded.
type Error = errtrace.Error

func newError(code errtrace.Code, format string, args ...any) *Error {
	return errtrace.New(code, format, args...)
}

// wrapError forwards err one layer up, appending a new frame that records
// this layer's own code and message while preserving every frame already
// recorded beneath it (spec.md §7's "forward" propagation policy).
func wrapError(err *Error, code errtrace.Code, format string, args ...any) *Error {
	return errtrace.Wrap(errtrace.Rehydrate(err.Trace()), code, format, args...)
}
