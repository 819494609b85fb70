package btree

import "github.com/clockdb/clockdb/internal/errtrace"

// Error codes the B-tree surfaces beyond the pager's own EINVAL/ENOMEM
// (spec.md §6 expansion): ENOENT on a missed lookup/delete, EEXIST on a
// duplicate-key insert.
const (
	ENOENT  = errtrace.ENOENT
	EEXIST  = errtrace.EEXIST
	EINVAL  = errtrace.EINVAL
	ENOMEM  = errtrace.ENOMEM
	ESTRUCT = errtrace.ESTRUCT
)

// Error is the B-tree's fallible-operation result type, shared with
// internal/pager so failures can be forwarded without translation.
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
