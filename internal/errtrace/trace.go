// Package errtrace implements the error trace contract described in
// spec.md §7: every fallible operation reports a SUCCESS/FAILURE outcome
// and, on failure, a small stack of {file, function, line, code, message}
// frames describing how the failure propagated upward.
//
// spec.md specifies the trace as thread-local state. Go has no supported
// goroutine-local storage, and faking one (parsing runtime.Stack for a
// goroutine id, say) is exactly the kind of hand-rolled workaround this
// module avoids — spec.md §9 explicitly allows a context-passing façade
// with an identical contract instead, so that is what this package is:
// each failure builds its own *Trace (New), every layer that forwards the
// failure appends a frame to it (Wrap), and the trace travels upward with
// the returned *Error rather than being hung off the goroutine.
package errtrace

import (
	"fmt"
	"runtime"
	"sync"
)

// Code identifies the kind of failure. Zero is the no-error sentinel.
type Code int

const (
	// OK is the zero value: no error reported.
	OK Code = iota
	// EINVAL indicates an invalid argument (e.g. a zero page id).
	EINVAL
	// ENOMEM indicates an allocation failed, or CLOCK eviction swept
	// without finding a candidate.
	ENOMEM
	// ENOENT indicates a lookup (or delete) found no matching key.
	ENOENT
	// EEXIST indicates an insert found a duplicate key.
	EEXIST
	// ESTRUCT indicates an internal structural invariant was violated.
	ESTRUCT
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case EINVAL:
		return "EINVAL"
	case ENOMEM:
		return "ENOMEM"
	case ENOENT:
		return "ENOENT"
	case EEXIST:
		return "EEXIST"
	case ESTRUCT:
		return "ESTRUCT"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Frame is one entry in a trace: where a failure was observed or forwarded,
// and what was said about it there.
type Frame struct {
	File    string
	Func    string
	Line    int
	Code    Code
	Message string
}

// maxFrames bounds the trace ring; overflow is silently discarded, per
// spec.md §7.
const maxFrames = 32

// Trace is a bounded ring of Frames. The zero value is ready to use.
type Trace struct {
	mu     sync.Mutex
	frames []Frame
}

// Push records a new frame, captured from the caller's call site (skip=1
// means "my caller"). The first nonzero code recorded since the last
// Clear is what Code() returns — Push never overwrites that.
func (t *Trace) Push(code Code, format string, args ...any) {
	pc, file, line, ok := runtime.Caller(1)
	fn := "?"
	if ok {
		if f := runtime.FuncForPC(pc); f != nil {
			fn = f.Name()
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frames) >= maxFrames {
		return // bounded ring: overflow discarded
	}
	t.frames = append(t.frames, Frame{
		File:    file,
		Func:    fn,
		Line:    line,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

// Code returns the first nonzero code reported since the last Clear, or OK
// if the trace is empty.
func (t *Trace) Code() Code {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.frames {
		if f.Code != OK {
			return f.Code
		}
	}
	return OK
}

// Frames returns a copy of the recorded frames, oldest first.
func (t *Trace) Frames() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Frame, len(t.frames))
	copy(out, t.frames)
	return out
}

// Clear discards all recorded frames.
func (t *Trace) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = t.frames[:0]
}

// Error adapts a Trace into a standard Go error, suitable for returning
// from exported APIs once the top-level caller is ready to stop forwarding
// and start reporting. Code and Message are those passed to the New or Wrap
// call that built it (the outermost frame); Trace holds every frame.
type Error struct {
	Code    Code
	Message string
	trace   []Frame
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Trace returns the recorded frames backing this error, oldest first.
func (e *Error) Trace() []Frame { return e.trace }

// New builds a *Trace, pushes a single frame at the caller's site, and
// returns an *Error summarizing it — the common case for a leaf failure
// with no deeper trace to forward.
func New(code Code, format string, args ...any) *Error {
	t := &Trace{}
	t.pushSkip(2, code, format, args...)
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), trace: t.Frames()}
}

// Wrap forwards an existing trace, pushing one more frame describing how
// the caller is propagating the failure (spec.md §7's "forward" policy).
func Wrap(t *Trace, code Code, format string, args ...any) *Error {
	t.pushSkip(2, code, format, args...)
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), trace: t.Frames()}
}

// Rehydrate returns a *Trace pre-populated with frames, so a caller holding
// only an *Error (e.g. one received back from a lower layer across a
// package boundary) can still Wrap it with one more frame describing how
// it is forwarding the failure upward, without losing the frames already
// recorded beneath it.
func Rehydrate(frames []Frame) *Trace {
	return &Trace{frames: append([]Frame(nil), frames...)}
}

func (t *Trace) pushSkip(skip int, code Code, format string, args ...any) {
	pc, file, line, ok := runtime.Caller(skip)
	fn := "?"
	if ok {
		if f := runtime.FuncForPC(pc); f != nil {
			fn = f.Name()
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frames) >= maxFrames {
		return
	}
	t.frames = append(t.frames, Frame{File: file, Func: fn, Line: line, Code: code, Message: fmt.Sprintf(format, args...)})
}
