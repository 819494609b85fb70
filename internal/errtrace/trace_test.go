package errtrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraceIsEmptyAndOK(t *testing.T) {
	tr := &Trace{}
	assert.Equal(t, OK, tr.Code())
	assert.Empty(t, tr.Frames())
}

func TestPushRecordsFirstCodeWins(t *testing.T) {
	tr := &Trace{}
	tr.Push(ENOENT, "first failure")
	tr.Push(ESTRUCT, "second failure, different code")

	assert.Equal(t, ENOENT, tr.Code())
	frames := tr.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, ENOENT, frames[0].Code)
	assert.Equal(t, ESTRUCT, frames[1].Code)
	assert.Equal(t, "first failure", frames[0].Message)
}

func TestPushBeyondCapacityIsDiscarded(t *testing.T) {
	tr := &Trace{}
	for i := 0; i < maxFrames+8; i++ {
		tr.Push(EINVAL, "frame %d", i)
	}
	assert.Len(t, tr.Frames(), maxFrames)
	assert.Equal(t, EINVAL, tr.Code())
}

func TestClearResetsTrace(t *testing.T) {
	tr := &Trace{}
	tr.Push(ENOMEM, "oom")
	require.Equal(t, ENOMEM, tr.Code())

	tr.Clear()
	assert.Equal(t, OK, tr.Code())
	assert.Empty(t, tr.Frames())
}

func TestNewBuildsSingleFrameError(t *testing.T) {
	err := New(EEXIST, "key %d already present", 7)
	require.NotNil(t, err)
	assert.Equal(t, EEXIST, err.Code)
	assert.Equal(t, "key 7 already present", err.Message)
	require.Len(t, err.Trace(), 1)
	assert.Equal(t, EEXIST, err.Trace()[0].Code)
	assert.Contains(t, err.Error(), "EEXIST")
	assert.Contains(t, err.Error(), "key 7 already present")
}

func TestWrapAppendsToExistingTrace(t *testing.T) {
	tr := &Trace{}
	tr.Push(ENOENT, "leaf miss")

	err := Wrap(tr, ENOENT, "lookup failed")
	require.NotNil(t, err)
	assert.Equal(t, ENOENT, err.Code)
	require.Len(t, err.Trace(), 2)
	assert.Equal(t, "leaf miss", err.Trace()[0].Message)
	assert.Equal(t, "lookup failed", err.Trace()[1].Message)
}

func TestCodeStringUnknownValue(t *testing.T) {
	assert.Equal(t, "Code(99)", Code(99).String())
	assert.Equal(t, "OK", OK.String())
}
