package uuid7

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProducesVersion7(t *testing.T) {
	u, err := New()
	assert.NoError(t, err)
	assert.Equal(t, 7, u.Version())
	assert.Equal(t, uint8(0x80), u[8]&0xC0)
}

func TestStringParseRoundTrip(t *testing.T) {
	u, err := New()
	assert.NoError(t, err)
	s := u.String()
	assert.Len(t, s, 36)
	got, err := Parse(s)
	assert.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestFromBytesRoundTrip(t *testing.T) {
	u, _ := New()
	got, err := FromBytes(u.Bytes())
	assert.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = FromBytes(make([]byte, 10))
	assert.Error(t, err)
}

func TestCompareOrdersByBytes(t *testing.T) {
	a := UUID{0x01}
	b := UUID{0x02}
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestSuccessiveUUIDsAreTimeOrdered(t *testing.T) {
	a, _ := New()
	b, _ := New()
	// The 6-byte big-endian timestamp prefix alone must be non-decreasing
	// across successive generations (ms granularity may tie).
	assert.True(t, string(a[:6]) <= string(b[:6]))
}
