package varint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 127, 128, 255, 256,
		1 << 14, 1<<21 - 1, 1 << 28,
		1 << 35, 1 << 42, 1 << 49,
		1<<56 - 1, 1 << 56, 1 << 63,
		math.MaxUint64,
	}
	for _, v := range values {
		buf := Put(nil, v)
		got, n, ok := Get(buf)
		assert.True(t, ok, "value %d", v)
		assert.Equal(t, len(buf), n, "value %d", v)
		assert.Equal(t, v, got, "value %d", v)
		assert.LessOrEqual(t, len(buf), MaxLen)
	}
}

func TestLenMatchesPut(t *testing.T) {
	values := []uint64{0, 1, 300, 1 << 20, 1 << 40, math.MaxUint64}
	for _, v := range values {
		assert.Equal(t, Len(v), len(Put(nil, v)), "value %d", v)
	}
}

func TestNineByteEncoding(t *testing.T) {
	// A value with bits set above bit 55 must use the full 9-byte form:
	// 8 continuation bytes, then one terminal byte holding the top byte
	// verbatim (spec.md §9's documented fix for the source's loop bug).
	v := uint64(1) << 60
	buf := Put(nil, v)
	assert.Len(t, buf, 9)
	for i := 0; i < 8; i++ {
		assert.NotZero(t, buf[i]&0x80, "continuation bit at byte %d", i)
	}
	got, n, ok := Get(buf)
	assert.True(t, ok)
	assert.Equal(t, 9, n)
	assert.Equal(t, v, got)
}

func TestGetShortBuffer(t *testing.T) {
	_, _, ok := Get([]byte{0x80, 0x80})
	assert.False(t, ok)
}

func TestCmp(t *testing.T) {
	a := Put(nil, 5)
	b := Put(nil, 300)
	assert.Equal(t, -1, Cmp(a, b))
	assert.Equal(t, 1, Cmp(b, a))
	assert.Equal(t, 0, Cmp(a, a))
}
