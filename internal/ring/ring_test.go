package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteReadRoundTrip(t *testing.T) {
	r := New(32)
	n := r.Write([]byte("hello world"))
	assert.Equal(t, 11, n)
	assert.Equal(t, 11, r.Occupied())

	first, second := r.PeekSpans(11)
	got := append(append([]byte{}, first...), second...)
	assert.Equal(t, "hello world", string(got))
	r.Advance(11)
	assert.Equal(t, 0, r.Occupied())
}

func TestWrapAround(t *testing.T) {
	r := New(MinCapacity)
	cap := r.Capacity()

	// Fill to near the end, drain most of it, then write again so the
	// next write straddles the physical end of the buffer.
	filler := make([]byte, cap-4)
	r.Write(filler)
	r.Advance(cap - 4)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	r.Write(payload)
	first, second := r.PeekSpans(len(payload))
	assert.True(t, len(second) > 0, "expected the write to wrap across the physical end")
	got := append(append([]byte{}, first...), second...)
	assert.Equal(t, payload, got)
}

func TestSpaceNeverExceedsCapacity(t *testing.T) {
	r := New(64)
	assert.Equal(t, r.Capacity(), r.Space())
	r.Write(make([]byte, r.Capacity()+10))
	assert.Equal(t, 0, r.Space())
}
