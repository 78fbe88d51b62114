package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingleMatchesOf(t *testing.T) {
	c := New()
	for _, b := range []byte("123456789") {
		c.Single(b)
	}
	assert.EqualValues(t, Of([]byte("123456789")), c.Sum())
}

func TestAccumulateAcrossSpans(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	whole := Of(payload)
	split := OfSpans(payload[:3], payload[3:])
	assert.EqualValues(t, whole, split)
}

func TestOfSpansEmptyTail(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	assert.EqualValues(t, Of(payload), OfSpans(payload, nil))
}
