package guucp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	for _, typ := range []PacketType{PacketData, PacketSync, PacketAck, PacketNak, PacketSpos, PacketClose} {
		for _, length := range []uint16{0, 1, 255, 256, 4095} {
			h := Header{
				Seq:     17,
				Channel: 3,
				AckSeq:  9,
				AckChan: 1,
				Type:    typ,
				Caller:  true,
				Length:  length,
			}
			var buf [HeaderSize]byte
			EncodeHeader(buf[:], h)
			require.True(t, CheckHeader(buf[:]))

			got := DecodeHeader(buf[:])
			assert.Equal(t, h.Seq, got.Seq)
			assert.Equal(t, h.Channel, got.Channel)
			assert.Equal(t, h.AckSeq, got.AckSeq)
			assert.Equal(t, h.AckChan, got.AckChan)
			assert.Equal(t, h.Type, got.Type)
			assert.Equal(t, h.Caller, got.Caller)
			assert.Equal(t, h.Length, got.Length)
		}
	}
}

func TestHeaderWireLayout(t *testing.T) {
	h := Header{Seq: 5, Channel: 2, AckSeq: 3, AckChan: 1, Type: PacketData, Caller: true, Length: 0x234}
	var buf [HeaderSize]byte
	EncodeHeader(buf[:], h)

	assert.Equal(t, IntroByte, buf[0])
	assert.Equal(t, byte(5<<3|2), buf[1])
	assert.Equal(t, byte(3<<3|1), buf[2])
	assert.Equal(t, byte(0<<5|0x10|0x02), buf[3])
	assert.Equal(t, byte(0x34), buf[4])
	assert.Equal(t, buf[1]^buf[2]^buf[3]^buf[4], buf[5])
}

func TestCheckHeaderRejectsBitFlips(t *testing.T) {
	h := Header{Seq: 1, Type: PacketData, Caller: false, Length: 100}
	var buf [HeaderSize]byte
	EncodeHeader(buf[:], h)
	for i := 1; i < HeaderSize; i++ {
		for bit := 0; bit < 8; bit++ {
			flipped := buf
			flipped[i] ^= 1 << bit
			assert.False(t, CheckHeader(flipped[:]), "flip byte %d bit %d", i, bit)
		}
	}
}

func TestSeqArithmetic(t *testing.T) {
	assert.Equal(t, uint8(1), SeqNext(0))
	assert.Equal(t, uint8(0), SeqNext(31))
	assert.Equal(t, uint8(0), SeqDiff(7, 7))
	assert.Equal(t, uint8(1), SeqDiff(0, 31))
	assert.Equal(t, uint8(31), SeqDiff(31, 0))
	// Differences must always be computed modulo the sequence space,
	// never by direct comparison.
	for a := uint8(0); a < SeqSpace; a++ {
		for k := uint8(0); k < SeqSpace; k++ {
			b := (a + k) & (SeqSpace - 1)
			assert.Equal(t, k, SeqDiff(b, a))
		}
	}
}

func TestPacketTypeStrings(t *testing.T) {
	assert.Equal(t, "DATA", PacketData.String())
	assert.Equal(t, "CLOSE", PacketClose.String())
	assert.Equal(t, "UNKNOWN", PacketType(7).String())
	assert.True(t, PacketData.HasSequence())
	assert.True(t, PacketSpos.HasSequence())
	assert.True(t, PacketClose.HasSequence())
	assert.False(t, PacketSync.HasSequence())
	assert.False(t, PacketAck.HasSequence())
	assert.False(t, PacketNak.HasSequence())
}
