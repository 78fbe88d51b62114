package link

import (
	"encoding/binary"

	"github.com/gouucp/guucp"
	"github.com/gouucp/guucp/internal/crc"
)

// encodePacket renders hdr+payload(+CRC trailer) into a single
// contiguous byte slice, ready for a port write.
func encodePacket(hdr guucp.Header, payload []byte) []byte {
	raw := make([]byte, guucp.HeaderSize+len(payload)+trailerLen(len(payload)))
	guucp.EncodeHeader(raw, hdr)
	if len(payload) == 0 {
		return raw
	}
	copy(raw[guucp.HeaderSize:], payload)
	sum := crc.Of(payload)
	binary.BigEndian.PutUint32(raw[guucp.HeaderSize+len(payload):], sum)
	return raw
}

func trailerLen(payloadLen int) int {
	if payloadLen == 0 {
		return 0
	}
	return guucp.TrailerSize
}

// decodePos4 parses a 4-byte big-endian SPOS payload.
func decodePos4(payload []byte) int64 {
	if len(payload) < 4 {
		return 0
	}
	return int64(binary.BigEndian.Uint32(payload))
}

// encodePos4 renders an SPOS payload.
func encodePos4(pos int64) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(pos))
	return b
}
