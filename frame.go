package guucp

import "fmt"

// Header is the decoded form of the 6-byte packet header.
type Header struct {
	Seq     uint8 // local_seq: sequence assigned to this packet (0 for SYNC/ACK; for NAK, the sequence requested)
	Channel uint8 // 3-bit local channel
	AckSeq  uint8 // remote_seq: piggybacked ack of the peer's sequence space
	AckChan uint8 // 3-bit remote channel
	Type    PacketType
	Caller  bool // caller-flag bit, must match this side's role
	Length  uint16
}

// EncodeHeader writes the 6-byte header for h into dst, which must be
// at least HeaderSize bytes. It returns the header check byte used.
func EncodeHeader(dst []byte, h Header) byte {
	_ = dst[HeaderSize-1]
	dst[0] = IntroByte
	dst[1] = (h.Seq << 3) | (h.Channel & 0x07)
	dst[2] = (h.AckSeq << 3) | (h.AckChan & 0x07)
	var callerBit byte
	if h.Caller {
		callerBit = 0x10
	}
	dst[3] = (byte(h.Type) << 5) | callerBit | byte((h.Length>>8)&0x0F)
	dst[4] = byte(h.Length & 0xFF)
	dst[5] = dst[1] ^ dst[2] ^ dst[3] ^ dst[4]
	return dst[5]
}

// DecodeHeader parses a 6-byte header previously produced by
// EncodeHeader. It does not validate the check byte; call
// CheckHeader for that.
func DecodeHeader(src []byte) Header {
	_ = src[HeaderSize-1]
	return Header{
		Seq:     src[1] >> 3,
		Channel: src[1] & 0x07,
		AckSeq:  src[2] >> 3,
		AckChan: src[2] & 0x07,
		Type:    PacketType((src[3] >> 5) & 0x07),
		Caller:  src[3]&0x10 != 0,
		Length:  (uint16(src[3]&0x0F) << 8) | uint16(src[4]),
	}
}

// CheckHeader verifies the XOR check byte of a raw 6-byte header.
func CheckHeader(src []byte) bool {
	_ = src[HeaderSize-1]
	return src[5] == (src[1] ^ src[2] ^ src[3] ^ src[4])
}

// HasSequence reports whether packets of type t carry a meaningful
// sequence number in the 0..31 send/receive window (DATA, SPOS, CLOSE).
// SYNC and ACK always use sequence 0; a NAK's sequence field names the
// packet being requested again.
func (t PacketType) HasSequence() bool {
	switch t {
	case PacketData, PacketSpos, PacketClose:
		return true
	default:
		return false
	}
}

func (h Header) String() string {
	return fmt.Sprintf("%s seq=%d ack=%d len=%d caller=%v", h.Type, h.Seq, h.AckSeq, h.Length, h.Caller)
}
