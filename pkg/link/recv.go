package link

import (
	"encoding/binary"
	"fmt"

	"github.com/gouucp/guucp"
	"github.com/gouucp/guucp/internal/crc"
)

// processData drains one decodable unit from the ring. It
// returns true if it made progress (a packet was accepted, rejected,
// or buffered) and should be called again; false if the ring holds no
// complete packet right now.
func (l *Link) processData() (bool, error) {
	progressed, err := l.processOne()
	if err != nil {
		return false, err
	}
	return progressed, nil
}

func (l *Link) processOne() (bool, error) {
	// Step 1: skip to the next intro byte.
	occ := l.ring.Occupied()
	for occ > 0 && l.ring.ByteAt(0) != guucp.IntroByte {
		l.ring.Advance(1)
		occ--
	}
	if occ < guucp.HeaderSize {
		return false, nil // need more bytes, possibly zero if ring empty
	}

	var hdrBuf [guucp.HeaderSize]byte
	first, second := l.ring.PeekRange(0, guucp.HeaderSize)
	n := copy(hdrBuf[:], first)
	copy(hdrBuf[n:], second)

	if !guucp.CheckHeader(hdrBuf[:]) {
		l.stats.BadHeader++
		l.ring.Advance(1)
		return true, l.checkErrors()
	}
	hdr := guucp.DecodeHeader(hdrBuf[:])
	if hdr.Caller == l.caller {
		l.log.Warn("rejecting reflected packet: caller flag matches local role")
		l.stats.BadHeader++
		l.ring.Advance(1)
		return true, l.checkErrors()
	}

	total := guucp.HeaderSize + int(hdr.Length) + trailerLen(int(hdr.Length))
	if occ < total {
		return false, nil
	}

	if hdr.Length > 0 {
		pf, ps := l.ring.PeekRange(guucp.HeaderSize, int(hdr.Length))
		sum := crc.OfSpans(pf, ps)

		var trailerBuf [guucp.TrailerSize]byte
		tf, ts := l.ring.PeekRange(guucp.HeaderSize+int(hdr.Length), guucp.TrailerSize)
		tn := copy(trailerBuf[:], tf)
		copy(trailerBuf[tn:], ts)
		want := binary.BigEndian.Uint32(trailerBuf[:])

		if sum != want {
			l.stats.BadChecksum++
			if hdr.Type.HasSequence() {
				if err := l.sendNak(hdr.Seq); err != nil {
					return false, err
				}
			}
			l.ring.Advance(1)
			return true, l.checkErrors()
		}
	}

	// Valid packet. Copy payload out before consuming the ring.
	var payload []byte
	if hdr.Length > 0 {
		payload = make([]byte, hdr.Length)
		pf, ps := l.ring.PeekRange(guucp.HeaderSize, int(hdr.Length))
		pn := copy(payload, pf)
		copy(payload[pn:], ps)
	}
	l.ring.Advance(total)
	l.stats.Received++

	l.applyPiggyback(hdr.AckSeq)

	if !hdr.Type.HasSequence() {
		if err := l.processPacket(hdr, payload); err != nil {
			return false, err
		}
		return true, nil
	}

	if hdr.Seq == guucp.SeqNext(l.recvSeq) {
		l.recvSeq = hdr.Seq
		l.naked[hdr.Seq] = false
		if err := l.processPacket(hdr, payload); err != nil {
			return false, err
		}
		l.maybeAck()
		l.deliverContiguous()
		return true, nil
	}

	window := l.cfg.Window
	diff := guucp.SeqDiff(hdr.Seq, l.recvSeq)
	if diff == 0 || diff > uint8(window) {
		l.stats.BadOrder++
		return true, l.checkErrors()
	}
	if !l.recvBuf[hdr.Seq].used {
		l.recvBuf[hdr.Seq] = inSlot{used: true, hdr: hdr, payload: payload}
	}
	for seq := guucp.SeqNext(l.recvSeq); seq != hdr.Seq; seq = guucp.SeqNext(seq) {
		if !l.naked[seq] {
			if err := l.sendNak(seq); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// deliverContiguous hands any buffered packets whose sequence
// immediately follows recvSeq to processPacket, in order. Each
// delivery counts as an accepted packet for the standalone-ACK
// threshold.
func (l *Link) deliverContiguous() {
	for {
		next := guucp.SeqNext(l.recvSeq)
		slot := l.recvBuf[next]
		if !slot.used {
			return
		}
		l.recvBuf[next] = inSlot{}
		l.recvSeq = next
		l.naked[next] = false
		if err := l.processPacket(slot.hdr, slot.payload); err != nil {
			l.log.WithError(err).Warn("error delivering buffered packet")
		}
		l.maybeAck()
	}
}

// maybeAck emits a standalone ACK once enough packets have been
// accepted since the last one.
func (l *Link) maybeAck() {
	window := l.remoteWindow
	if window <= 0 {
		window = l.cfg.Window
	}
	if int(guucp.SeqDiff(l.recvSeq, l.localAck)) >= window/2 {
		if err := l.sendAck(); err != nil {
			l.log.WithError(err).Warn("failed to send standalone ACK")
			return
		}
		for seq := guucp.SeqNext(l.localAck); ; seq = guucp.SeqNext(seq) {
			l.naked[seq] = false
			if seq == l.recvSeq {
				break
			}
		}
		l.localAck = l.recvSeq
	}
}

// applyPiggyback advances remoteAck from an inbound packet's
// piggybacked ack field. The peer can only have acknowledged sequences
// we actually sent, so the advance is capped at the in-flight range.
func (l *Link) applyPiggyback(ackSeq uint8) {
	adv := guucp.SeqDiff(ackSeq, l.remoteAck)
	if adv > 0 && adv < guucp.SeqDiff(l.sendSeq, l.remoteAck) {
		l.remoteAck = ackSeq
	}
}

func (l *Link) sendNak(seq uint8) error {
	l.naked[seq] = true
	hdr := guucp.Header{Seq: seq, Type: guucp.PacketNak, Caller: l.caller}
	return l.sendRaw(hdr, nil)
}

func (l *Link) sendAck() error {
	hdr := guucp.Header{Type: guucp.PacketAck, Caller: l.caller}
	return l.sendRaw(hdr, nil)
}

// checkErrors enforces the error budget: the link fails fatally once
// accumulated faults outpace successfully received traffic by more
// than the configured maximum.
func (l *Link) checkErrors() error {
	decay := l.cfg.ErrorDecay
	if decay <= 0 {
		decay = 1
	}
	total := l.stats.BadHeader + l.stats.BadChecksum + l.stats.BadOrder + l.stats.RemoteRejects
	credit := l.stats.Received / uint64(decay)
	if total > credit && total-credit > uint64(l.cfg.MaxErrors) {
		return fmt.Errorf("link: %w (total=%d credit=%d max=%d)", guucp.ErrErrorBudget, total, credit, l.cfg.MaxErrors)
	}
	return nil
}
