package link

import (
	"time"

	"github.com/gouucp/guucp"
)

// waitForPacket drains any buffered data and, while the exit
// condition (done) is not yet satisfied, reads more bytes from the
// port. On a read timeout it retransmits the oldest unacked
// packet, or failing that sends a NAK for the next expected sequence,
// then retries up to `retries` times before giving up.
func (l *Link) waitForPacket(timeout time.Duration, retries int, done func() bool) error {
	if retries <= 0 {
		retries = 1
	}
	attempts := 0
	for {
		for {
			progressed, err := l.processData()
			if err != nil {
				return err
			}
			if l.peerClosed {
				return guucp.ErrShutdown
			}
			if done != nil && done() {
				return nil
			}
			if !progressed {
				break
			}
		}

		// Reads must fill the first free span: Commit advances the
		// producer cursor from there.
		recvInto, _ := l.ring.WriteSpans()
		n, err := l.port.Read(recvInto, timeout)
		if n > 0 {
			l.ring.Commit(n)
			l.shortReads = 0
			continue
		}
		if err != nil && err != guucp.ErrTimeout {
			return err
		}
		// Timed out with nothing new. If a partial packet is stuck at
		// the head of the ring across two consecutive timeouts, its
		// length field is probably corrupt; shift past the intro byte
		// so the decoder can resynchronize.
		if l.ring.Occupied() > 0 {
			l.shortReads++
			if l.shortReads >= 2 {
				l.ring.Advance(1)
				l.shortReads = 0
				continue
			}
		}
		attempts++
		if attempts > retries {
			return guucp.ErrTimeout
		}
		if onTimeoutErr := l.onReadTimeout(); onTimeoutErr != nil {
			return onTimeoutErr
		}
	}
}

// onReadTimeout retransmits the oldest unacknowledged packet, or
// sends a NAK for the next expected sequence if nothing is in flight.
func (l *Link) onReadTimeout() error {
	next := guucp.SeqNext(l.remoteAck)
	if next != l.sendSeq {
		slot := l.sendBuf[next]
		if slot.used {
			hdr := slot.hdr
			hdr.AckSeq = l.recvSeq
			raw := encodePacket(hdr, slot.payload)
			l.sendBuf[next].raw = raw
			l.sendBuf[next].hdr = hdr
			l.stats.Resent++
			return l.writePort(raw)
		}
	}
	return l.sendNak(guucp.SeqNext(l.recvSeq))
}
