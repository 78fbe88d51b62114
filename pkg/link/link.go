// Package link implements the "i" protocol sliding-window packet
// layer: framing, CRC integrity, piggybacked ACK/NAK, retransmission
// and flow control over an arbitrary guucp.Port byte stream. It is
// the lower half of the transport; the upper half (pkg/session)
// drives it through GetSpace/SendData/SendCmd/Wait/Shutdown and
// receives inbound payload through the OnData upcall.
package link

import (
	"fmt"
	"time"

	"github.com/gouucp/guucp"
	"github.com/gouucp/guucp/internal/ring"
	"github.com/gouucp/guucp/pkg/config"
	log "github.com/sirupsen/logrus"
)

// OnData is the upcall contract: the link hands the session
// layer an inbound DATA payload for the given local/remote channel
// pair. The link copies every payload out of the receive ring before
// the upcall, so first holds the whole payload and second is always
// empty. A zero-length call (both spans empty) is the sender's
// end-of-data marker; the session uses it to end a receive file, while
// commands end at their NUL byte.
type OnData func(first, second []byte, localChan, remoteChan uint8)

// outSlot is a send buffer kept until its sequence is acknowledged,
// so it can be retransmitted verbatim on NAK or timeout.
type outSlot struct {
	used    bool
	hdr     guucp.Header
	payload []byte // does not include header/trailer
	raw     []byte // fully encoded header+payload+trailer, ready to resend
}

// inSlot is an out-of-order DATA/SPOS/CLOSE packet buffered until its
// predecessors arrive.
type inSlot struct {
	used    bool
	hdr     guucp.Header
	payload []byte
}

// Stats are the link's error and traffic counters, exposed to
// pkg/metrics and the CLI's end-of-session report.
type Stats struct {
	BadHeader     uint64
	BadChecksum   uint64
	BadOrder      uint64
	RemoteRejects uint64
	Sent          uint64
	Received      uint64
	Resent        uint64
}

// Link is the per-session link-layer state. It is constructed by
// New, started by Start and torn down by Shutdown; nothing here is
// process-global.
type Link struct {
	cfg    config.Config
	port   guucp.Port
	caller bool
	onData OnData
	log    *log.Entry

	ring *ring.Ring

	sendSeq   uint8
	recvSeq   uint8
	localAck  uint8
	remoteAck uint8
	sendPos   int64
	recvPos   int64

	remotePacketSize int
	remoteWindow     int

	sendBuf [guucp.SeqSpace]outSlot
	recvBuf [guucp.SeqSpace]inSlot
	naked   [guucp.SeqSpace]bool

	stats Stats

	closing      bool
	peerClosed   bool
	shortReads   int
	syncComplete bool
}

// New constructs a Link bound to port, in the given role (caller or
// called), forwarding inbound payload to onData. Call Start next to
// run the SYNC handshake.
func New(port guucp.Port, cfg config.Config, caller bool, onData OnData) *Link {
	return &Link{
		cfg:    cfg,
		port:   port,
		caller: caller,
		onData: onData,
		ring:   ring.New(cfg.PacketSize*2 + 256),
		log:    log.WithField("component", "link"),
		// Sequence 0 belongs to SYNC/ACK/NAK; the first DATA packet
		// is number 1, which is what a fresh receiver awaits.
		sendSeq: 1,
	}
}

// Stats returns a snapshot of the link's error/traffic counters.
func (l *Link) Stats() Stats {
	return l.stats
}

// RecvPos returns the current receive-side file position: it advances
// with every inbound DATA payload and jumps when an SPOS packet
// arrives. The session layer compares it against its own write cursor
// to decide when the receive file must seek.
func (l *Link) RecvPos() int64 {
	return l.recvPos
}

// Start runs the SYNC handshake: announce our packet size and
// window, wait for the peer's SYNC, and adopt its parameters (unless
// overridden by config).
func (l *Link) Start() error {
	payload := []byte{
		byte(l.cfg.PacketSize >> 8),
		byte(l.cfg.PacketSize),
		byte(l.cfg.Window),
	}
	attempts := l.cfg.SyncRetries
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := l.sendRaw(guucp.Header{Type: guucp.PacketSync, Caller: l.caller}, payload); err != nil {
			return fmt.Errorf("link: send SYNC: %w", err)
		}
		err := l.waitForPacket(l.cfg.SyncTimeout, 1, func() bool { return l.syncComplete })
		if l.syncComplete {
			l.log.WithFields(log.Fields{
				"remote_packet_size": l.remotePacketSize,
				"remote_window":      l.remoteWindow,
			}).Info("sync handshake complete")
			return nil
		}
		if err != nil && err != guucp.ErrTimeout {
			return err
		}
		l.log.Warnf("sync attempt %d/%d timed out, resending", attempt+1, attempts)
	}
	return fmt.Errorf("link: sync handshake: %w", guucp.ErrTimeout)
}

// GetSpace returns a payload buffer of up to remotePacketSize bytes
// for the session layer to fill before handing it back to SendData.
func (l *Link) GetSpace() []byte {
	size := l.remotePacketSize
	if size <= 0 {
		size = l.cfg.PacketSize
	}
	return make([]byte, size)
}

// SendData transmits a DATA packet carrying payload[:n] on the given
// channel pair. If hasPos is true and filePos differs from the
// link's current send position, an SPOS packet is emitted first.
func (l *Link) SendData(payload []byte, localChan, remoteChan uint8, filePos int64, hasPos bool) error {
	if hasPos && filePos != l.sendPos {
		if err := l.sendSpos(filePos, localChan, remoteChan); err != nil {
			return err
		}
	}
	if err := l.throttle(); err != nil {
		return err
	}
	hdr := guucp.Header{
		Seq:     l.sendSeq,
		Channel: localChan,
		AckSeq:  l.recvSeq,
		AckChan: remoteChan,
		Type:    guucp.PacketData,
		Caller:  l.caller,
		Length:  uint16(len(payload)),
	}
	if err := l.transmit(hdr, payload); err != nil {
		return err
	}
	l.sendSeq = guucp.SeqNext(l.sendSeq)
	l.sendPos += int64(len(payload))
	l.stats.Sent++
	return l.drain()
}

func (l *Link) sendSpos(filePos int64, localChan, remoteChan uint8) error {
	payload := encodePos4(filePos)
	hdr := guucp.Header{
		Seq:     l.sendSeq,
		Channel: localChan,
		AckSeq:  l.recvSeq,
		AckChan: remoteChan,
		Type:    guucp.PacketSpos,
		Caller:  l.caller,
		Length:  uint16(len(payload)),
	}
	if err := l.throttle(); err != nil {
		return err
	}
	if err := l.transmit(hdr, payload); err != nil {
		return err
	}
	l.sendSeq = guucp.SeqNext(l.sendSeq)
	l.sendPos = filePos
	l.stats.Sent++
	return nil
}

// throttle blocks while the in-flight window is full.
func (l *Link) throttle() error {
	window := l.remoteWindow
	if window <= 0 {
		window = l.cfg.Window
	}
	for guucp.SeqDiff(l.sendSeq, l.remoteAck) > uint8(window) {
		if err := l.waitForPacket(l.cfg.Timeout, l.cfg.Retries, func() bool {
			return guucp.SeqDiff(l.sendSeq, l.remoteAck) <= uint8(window)
		}); err != nil {
			return err
		}
	}
	return nil
}

// transmit encodes hdr+payload(+CRC trailer), stores it in the send
// window for possible retransmission, and writes it to the port.
func (l *Link) transmit(hdr guucp.Header, payload []byte) error {
	raw := encodePacket(hdr, payload)
	if hdr.Type.HasSequence() {
		l.sendBuf[hdr.Seq] = outSlot{used: true, hdr: hdr, payload: append([]byte{}, payload...), raw: raw}
	}
	return l.writePort(raw)
}

// sendRaw builds and writes a packet with no sequence-window bookkeeping,
// for SYNC/ACK/NAK (and the final CLOSE), which are never retransmitted.
func (l *Link) sendRaw(hdr guucp.Header, payload []byte) error {
	hdr.AckSeq = l.recvSeq
	hdr.Length = uint16(len(payload))
	raw := encodePacket(hdr, payload)
	return l.writePort(raw)
}

func (l *Link) writePort(raw []byte) error {
	// Commit advances the producer cursor from where the first free
	// span starts, so reads must land there and nowhere else.
	recvInto, _ := l.ring.WriteSpans()
	sent, received, err := l.port.IO(raw, recvInto, l.cfg.Timeout)
	if received > 0 {
		l.ring.Commit(received)
	}
	if err != nil && err != guucp.ErrTimeout {
		return fmt.Errorf("link: port io: %w", err)
	}
	if sent < len(raw) {
		return fmt.Errorf("link: short write (%d/%d)", sent, len(raw))
	}
	return nil
}

// drain opportunistically processes any data already buffered in the
// ring without blocking for more.
func (l *Link) drain() error {
	for {
		more, err := l.processData()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// SendCmd fragments str (plus its terminating NUL) into
// remotePacketSize-sized DATA payloads and sends them in order. The
// NUL in the final fragment tells the peer the command is complete.
func (l *Link) SendCmd(str string, localChan, remoteChan uint8) error {
	buf := append([]byte(str), 0)
	size := l.remotePacketSize
	if size <= 0 {
		size = l.cfg.PacketSize
	}
	for len(buf) > 0 {
		n := size
		if n > len(buf) {
			n = len(buf)
		}
		if err := l.SendData(buf[:n], localChan, remoteChan, 0, false); err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// Wait exposes wait_for_packet to the session layer so it can
// block for an inbound command or transfer-completion reply.
func (l *Link) Wait(timeout time.Duration, retries int, done func() bool) error {
	return l.waitForPacket(timeout, retries, done)
}

// Shutdown cooperatively tears the link down: it marks closing,
// emits CLOSE, and returns without waiting for acknowledgement.
func (l *Link) Shutdown() error {
	l.closing = true
	err := l.sendRaw(guucp.Header{
		Seq:    l.sendSeq,
		Type:   guucp.PacketClose,
		Caller: l.caller,
	}, nil)
	if err != nil {
		l.log.WithError(err).Warn("best-effort CLOSE send failed during shutdown")
	}
	return l.port.Close()
}
