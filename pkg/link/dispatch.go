package link

import "github.com/gouucp/guucp"

// processPacket dispatches a fully validated, in-order packet to its
// type-specific handler.
func (l *Link) processPacket(hdr guucp.Header, payload []byte) error {
	switch hdr.Type {
	case guucp.PacketData:
		l.recvPos += int64(len(payload))
		if l.onData != nil {
			l.onData(payload, nil, hdr.Channel, hdr.AckChan)
		}
		return nil

	case guucp.PacketSync:
		return l.handleSync(payload)

	case guucp.PacketAck:
		return nil // piggyback already applied by the caller

	case guucp.PacketNak:
		return l.handleNak(hdr.Seq)

	case guucp.PacketSpos:
		l.recvPos = decodePos4(payload)
		return nil

	case guucp.PacketClose:
		return l.handleClose()

	default:
		l.log.WithField("type", uint8(hdr.Type)).Debug("ignoring reserved packet type")
		return nil
	}
}

func (l *Link) handleSync(payload []byte) error {
	if len(payload) >= 3 {
		peerSize := int(payload[0])<<8 | int(payload[1])
		peerWindow := int(payload[2])
		if l.cfg.RemotePacketSize > 0 {
			l.remotePacketSize = l.cfg.RemotePacketSize
		} else {
			l.remotePacketSize = peerSize
		}
		if l.cfg.RemoteWindow > 0 {
			l.remoteWindow = l.cfg.RemoteWindow
		} else {
			l.remoteWindow = peerWindow
		}
		// The 12-bit length field caps what a packet can carry no
		// matter what the peer announces.
		if l.remotePacketSize > guucp.MaxPayload {
			l.remotePacketSize = guucp.MaxPayload
		}
	}
	l.syncComplete = true
	return nil
}

// handleNak retransmits the requested slot if it is still within the
// valid in-flight window.
func (l *Link) handleNak(seq uint8) error {
	l.stats.RemoteRejects++
	slot := l.sendBuf[seq]
	// Only sequences strictly between remoteAck and sendSeq are in
	// flight. A NAK outside that range (an idle peer probing for the
	// next sequence, or one delayed past a window wrap) must not
	// resurrect the stale packet occupying the slot.
	pos := guucp.SeqDiff(seq, l.remoteAck)
	if slot.used && pos > 0 && pos < guucp.SeqDiff(l.sendSeq, l.remoteAck) {
		hdr := slot.hdr
		hdr.AckSeq = l.recvSeq
		raw := encodePacket(hdr, slot.payload)
		l.sendBuf[seq].raw = raw
		l.sendBuf[seq].hdr = hdr
		l.stats.Resent++
		if err := l.writePort(raw); err != nil {
			return err
		}
	}
	return l.checkErrors()
}

// handleClose finishes the link: a locally initiated close exits
// cleanly, an unsolicited one is logged and still exits, since there
// is no protocol-level way to refuse a peer's CLOSE.
func (l *Link) handleClose() error {
	if !l.closing {
		l.log.Warn("received unexpected CLOSE from peer")
	}
	l.closing = true
	l.peerClosed = true
	return nil
}
