package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
)

// WorkDecision tells the caller's work queue what to do with the work
// record behind a transfer request after the peer has answered it.
type WorkDecision int

const (
	// WorkDone means the transfer completed (or the request was
	// accepted and carried out); remove the work record.
	WorkDone WorkDecision = iota
	// WorkRetry means the peer refused for a transient reason (SN4,
	// SN6, RN6, CN5); keep the work record for a later attempt.
	WorkRetry
	// WorkDiscard means the refusal is permanent; drop the record.
	WorkDiscard
)

// WorkQueue is the optional hook a spool/queue owner can wire in to
// have retry/discard decisions applied for it. The session never
// stores work records itself.
type WorkQueue interface {
	Retry(id string)
	Discard(id string)
}

// ErrHangupDenied is returned by Hangup when the peer answers HN.
var ErrHangupDenied = errors.New("session: peer denied hangup request")

// Apply forwards a decision for work item id to q. A nil q is a no-op.
func (d WorkDecision) Apply(q WorkQueue, id string) {
	if q == nil {
		return
	}
	switch d {
	case WorkRetry:
		q.Retry(id)
	default:
		q.Discard(id)
	}
}

// Send runs a master-side send transfer: request with S, stream the
// local file named by req.From on acceptance, and wait for the
// receiver's CY/CN5 confirmation. The returned WorkDecision reports
// whether the underlying work record should be kept or dropped.
func (s *Session) Send(req SendRequest) (WorkDecision, error) {
	id := xid.New().String()
	lg := s.log.WithFields(log.Fields{"transfer": id, "from": req.From, "to": req.To})

	f, err := s.files.OpenSend(req.From, req.Mode)
	if err != nil {
		lg.WithError(err).Error("cannot open local file for sending")
		return WorkDiscard, nil
	}
	defer f.Close()

	if err := s.link.SendCmd(EncodeSendRequest(req), 0, 0); err != nil {
		return WorkRetry, err
	}
	code, _, err := s.awaitReply(lg)
	if err != nil {
		return WorkRetry, err
	}
	if code != ReplySY {
		return s.handleReject(lg, code)
	}

	lg.Info("send accepted, transferring")
	if err := s.sendFileLoop(f); err != nil {
		return WorkRetry, err
	}
	s.transfers++

	code, _, err = s.awaitReply(lg)
	if err != nil {
		return WorkRetry, err
	}
	switch code {
	case ReplyCY:
		lg.WithField("bytes", s.sentBytes).Info("transfer confirmed by receiver")
		return WorkDone, nil
	case ReplyCN5:
		lg.Warn("receiver could not store file, will retry")
		return WorkRetry, nil
	default:
		return WorkDiscard, fmt.Errorf("session: unexpected confirmation %q", code)
	}
}

// Receive runs a master-side receive transfer: request the remote file
// req.From with R, write accepted data to destPath, and confirm.
func (s *Session) Receive(req RecvRequest, destPath string) (WorkDecision, error) {
	id := xid.New().String()
	lg := s.log.WithFields(log.Fields{"transfer": id, "from": req.From, "to": destPath})

	if err := s.link.SendCmd(EncodeRecvRequest(req), 0, 0); err != nil {
		return WorkRetry, err
	}
	code, mode, err := s.awaitReply(lg)
	if err != nil {
		return WorkRetry, err
	}
	if code != ReplyRY {
		return s.handleReject(lg, code)
	}
	if mode == 0 {
		mode = 0o644
	}

	f, err := s.files.OpenRecv(destPath, mode)
	if err != nil {
		// Accepted but nowhere to put it. Keep draining so the link
		// survives, then report the store failure.
		lg.WithError(err).Error("cannot create local receive file")
		s.beginReceive(discardFile{})
		s.recvErr = true
		if derr := s.drainReceive(); derr != nil {
			return WorkRetry, derr
		}
		s.recvFile = nil
		if serr := s.link.SendCmd(string(ReplyCN5), 0, 0); serr != nil {
			return WorkRetry, serr
		}
		return WorkRetry, nil
	}

	lg.Info("receive accepted, transferring")
	s.beginReceive(f)
	if err := s.drainReceive(); err != nil {
		return WorkRetry, err
	}
	if err := s.finishReceive(destPath); err != nil {
		return WorkRetry, err
	}
	lg.WithField("bytes", s.receivedBytes).Info("transfer complete")
	return WorkDone, nil
}

// Exec runs a master-side execution request (X command).
func (s *Session) Exec(req ExecRequest) (WorkDecision, error) {
	lg := s.log.WithFields(log.Fields{"transfer": xid.New().String(), "exec": req.From})
	if err := s.link.SendCmd(EncodeExecRequest(req), 0, 0); err != nil {
		return WorkRetry, err
	}
	code, _, err := s.awaitReply(lg)
	if err != nil {
		return WorkRetry, err
	}
	if code == ReplyXY {
		lg.Info("execution request accepted")
		return WorkDone, nil
	}
	return s.handleReject(lg, code)
}

// Hangup runs the requester half of the three-way hangup handshake
// (H, HY back, HY, final HY), then shuts the link down.
func (s *Session) Hangup() error {
	if err := s.link.SendCmd(string(ReplyH), 0, 0); err != nil {
		return err
	}
	cmd, err := s.NextCommand(s.cfg.Timeout, s.cfg.Retries)
	if err != nil {
		return err
	}
	if ReplyCode(cmd) == ReplyHN {
		s.log.Info("peer denied hangup, session continues")
		return ErrHangupDenied
	}
	if ReplyCode(cmd) != ReplyHY {
		return fmt.Errorf("session: unexpected hangup reply %q", cmd)
	}
	if err := s.link.SendCmd(string(ReplyHY), 0, 0); err != nil {
		return err
	}
	// Final HY from the peer. A timeout here is tolerable: the peer
	// may already have dropped the line.
	if _, err := s.NextCommand(s.cfg.Timeout, 1); err != nil {
		s.log.WithError(err).Debug("no final hangup acknowledgement, closing anyway")
	}
	return s.link.Shutdown()
}

// sendFileLoop streams f through the link in packet-size chunks,
// passing the running file offset so the link can interpose SPOS when
// positions diverge, and ends with the zero-length end-of-file marker.
func (s *Session) sendFileLoop(f io.Reader) error {
	var offset int64
	for {
		buf := s.link.GetSpace()
		n, rerr := f.Read(buf)
		if n > 0 {
			if err := s.link.SendData(buf[:n], 0, 0, offset, true); err != nil {
				return err
			}
			offset += int64(n)
			s.sentBytes += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			// No protocol-level way to abort a send mid-transfer;
			// the link has to come down.
			return fmt.Errorf("session: read from send file: %w", rerr)
		}
		if n == 0 {
			break
		}
	}
	return s.link.SendData(nil, 0, 0, offset, true)
}

// awaitReply reads the next command and parses it as a reply. A stray
// hangup acknowledgement mid-conversation is logged and skipped.
func (s *Session) awaitReply(lg *log.Entry) (ReplyCode, uint32, error) {
	for {
		cmd, err := s.NextCommand(s.cfg.Timeout, s.cfg.Retries)
		if err != nil {
			return "", 0, err
		}
		code, mode, perr := ParseReply(cmd)
		if perr != nil {
			return "", 0, perr
		}
		if code == ReplyHY {
			lg.Info("Got hangup reply as master")
			continue
		}
		return code, mode, nil
	}
}

// handleReject maps a negative reply onto a work-queue decision,
// logging the refusal the way the reply code describes it.
func (s *Session) handleReject(lg *log.Entry, code ReplyCode) (WorkDecision, error) {
	switch code {
	case ReplySN2:
		lg.Error("remote permission denied")
	case ReplySN4:
		lg.Warn("remote cannot create work file, will retry")
	case ReplySN6, ReplyRN6:
		lg.Warn("file too big for remote, will retry")
	case ReplyRN2:
		lg.Error("no such file on remote")
	case ReplySN, ReplyRN, ReplyXN:
		lg.Error("request refused by remote")
	default:
		return WorkDiscard, fmt.Errorf("session: unexpected reply %q", code)
	}
	if code.Retriable() {
		return WorkRetry, nil
	}
	return WorkDiscard, nil
}

// discardFile is a RecvFile sink used when data must be drained but
// cannot be stored.
type discardFile struct{}

func (discardFile) Write(p []byte) (int, error) { return len(p), nil }
func (discardFile) Close() error                { return nil }
func (discardFile) Seek(int64) error            { return nil }
