package session

import (
	"errors"
	"strings"

	"github.com/gouucp/guucp"
	log "github.com/sirupsen/logrus"
)

// Policy decides what a serving session does with inbound requests.
// Accept functions return the reply code plus whatever local detail an
// accepted request needs (destination path, source path, file mode).
type Policy struct {
	// AcceptSend vets an inbound S request. On SY, finalPath is where
	// the received file is committed.
	AcceptSend func(req SendRequest) (code ReplyCode, finalPath string)
	// AcceptRecv vets an inbound R request. On RY, path names the
	// local file to stream and mode is echoed in the reply.
	AcceptRecv func(req RecvRequest) (code ReplyCode, path string, mode uint32)
	// AcceptExec vets an inbound X request.
	AcceptExec func(req ExecRequest) ReplyCode
}

// DefaultPolicy accepts everything at the paths the peer named. Real
// deployments replace this with spool-directory and permission checks.
func DefaultPolicy() Policy {
	return Policy{
		AcceptSend: func(req SendRequest) (ReplyCode, string) {
			return ReplySY, req.To
		},
		AcceptRecv: func(req RecvRequest) (ReplyCode, string, uint32) {
			return ReplyRY, req.From, 0o644
		},
		AcceptExec: func(req ExecRequest) ReplyCode {
			return ReplyXY
		},
	}
}

// Serve runs the slave side of the session: read commands, dispatch
// them, and return once the peer hangs up (or the link dies).
func (s *Session) Serve() error {
	for {
		cmd, err := s.NextCommand(s.cfg.Timeout, s.cfg.Retries)
		if err != nil {
			if errors.Is(err, guucp.ErrShutdown) {
				return nil
			}
			return err
		}
		fields := strings.Fields(cmd)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "S":
			err = s.handleSendRequest(cmd)
		case "R":
			err = s.handleRecvRequest(cmd)
		case "X":
			err = s.handleExecRequest(cmd)
		case "H":
			return s.acceptHangup()
		default:
			s.log.WithField("command", cmd).Warn("ignoring unrecognized command")
		}
		if err != nil {
			return err
		}
	}
}

// handleSendRequest is the slave half of a send transfer: the peer
// wants to store a file here.
func (s *Session) handleSendRequest(cmd string) error {
	req, err := ParseSendRequest(cmd)
	if err != nil {
		s.log.WithError(err).Warn("malformed send request")
		return s.link.SendCmd(string(ReplySN), 0, 0)
	}
	lg := s.log.WithFields(log.Fields{"from": req.From, "to": req.To, "user": req.User})

	code, finalPath := s.policy.AcceptSend(req)
	if code != ReplySY {
		lg.WithField("reply", code).Info("refusing send request")
		return s.link.SendCmd(EncodeSendReply(code, 0), 0, 0)
	}
	f, err := s.files.OpenRecv(req.Temp, req.Mode)
	if err != nil {
		lg.WithError(err).Error("cannot create work file for receive")
		return s.link.SendCmd(string(ReplySN4), 0, 0)
	}

	s.beginReceive(f)
	if err := s.link.SendCmd(EncodeSendReply(ReplySY, req.Mode), 0, 0); err != nil {
		s.recvFile = nil
		_ = s.files.Discard(f)
		return err
	}
	lg.Info("accepting file")
	if err := s.drainReceive(); err != nil {
		s.recvFile = nil
		_ = s.files.Discard(f)
		return err
	}
	return s.finishReceive(finalPath)
}

// handleRecvRequest is the slave half of a receive transfer: the peer
// asked for a file stored here.
func (s *Session) handleRecvRequest(cmd string) error {
	req, err := ParseRecvRequest(cmd)
	if err != nil {
		s.log.WithError(err).Warn("malformed receive request")
		return s.link.SendCmd(string(ReplyRN), 0, 0)
	}
	lg := s.log.WithFields(log.Fields{"from": req.From, "user": req.User})

	code, path, mode := s.policy.AcceptRecv(req)
	if code != ReplyRY {
		lg.WithField("reply", code).Info("refusing receive request")
		return s.link.SendCmd(EncodeRecvReply(code, 0), 0, 0)
	}
	f, err := s.files.OpenSend(path, mode)
	if err != nil {
		lg.WithError(err).Info("requested file not available")
		return s.link.SendCmd(string(ReplyRN2), 0, 0)
	}
	defer f.Close()

	if req.Size >= 0 && f.Size() >= 0 && f.Size() > req.Size {
		lg.WithField("size", f.Size()).Info("file exceeds requested size limit")
		return s.link.SendCmd(string(ReplyRN6), 0, 0)
	}

	if err := s.link.SendCmd(EncodeRecvReply(ReplyRY, mode), 0, 0); err != nil {
		return err
	}
	lg.Info("sending requested file")
	if err := s.sendFileLoop(f); err != nil {
		return err
	}
	s.transfers++

	// The requester confirms storage with CY/CN5; either way the
	// transfer is over from this side.
	cmd, err = s.NextCommand(s.cfg.Timeout, s.cfg.Retries)
	if err != nil {
		return err
	}
	if ReplyCode(cmd) != ReplyCY {
		lg.WithField("reply", cmd).Warn("requester failed to store file")
	}
	return nil
}

// handleExecRequest answers an X request. Actual execution is the
// caller's business (wired through Policy); the session only speaks
// the grammar.
func (s *Session) handleExecRequest(cmd string) error {
	req, err := ParseExecRequest(cmd)
	if err != nil {
		s.log.WithError(err).Warn("malformed execution request")
		return s.link.SendCmd(string(ReplyXN), 0, 0)
	}
	code := s.policy.AcceptExec(req)
	s.log.WithFields(log.Fields{"from": req.From, "reply": code}).Info("answering execution request")
	return s.link.SendCmd(string(code), 0, 0)
}

// acceptHangup runs the acceptor half of the three-way hangup
// handshake: answer HY, wait for the requester's HY, echo the final
// HY, then shut the link down.
func (s *Session) acceptHangup() error {
	if err := s.link.SendCmd(string(ReplyHY), 0, 0); err != nil {
		return err
	}
	cmd, err := s.NextCommand(s.cfg.Timeout, s.cfg.Retries)
	if err == nil && ReplyCode(cmd) != ReplyHY {
		s.log.WithField("command", cmd).Warn("expected hangup acknowledgement")
	}
	if err := s.link.SendCmd(string(ReplyHY), 0, 0); err != nil {
		return err
	}
	return s.link.Shutdown()
}
