package session

import (
	"time"

	"github.com/gouucp/guucp"
	"github.com/gouucp/guucp/pkg/config"
	"github.com/gouucp/guucp/pkg/fileio"
	"github.com/gouucp/guucp/pkg/link"
	log "github.com/sirupsen/logrus"
)

// Stats is the session-level traffic snapshot, combined with the
// link's counters for the metrics exporter and the CLI status output.
type Stats struct {
	Link          link.Stats
	SentBytes     int64
	ReceivedBytes int64
	Transfers     uint64
}

// Session drives one end of a transfer conversation over a Link. It is
// single-threaded and cooperative: all progress happens inside calls
// to Send/Receive/Exec/Serve/Hangup, which block on the link's wait
// loop. A Session never touches the filesystem directly, only through
// its FileIO collaborator.
type Session struct {
	link   *link.Link
	cfg    config.Config
	files  fileio.FileIO
	policy Policy
	log    *log.Entry

	// command reassembly and queue
	cmdQueue []string
	cmdBuf   []byte

	// active receive transfer
	recvFile   fileio.RecvFile
	recvOffset int64
	recvDone   bool
	recvErr    bool

	sentBytes     int64
	receivedBytes int64
	transfers     uint64
}

// New builds a Session over port in the given role (caller or called).
// The returned Session owns its Link; call Start to run the handshake.
func New(port guucp.Port, cfg config.Config, caller bool, files fileio.FileIO) *Session {
	s := &Session{
		cfg:    cfg,
		files:  files,
		policy: DefaultPolicy(),
		log:    log.WithField("component", "session"),
	}
	s.link = link.New(port, cfg, caller, s.onData)
	return s
}

// SetPolicy replaces the accept/refuse policy applied to inbound
// requests. Must be called before Serve.
func (s *Session) SetPolicy(p Policy) {
	s.policy = p
}

// Link exposes the underlying link, mainly for its Stats.
func (s *Session) Link() *link.Link {
	return s.link
}

// Stats returns a combined link+session counter snapshot.
func (s *Session) Stats() Stats {
	return Stats{
		Link:          s.link.Stats(),
		SentBytes:     s.sentBytes,
		ReceivedBytes: s.receivedBytes,
		Transfers:     s.transfers,
	}
}

// Start runs the link-layer SYNC handshake. Both peers must call it
// concurrently (each side's SYNC answers the other's).
func (s *Session) Start() error {
	return s.link.Start()
}

// Shutdown tears the link down without the hangup handshake. Prefer
// Hangup for a negotiated close; this is the abrupt path.
func (s *Session) Shutdown() error {
	return s.link.Shutdown()
}

// onData is the link's upcall: inbound payload either feeds the open
// receive file or is appended to the in-progress command string. A
// zero-length call ends the receive file; a command ends at its NUL
// byte, and zero-length calls on the command path are ignored.
func (s *Session) onData(first, second []byte, localChan, remoteChan uint8) {
	if s.recvFile != nil {
		s.ingestFileData(first, second)
		return
	}
	s.ingestCommandData(first, second)
}

func (s *Session) ingestFileData(first, second []byte) {
	n := len(first) + len(second)
	if n == 0 {
		s.recvDone = true
		return
	}
	// The link's receive position has already advanced past this
	// payload; subtracting the length recovers where it starts. A gap
	// against our own cursor means an SPOS repositioned the stream.
	start := s.link.RecvPos() - int64(n)
	if start != s.recvOffset {
		if err := s.recvFile.Seek(start); err != nil {
			s.log.WithError(err).Error("seek on receive file failed")
			s.recvErr = true
		}
		s.recvOffset = start
	}
	for _, span := range [][]byte{first, second} {
		if len(span) == 0 {
			continue
		}
		if !s.recvErr {
			if _, err := s.recvFile.Write(span); err != nil {
				s.log.WithError(err).Error("write to receive file failed")
				s.recvErr = true
			}
		}
		s.recvOffset += int64(len(span))
		s.receivedBytes += int64(len(span))
	}
}

func (s *Session) ingestCommandData(first, second []byte) {
	if len(first)+len(second) == 0 {
		return
	}
	for _, span := range [][]byte{first, second} {
		for _, b := range span {
			if b == 0 {
				s.cmdQueue = append(s.cmdQueue, string(s.cmdBuf))
				s.cmdBuf = nil
				continue
			}
			s.cmdBuf = append(s.cmdBuf, b)
		}
	}
}

// NextCommand blocks until a fully assembled command string is
// available and dequeues it.
func (s *Session) NextCommand(timeout time.Duration, retries int) (string, error) {
	for len(s.cmdQueue) == 0 {
		err := s.link.Wait(timeout, retries, func() bool { return len(s.cmdQueue) > 0 })
		if err != nil {
			return "", err
		}
	}
	cmd := s.cmdQueue[0]
	s.cmdQueue = s.cmdQueue[1:]
	return cmd, nil
}

// beginReceive arms the receive path: until finishReceive runs, every
// inbound DATA payload is appended to f instead of the command buffer.
func (s *Session) beginReceive(f fileio.RecvFile) {
	s.recvFile = f
	s.recvOffset = 0
	s.recvDone = false
	s.recvErr = false
}

// drainReceive pumps the link until the sender's zero-length
// end-of-file marker arrives.
func (s *Session) drainReceive() error {
	for !s.recvDone {
		err := s.link.Wait(s.cfg.Timeout, s.cfg.Retries, func() bool { return s.recvDone })
		if err != nil {
			return err
		}
	}
	return nil
}

// finishReceive completes the active receive transfer: commit the temp
// file and confirm with CY, or discard and report CN5 when the store
// or the final move failed.
func (s *Session) finishReceive(finalPath string) error {
	f := s.recvFile
	s.recvFile = nil
	s.transfers++
	if s.recvErr {
		if err := s.files.Discard(f); err != nil {
			s.log.WithError(err).Warn("discarding failed receive file")
		}
		return s.link.SendCmd(string(ReplyCN5), 0, 0)
	}
	if err := s.files.Commit(f, finalPath); err != nil {
		s.log.WithError(err).WithField("path", finalPath).Error("final move of received file failed")
		return s.link.SendCmd(string(ReplyCN5), 0, 0)
	}
	return s.link.SendCmd(string(ReplyCY), 0, 0)
}
