package port

import (
	"fmt"
	"time"

	"github.com/gouucp/guucp"
	"golang.org/x/sys/unix"
)

// FD adapts a raw file descriptor (serial line, pty master) to the
// guucp.Port contract using poll for read timeouts. The descriptor
// should be open in non-blocking mode.
type FD struct {
	Fd   int
	Name string
}

// IO writes send fully, then drains whatever inbound bytes are already
// waiting, without blocking for more.
func (p *FD) IO(send []byte, recv []byte, timeout time.Duration) (int, int, error) {
	sent := 0
	deadline := time.Now().Add(timeout)
	for sent < len(send) {
		n, err := unix.Write(p.Fd, send[sent:])
		if n > 0 {
			sent += n
			continue
		}
		if err == unix.EAGAIN || err == unix.EINTR {
			if time.Now().After(deadline) {
				return sent, 0, fmt.Errorf("port %s: write stalled: %w", p.Name, guucp.ErrTimeout)
			}
			if perr := p.pollOut(deadline); perr != nil {
				return sent, 0, perr
			}
			continue
		}
		if err != nil {
			return sent, 0, fmt.Errorf("port %s: write: %w", p.Name, err)
		}
	}
	received, err := p.readAvailable(recv)
	return sent, received, err
}

// Read blocks up to timeout for at least one byte.
func (p *FD) Read(recv []byte, timeout time.Duration) (int, error) {
	if len(recv) == 0 {
		return 0, nil
	}
	fds := []unix.PollFd{{Fd: int32(p.Fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil && err != unix.EINTR {
		return 0, fmt.Errorf("port %s: poll: %w", p.Name, err)
	}
	if n == 0 {
		return 0, guucp.ErrTimeout
	}
	return p.readAvailable(recv)
}

// Close releases the descriptor. Calling it again is a no-op.
func (p *FD) Close() error {
	if p.Fd < 0 {
		return nil
	}
	err := unix.Close(p.Fd)
	p.Fd = -1
	return err
}

func (p *FD) readAvailable(recv []byte) (int, error) {
	if len(recv) == 0 {
		return 0, nil
	}
	n, err := unix.Read(p.Fd, recv)
	if n > 0 {
		return n, nil
	}
	if err == unix.EAGAIN || err == unix.EINTR || err == nil {
		return 0, nil
	}
	return 0, fmt.Errorf("port %s: read: %w", p.Name, err)
}

func (p *FD) pollOut(deadline time.Time) error {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil
	}
	fds := []unix.PollFd{{Fd: int32(p.Fd), Events: unix.POLLOUT}}
	_, err := unix.Poll(fds, int(remaining/time.Millisecond)+1)
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("port %s: poll: %w", p.Name, err)
	}
	return nil
}
