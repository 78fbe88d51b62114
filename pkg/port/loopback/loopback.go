// Package loopback provides an in-memory duplex guucp.Port pair for
// tests.
package loopback

import (
	"time"

	"github.com/gouucp/guucp"
)

// Pair returns two connected Ports: bytes written to a arrive readable
// from b, and vice versa.
func Pair() (guucp.Port, guucp.Port) {
	ab := make(chan byte, 1<<20)
	ba := make(chan byte, 1<<20)
	a := &endpoint{send: ab, recv: ba}
	b := &endpoint{send: ba, recv: ab}
	return a, b
}

type endpoint struct {
	send chan byte
	recv chan byte
}

// IO implements guucp.Port: write send synchronously, then drain
// whatever is already waiting without blocking.
func (e *endpoint) IO(send []byte, recv []byte, timeout time.Duration) (int, int, error) {
	for _, b := range send {
		e.send <- b
	}
	n := 0
	for n < len(recv) {
		select {
		case b := <-e.recv:
			recv[n] = b
			n++
		default:
			return len(send), n, nil
		}
	}
	return len(send), n, nil
}

// Read implements guucp.Port.
func (e *endpoint) Read(recv []byte, timeout time.Duration) (int, error) {
	if len(recv) == 0 {
		return 0, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b := <-e.recv:
		recv[0] = b
		n := 1
		for n < len(recv) {
			select {
			case b := <-e.recv:
				recv[n] = b
				n++
			default:
				return n, nil
			}
		}
		return n, nil
	case <-timer.C:
		return 0, guucp.ErrTimeout
	}
}

// Close implements guucp.Port. It is a no-op: the channels are
// garbage collected once both ends drop their reference.
func (e *endpoint) Close() error {
	return nil
}
