package guucp

import "time"

// Port is a raw, full-duplex byte stream such as a serial line, a
// modem, or a pseudo-terminal. The link layer never opens, dials, or
// configures a port itself -- it is handed one that is already
// connected.
//
// Implementations live under pkg/port/...; the serial and pty
// transports register themselves with pkg/port's registry, while the
// in-memory loopback pair is constructed directly.
type Port interface {
	// IO performs a single combined send-and-receive round: it writes
	// send (if non-empty) and drains whatever inbound bytes are
	// already available into recv, without waiting for more. timeout
	// bounds the write side on transports that can stall. It returns
	// the number of bytes written and the number of bytes read; a
	// short read is not an error.
	IO(send []byte, recv []byte, timeout time.Duration) (sent int, received int, err error)

	// Read blocks up to timeout for at least one byte and returns how
	// many bytes of recv were filled.
	Read(recv []byte, timeout time.Duration) (int, error)

	// Close releases the underlying transport. Idempotent.
	Close() error
}
