package guucp

import "errors"

// Sentinel errors shared by the link and session layers.
var (
	ErrTimeout        = errors.New("timed out waiting for peer")
	ErrShutdown       = errors.New("link is shutting down")
	ErrBadHeader      = errors.New("bad packet header check")
	ErrBadChecksum    = errors.New("bad payload checksum")
	ErrBadOrder       = errors.New("sequence number outside receive window")
	ErrCallerMismatch = errors.New("caller flag does not match local role")
	ErrErrorBudget    = errors.New("link error budget exceeded")
)
