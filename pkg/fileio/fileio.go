// Package fileio is the external file-I/O collaborator: the
// session layer never touches the filesystem directly, only through
// this narrow interface, so tests can substitute an in-memory
// implementation.
package fileio

import "io"

// SendFile is an open handle for reading bytes out to the peer.
type SendFile interface {
	io.ReadCloser
	// Size returns the file's total size in bytes, or -1 if unknown.
	Size() int64
}

// RecvFile is an open handle for writing bytes received from the peer.
type RecvFile interface {
	io.WriteCloser
	// Seek repositions the write cursor, used when an SPOS packet
	// arrives.
	Seek(offset int64) error
}

// FileIO is the collaborator the session layer uses to turn a
// transfer request into real file operations.
type FileIO interface {
	// OpenSend opens path for reading as the source of a send
	// transfer. mode is the requested Unix permission bits (parsed
	// from the command grammar's octal mode field).
	OpenSend(path string, mode uint32) (SendFile, error)

	// OpenRecv opens a temporary destination for a receive transfer.
	// tempHint is the peer-supplied temp name from the grammar; the
	// implementation is free to use its own naming as long as Commit
	// later makes the bytes visible at finalPath.
	OpenRecv(tempHint string, mode uint32) (RecvFile, error)

	// Commit moves a successfully received temp file into its final
	// public location. Returning an error here is what produces a
	// CN5 reply.
	Commit(tmp RecvFile, finalPath string) error

	// Discard removes a partially received temp file after a failed
	// or abandoned transfer.
	Discard(tmp RecvFile) error
}
