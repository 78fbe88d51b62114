package fileio

import (
	"fmt"
	"os"
	"path/filepath"
)

// Local is the default local-filesystem FileIO implementation, used
// by the CLI.
type Local struct {
	// SpoolDir is where temp files for in-progress receives are
	// created before Commit moves them into place.
	SpoolDir string
}

// NewLocal returns a Local adaptor rooted at spoolDir, creating it if
// necessary.
func NewLocal(spoolDir string) (*Local, error) {
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("fileio: create spool dir: %w", err)
	}
	return &Local{SpoolDir: spoolDir}, nil
}

type localSendFile struct {
	*os.File
	size int64
}

func (f *localSendFile) Size() int64 { return f.size }

// OpenSend implements FileIO.
func (l *Local) OpenSend(path string, mode uint32) (SendFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	size := int64(-1)
	if err == nil {
		size = info.Size()
	}
	return &localSendFile{File: f, size: size}, nil
}

type localRecvFile struct {
	*os.File
	path string
}

func (f *localRecvFile) Seek(offset int64) error {
	_, err := f.File.Seek(offset, 0)
	return err
}

// OpenRecv implements FileIO. tempHint is sanitized to a base name and
// created inside SpoolDir with a unique suffix so concurrent transfers
// never collide.
func (l *Local) OpenRecv(tempHint string, mode uint32) (RecvFile, error) {
	base := filepath.Base(tempHint)
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "guucp-recv"
	}
	pattern := base + ".*"
	f, err := os.CreateTemp(l.SpoolDir, pattern)
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(os.FileMode(mode & 0o777)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &localRecvFile{File: f, path: f.Name()}, nil
}

// Commit implements FileIO: it closes the temp file and renames it
// into place, creating any missing parent directories.
func (l *Local) Commit(tmp RecvFile, finalPath string) error {
	lf, ok := tmp.(*localRecvFile)
	if !ok {
		return fmt.Errorf("fileio: Commit called with foreign handle")
	}
	if err := lf.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return err
	}
	return os.Rename(lf.path, finalPath)
}

// Discard implements FileIO.
func (l *Local) Discard(tmp RecvFile) error {
	lf, ok := tmp.(*localRecvFile)
	if !ok {
		return fmt.Errorf("fileio: Discard called with foreign handle")
	}
	lf.Close()
	return os.Remove(lf.path)
}
