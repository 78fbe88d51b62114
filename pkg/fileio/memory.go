package fileio

import (
	"bytes"
	"fmt"
	"sync"
)

// Memory is an in-memory FileIO used by session tests so they do
// not depend on a real filesystem.
type Memory struct {
	mu    sync.Mutex
	Files map[string][]byte
	// FailWrite, when set, makes every Write on a RecvFile opened
	// after it is set fail, to exercise the CN5 reporting path.
	FailWrite bool
}

// NewMemory returns an empty in-memory filesystem.
func NewMemory() *Memory {
	return &Memory{Files: make(map[string][]byte)}
}

type memSendFile struct {
	r *bytes.Reader
	n int64
}

func (f *memSendFile) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *memSendFile) Close() error                { return nil }
func (f *memSendFile) Size() int64                 { return f.n }

func (m *Memory) OpenSend(path string, mode uint32) (SendFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Files[path]
	if !ok {
		return nil, fmt.Errorf("fileio: no such file: %s", path)
	}
	return &memSendFile{r: bytes.NewReader(data), n: int64(len(data))}, nil
}

type memRecvFile struct {
	m    *Memory
	buf  *bytes.Buffer
	fail bool
}

func (f *memRecvFile) Write(p []byte) (int, error) {
	if f.fail {
		return 0, fmt.Errorf("fileio: simulated write failure")
	}
	return f.buf.Write(p)
}

func (f *memRecvFile) Close() error { return nil }

func (f *memRecvFile) Seek(offset int64) error {
	cur := f.buf.Bytes()
	if int64(len(cur)) >= offset {
		f.buf = bytes.NewBuffer(append([]byte{}, cur[:offset]...))
		return nil
	}
	padded := append(cur, make([]byte, offset-int64(len(cur)))...)
	f.buf = bytes.NewBuffer(padded)
	return nil
}

func (m *Memory) OpenRecv(tempHint string, mode uint32) (RecvFile, error) {
	return &memRecvFile{m: m, buf: &bytes.Buffer{}, fail: m.FailWrite}, nil
}

func (m *Memory) Commit(tmp RecvFile, finalPath string) error {
	mf, ok := tmp.(*memRecvFile)
	if !ok {
		return fmt.Errorf("fileio: Commit called with foreign handle")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[finalPath] = append([]byte{}, mf.buf.Bytes()...)
	return nil
}

func (m *Memory) Discard(tmp RecvFile) error {
	_, ok := tmp.(*memRecvFile)
	if !ok {
		return fmt.Errorf("fileio: Discard called with foreign handle")
	}
	return nil
}
