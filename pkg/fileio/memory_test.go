package fileio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySendRoundTrip(t *testing.T) {
	m := NewMemory()
	m.Files["/a/b"] = []byte("hello world")

	f, err := m.OpenSend("/a/b", 0o644)
	require.NoError(t, err)
	assert.EqualValues(t, 11, f.Size())
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestMemoryRecvCommit(t *testing.T) {
	m := NewMemory()
	rf, err := m.OpenRecv("tmp", 0o644)
	require.NoError(t, err)
	_, err = rf.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(rf, "/dst/file"))
	assert.Equal(t, "payload", string(m.Files["/dst/file"]))
}

func TestMemoryRecvFailWrite(t *testing.T) {
	m := NewMemory()
	m.FailWrite = true
	rf, err := m.OpenRecv("tmp", 0o644)
	require.NoError(t, err)
	_, err = rf.Write([]byte("x"))
	assert.Error(t, err)
}

func TestMemorySeekPads(t *testing.T) {
	m := NewMemory()
	rf, err := m.OpenRecv("tmp", 0o644)
	require.NoError(t, err)
	require.NoError(t, rf.Seek(4))
	_, err = rf.Write([]byte("X"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(rf, "/dst/f"))
	assert.Equal(t, []byte{0, 0, 0, 0, 'X'}, m.Files["/dst/f"])
}
