package link

import (
	"sync"
	"testing"
	"time"

	"github.com/gouucp/guucp"
	"github.com/gouucp/guucp/pkg/config"
	"github.com/gouucp/guucp/pkg/port/loopback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Timeout = 200 * time.Millisecond
	cfg.SyncTimeout = 200 * time.Millisecond
	cfg.Retries = 10
	cfg.SyncRetries = 10
	cfg.PacketSize = 64
	cfg.Window = 4
	return cfg
}

func TestSyncHandshake(t *testing.T) {
	pa, pb := loopback.Pair()
	var mu sync.Mutex
	var received [][]byte

	master := New(pa, testConfig(), true, func(first, second []byte, lc, rc uint8) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, append(append([]byte{}, first...), second...))
	})
	slave := New(pb, testConfig(), false, func(first, second []byte, lc, rc uint8) {})

	var wg sync.WaitGroup
	wg.Add(2)
	var errM, errS error
	go func() { defer wg.Done(); errM = master.Start() }()
	go func() { defer wg.Done(); errS = slave.Start() }()
	wg.Wait()

	require.NoError(t, errM)
	require.NoError(t, errS)
	assert.Equal(t, 64, master.remotePacketSize)
	assert.Equal(t, 4, master.remoteWindow)
}

func TestSendDataDelivers(t *testing.T) {
	pa, pb := loopback.Pair()
	var mu sync.Mutex
	var got []byte
	done := make(chan struct{}, 1)

	slave := New(pb, testConfig(), false, func(first, second []byte, lc, rc uint8) {
		mu.Lock()
		got = append(got, first...)
		got = append(got, second...)
		mu.Unlock()
		if len(first)+len(second) == 0 {
			done <- struct{}{}
		}
	})
	master := New(pa, testConfig(), true, func(first, second []byte, lc, rc uint8) {})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = master.Start() }()
	go func() { defer wg.Done(); _ = slave.Start() }()
	wg.Wait()

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				_ = slave.waitForPacket(20*time.Millisecond, 1, func() bool { return false })
			}
		}
	}()
	defer close(stop)

	payload := []byte("hello world, this is a test payload")
	require.NoError(t, master.SendData(payload, 0, 0, 0, false))
	require.NoError(t, master.SendData(nil, 0, 0, 0, false))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, payload, got)
}

// corruptPort flips one bit in every Nth inbound byte, leaving the
// outbound direction clean.
type corruptPort struct {
	guucp.Port
	every   int
	counter int
}

func (c *corruptPort) IO(send []byte, recv []byte, timeout time.Duration) (int, int, error) {
	sent, n, err := c.Port.IO(send, recv, timeout)
	c.flip(recv[:n])
	return sent, n, err
}

func (c *corruptPort) Read(recv []byte, timeout time.Duration) (int, error) {
	n, err := c.Port.Read(recv, timeout)
	c.flip(recv[:n])
	return n, err
}

func (c *corruptPort) flip(buf []byte) {
	for i := range buf {
		c.counter++
		if c.counter%c.every == 0 {
			buf[i] ^= 0x01
		}
	}
}

func TestTransferSurvivesCorruption(t *testing.T) {
	pa, pb := loopback.Pair()
	var mu sync.Mutex
	var got []byte

	const packets = 50
	const packetLen = 64
	want := make([]byte, packets*packetLen)
	for i := range want {
		want[i] = byte(i * 3)
	}

	slave := New(&corruptPort{Port: pb, every: 300}, testConfig(), false, func(first, second []byte, lc, rc uint8) {
		mu.Lock()
		got = append(got, first...)
		got = append(got, second...)
		mu.Unlock()
	})
	master := New(pa, testConfig(), true, func(first, second []byte, lc, rc uint8) {})

	var wg sync.WaitGroup
	wg.Add(2)
	var errM, errS error
	go func() { defer wg.Done(); errM = master.Start() }()
	go func() { defer wg.Done(); errS = slave.Start() }()
	wg.Wait()
	require.NoError(t, errM)
	require.NoError(t, errS)

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- slave.waitForPacket(200*time.Millisecond, 100, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == len(want)
		})
	}()

	for i := 0; i < packets; i++ {
		require.NoError(t, master.SendData(want[i*packetLen:(i+1)*packetLen], 0, 0, 0, false))
	}
	// Keep servicing the sender's link so NAKs and timeouts for the
	// final packets still lead to retransmission.
	require.NoError(t, master.waitForPacket(200*time.Millisecond, 100, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}))

	select {
	case err := <-recvErr:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("transfer did not complete over corrupted channel")
	}

	assert.Equal(t, want, got, "delivered data must be byte-identical despite corruption")
	stats := slave.Stats()
	assert.Greater(t, stats.BadChecksum+stats.BadHeader, uint64(0), "corruption must have been detected")
	assert.Greater(t, master.Stats().Resent, uint64(0), "corrupted packets must have been retransmitted")
}

func TestCleanTransferPacketCounts(t *testing.T) {
	pa, pb := loopback.Pair()
	var mu sync.Mutex
	var got []byte

	// Bytes 0..255 repeated to fill 131072 bytes, 1024 per packet: 128
	// DATA packets plus the zero-length end marker.
	cfg := testConfig()
	cfg.PacketSize = 1024
	cfg.Window = 16
	want := make([]byte, 131072)
	for i := range want {
		want[i] = byte(i)
	}

	var sawEOF bool
	slave := New(pb, cfg, false, func(first, second []byte, lc, rc uint8) {
		mu.Lock()
		got = append(got, first...)
		got = append(got, second...)
		if len(first)+len(second) == 0 {
			sawEOF = true
		}
		mu.Unlock()
	})
	master := New(pa, cfg, true, func(first, second []byte, lc, rc uint8) {})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = master.Start() }()
	go func() { defer wg.Done(); _ = slave.Start() }()
	wg.Wait()

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- slave.waitForPacket(200*time.Millisecond, 100, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return sawEOF
		})
	}()

	for off := 0; off < len(want); off += cfg.PacketSize {
		require.NoError(t, master.SendData(want[off:off+cfg.PacketSize], 0, 0, 0, false))
	}
	require.NoError(t, master.SendData(nil, 0, 0, 0, false))

	select {
	case err := <-recvErr:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("transfer did not complete")
	}

	assert.Equal(t, want, got)
	assert.Equal(t, uint64(129), master.Stats().Sent)
	assert.Equal(t, uint64(0), master.Stats().Resent)
}
