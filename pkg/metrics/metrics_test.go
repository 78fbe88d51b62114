package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gouucp/guucp/pkg/link"
	"github.com/gouucp/guucp/pkg/session"
)

func TestCollectorEmitsAllCounters(t *testing.T) {
	c := NewSessionCollector(func() session.Stats {
		return session.Stats{
			Link:      link.Stats{Sent: 129, Received: 130, BadChecksum: 2},
			SentBytes: 131072,
			Transfers: 1,
		}
	}, prometheus.Labels{"channel": "test"})

	descs := make(chan *prometheus.Desc, 32)
	c.Describe(descs)
	close(descs)
	var names []string
	for d := range descs {
		names = append(names, d.String())
	}
	assert.Len(t, names, 10)
	joined := strings.Join(names, "\n")
	for _, want := range []string{
		"guucp_link_sent_packets_total",
		"guucp_link_bad_checksum_total",
		"guucp_session_sent_bytes_total",
		"guucp_session_transfers_total",
	} {
		assert.Contains(t, joined, want)
	}

	metrics := make(chan prometheus.Metric, 32)
	c.Collect(metrics)
	close(metrics)
	count := 0
	for range metrics {
		count++
	}
	require.Equal(t, 10, count)
}

func TestCollectorRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewSessionCollector(func() session.Stats { return session.Stats{} }, nil)
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 10)
}
