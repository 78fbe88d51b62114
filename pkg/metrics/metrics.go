// Package metrics exports the link error taxonomy and session
// transfer counters as Prometheus metrics, so a long-running transfer
// daemon can be watched without a status utility.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gouucp/guucp/pkg/session"
)

type counterDesc struct {
	desc  *prometheus.Desc
	value func(session.Stats) float64
}

// SessionCollector is a prometheus.Collector over a Session's counter
// snapshot. Register it against the default registry (or a private
// one) and scrape as usual.
type SessionCollector struct {
	stats    func() session.Stats
	counters []counterDesc
}

// NewSessionCollector builds a collector reading counters through
// stats. constLabels identify the session (peer name, device) and are
// attached to every metric.
func NewSessionCollector(stats func() session.Stats, constLabels prometheus.Labels) *SessionCollector {
	counter := func(name, help string, value func(session.Stats) float64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc("guucp_"+name, help, nil, constLabels),
			value: value,
		}
	}
	return &SessionCollector{
		stats: stats,
		counters: []counterDesc{
			counter("link_bad_header_total", "Packets rejected for a failed header check or reflected caller flag.",
				func(s session.Stats) float64 { return float64(s.Link.BadHeader) }),
			counter("link_bad_checksum_total", "Packets rejected for a payload CRC mismatch.",
				func(s session.Stats) float64 { return float64(s.Link.BadChecksum) }),
			counter("link_bad_order_total", "Packets dropped for a sequence number outside the receive window.",
				func(s session.Stats) float64 { return float64(s.Link.BadOrder) }),
			counter("link_remote_rejects_total", "NAK packets received from the peer.",
				func(s session.Stats) float64 { return float64(s.Link.RemoteRejects) }),
			counter("link_sent_packets_total", "DATA/SPOS packets transmitted.",
				func(s session.Stats) float64 { return float64(s.Link.Sent) }),
			counter("link_received_packets_total", "Valid packets received.",
				func(s session.Stats) float64 { return float64(s.Link.Received) }),
			counter("link_resent_packets_total", "Packets retransmitted after NAK or timeout.",
				func(s session.Stats) float64 { return float64(s.Link.Resent) }),
			counter("session_sent_bytes_total", "File payload bytes sent to the peer.",
				func(s session.Stats) float64 { return float64(s.SentBytes) }),
			counter("session_received_bytes_total", "File payload bytes received from the peer.",
				func(s session.Stats) float64 { return float64(s.ReceivedBytes) }),
			counter("session_transfers_total", "File transfers carried to completion on this session.",
				func(s session.Stats) float64 { return float64(s.Transfers) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *SessionCollector) Describe(descs chan<- *prometheus.Desc) {
	for _, m := range c.counters {
		descs <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *SessionCollector) Collect(metrics chan<- prometheus.Metric) {
	snapshot := c.stats()
	for _, m := range c.counters {
		metrics <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, m.value(snapshot))
	}
}
