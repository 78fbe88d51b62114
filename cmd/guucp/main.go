package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gouucp/guucp/pkg/config"
	"github.com/gouucp/guucp/pkg/fileio"
	"github.com/gouucp/guucp/pkg/metrics"
	"github.com/gouucp/guucp/pkg/port"
	_ "github.com/gouucp/guucp/pkg/port/pty"
	_ "github.com/gouucp/guucp/pkg/port/serial"
	"github.com/gouucp/guucp/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	transport := flag.String("t", "serial", "transport to use: serial, pty")
	channel := flag.String("d", "/dev/ttyS0@9600", "transport channel, e.g. /dev/ttyS0@19200")
	configPath := flag.String("c", "", "protocol parameter file (INI)")
	spoolDir := flag.String("spool", "/var/spool/guucp", "spool directory for in-progress receives")
	userName := flag.String("u", "uucp", "user name placed in transfer requests")
	answer := flag.Bool("answer", false, "run as the called side: serve inbound requests")
	sendSpec := flag.String("send", "", "send a file: local-path:remote-path")
	recvSpec := flag.String("recv", "", "fetch a file: remote-path:local-path")
	metricsAddr := flag.String("metrics", "", "expose Prometheus metrics on this address, e.g. :9600")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("cannot load protocol parameters")
		}
	}

	p, err := port.Open(*transport, *channel)
	if err != nil {
		log.WithError(err).Fatal("cannot open transport")
	}

	files, err := fileio.NewLocal(*spoolDir)
	if err != nil {
		log.WithError(err).Fatal("cannot prepare spool directory")
	}

	sess := session.New(p, cfg, !*answer, files)

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewSessionCollector(sess.Stats, prometheus.Labels{
			"transport": *transport,
			"channel":   *channel,
		}))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.WithField("addr", *metricsAddr).Info("serving metrics")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	if err := sess.Start(); err != nil {
		log.WithError(err).Fatal("handshake with peer failed")
	}

	if *answer {
		if err := sess.Serve(); err != nil {
			log.WithError(err).Fatal("session ended with error")
		}
		logStats(sess)
		return
	}

	ok := true
	if *sendSpec != "" {
		local, remote, err := splitSpec(*sendSpec)
		if err != nil {
			log.WithError(err).Fatal("bad -send argument")
		}
		dec, err := sess.Send(session.SendRequest{
			From: local, To: remote, User: *userName,
			Temp: fmt.Sprintf("D.%s", *userName), Mode: 0o644, Size: -1,
		})
		ok = reportDecision("send", dec, err) && ok
	}
	if *recvSpec != "" {
		remote, local, err := splitSpec(*recvSpec)
		if err != nil {
			log.WithError(err).Fatal("bad -recv argument")
		}
		dec, err := sess.Receive(session.RecvRequest{
			From: remote, To: local, User: *userName, Size: -1,
		}, local)
		ok = reportDecision("receive", dec, err) && ok
	}

	if err := sess.Hangup(); err != nil {
		log.WithError(err).Warn("hangup did not complete cleanly")
	}
	logStats(sess)
	if !ok {
		os.Exit(1)
	}
}

func splitSpec(spec string) (string, string, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected from:to, got %q", spec)
	}
	return parts[0], parts[1], nil
}

func reportDecision(op string, dec session.WorkDecision, err error) bool {
	if err != nil {
		log.WithError(err).Errorf("%s failed", op)
		return false
	}
	switch dec {
	case session.WorkDone:
		return true
	case session.WorkRetry:
		log.Warnf("%s refused, retriable later", op)
	default:
		log.Errorf("%s refused permanently", op)
	}
	return false
}

func logStats(sess *session.Session) {
	st := sess.Stats()
	log.WithFields(log.Fields{
		"sent_packets":     st.Link.Sent,
		"received_packets": st.Link.Received,
		"resent_packets":   st.Link.Resent,
		"bad_header":       st.Link.BadHeader,
		"bad_checksum":     st.Link.BadChecksum,
		"bad_order":        st.Link.BadOrder,
		"remote_rejects":   st.Link.RemoteRejects,
		"sent_bytes":       st.SentBytes,
		"received_bytes":   st.ReceivedBytes,
	}).Info("session finished")
}
