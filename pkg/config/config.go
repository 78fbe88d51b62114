// Package config parses the link and session protocol parameters
// from an INI file.
package config

import (
	"time"

	"github.com/gouucp/guucp"
	"gopkg.in/ini.v1"
)

// Config holds every tunable protocol parameter, with the
// package-level defaults pre-applied.
type Config struct {
	PacketSize       int
	Window           int
	RemotePacketSize int // 0 == auto, learned from peer SYNC
	RemoteWindow     int // 0 == auto, learned from peer SYNC
	SyncTimeout      time.Duration
	SyncRetries      int
	Timeout          time.Duration
	Retries          int
	MaxErrors        int
	ErrorDecay       int
}

// Default returns the stock parameter set.
func Default() Config {
	return Config{
		PacketSize:       guucp.DefaultPacketSize,
		Window:           guucp.DefaultWindow,
		RemotePacketSize: guucp.DefaultRemotePacketSize,
		RemoteWindow:     guucp.DefaultRemoteWindow,
		SyncTimeout:      guucp.DefaultSyncTimeoutSec * time.Second,
		SyncRetries:      guucp.DefaultSyncRetries,
		Timeout:          guucp.DefaultTimeoutSec * time.Second,
		Retries:          guucp.DefaultRetries,
		MaxErrors:        guucp.DefaultMaxErrors,
		ErrorDecay:       guucp.DefaultErrorDecay,
	}
}

// section name protocol parameters are read from.
const sectionName = "protocol"

// Load reads protocol parameters from an INI file at path, overlaying
// them on top of Default(). A missing key keeps its default value; a
// missing file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	file, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}
	return applySection(cfg, file.Section(sectionName)), nil
}

// LoadBytes behaves like Load but reads from an in-memory INI document,
// useful for tests and for embedding defaults in the CLI.
func LoadBytes(raw []byte) (Config, error) {
	cfg := Default()
	file, err := ini.Load(raw)
	if err != nil {
		return cfg, err
	}
	return applySection(cfg, file.Section(sectionName)), nil
}

func applySection(cfg Config, sec *ini.Section) Config {
	cfg.PacketSize = sec.Key("packet-size").MustInt(cfg.PacketSize)
	cfg.Window = sec.Key("window").MustInt(cfg.Window)
	cfg.RemotePacketSize = sec.Key("remote-packet-size").MustInt(cfg.RemotePacketSize)
	cfg.RemoteWindow = sec.Key("remote-window").MustInt(cfg.RemoteWindow)
	cfg.SyncTimeout = time.Duration(sec.Key("sync-timeout").MustInt(int(cfg.SyncTimeout/time.Second))) * time.Second
	cfg.SyncRetries = sec.Key("sync-retries").MustInt(cfg.SyncRetries)
	cfg.Timeout = time.Duration(sec.Key("timeout").MustInt(int(cfg.Timeout/time.Second))) * time.Second
	cfg.Retries = sec.Key("retries").MustInt(cfg.Retries)
	cfg.MaxErrors = sec.Key("errors").MustInt(cfg.MaxErrors)
	cfg.ErrorDecay = sec.Key("error-decay").MustInt(cfg.ErrorDecay)
	return cfg
}
