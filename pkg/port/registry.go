// Package port is the registry for byte-port transports: concrete
// implementations (serial, pty) register themselves under a
// name, and a CLI or config file selects one by string without the
// link layer ever importing a concrete transport.
package port

import (
	"fmt"

	"github.com/gouucp/guucp"
)

// NewFunc constructs a Port for the given channel string (e.g. a
// device path, a host:port, or an in-memory name depending on the
// registered transport).
type NewFunc func(channel string) (guucp.Port, error)

var registry = make(map[string]NewFunc)

// Register adds a transport under name. Transports call this from an
// init() function.
func Register(name string, fn NewFunc) {
	registry[name] = fn
}

// Open constructs a Port using the transport registered under name.
func Open(name, channel string) (guucp.Port, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("port: unsupported transport %q", name)
	}
	return fn(channel)
}
