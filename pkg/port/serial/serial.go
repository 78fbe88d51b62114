// Package serial opens real serial devices as guucp Ports, putting the
// line into raw 8N1 mode via termios. The registry channel string is
// "device" or "device@baud", e.g. "/dev/ttyS0@19200".
package serial

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gouucp/guucp"
	"github.com/gouucp/guucp/pkg/port"
	"golang.org/x/sys/unix"
)

func init() {
	port.Register("serial", func(channel string) (guucp.Port, error) {
		device, baud := channel, 9600
		if at := strings.LastIndex(channel, "@"); at >= 0 {
			device = channel[:at]
			b, err := strconv.Atoi(channel[at+1:])
			if err != nil {
				return nil, fmt.Errorf("serial: bad baud rate in %q: %w", channel, err)
			}
			baud = b
		}
		return Open(device, baud)
	})
}

var baudFlags = map[int]uint32{
	300:    unix.B300,
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// Open opens device at the given baud rate in raw 8N1 mode.
func Open(device string, baud int) (guucp.Port, error) {
	speed, ok := baudFlags[baud]
	if !ok {
		return nil, fmt.Errorf("serial: unsupported baud rate %d", baud)
	}
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", device, err)
	}
	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: tcgetattr %s: %w", device, err)
	}

	// Raw mode: no line discipline processing, 8 data bits, no parity,
	// receiver enabled, modem control lines ignored.
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	tio.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = 0
	tio.Ispeed = speed
	tio.Ospeed = speed
	tio.Cflag &^= unix.CBAUD
	tio.Cflag |= speed

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: tcsetattr %s: %w", device, err)
	}
	return &port.FD{Fd: fd, Name: device}, nil
}
