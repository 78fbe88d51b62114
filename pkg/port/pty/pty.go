// Package pty opens a pseudo-terminal pair as a guucp Port, for local
// testing against real line-discipline behavior: the link runs on the
// master side while any other program (or a second guucp process) can
// attach to the slave device.
package pty

import (
	"fmt"

	"github.com/gouucp/guucp"
	"github.com/gouucp/guucp/pkg/port"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func init() {
	port.Register("pty", func(channel string) (guucp.Port, error) {
		p, slave, err := Open()
		if err != nil {
			return nil, err
		}
		log.WithField("device", slave).Info("pseudo-terminal allocated, attach the peer to the slave device")
		return p, nil
	})
}

// Open allocates a pty pair, puts the master into raw mode, and
// returns the master as a Port along with the slave device path.
func Open() (guucp.Port, string, error) {
	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, "", fmt.Errorf("pty: open /dev/ptmx: %w", err)
	}

	// Unlock the slave side and discover its device name.
	unlock := 0
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, unlock); err != nil {
		unix.Close(fd)
		return nil, "", fmt.Errorf("pty: unlock slave: %w", err)
	}
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		unix.Close(fd)
		return nil, "", fmt.Errorf("pty: query slave number: %w", err)
	}
	slave := fmt.Sprintf("/dev/pts/%d", n)

	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, "", fmt.Errorf("pty: tcgetattr: %w", err)
	}
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB
	tio.Cflag |= unix.CS8 | unix.CREAD
	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		unix.Close(fd)
		return nil, "", fmt.Errorf("pty: tcsetattr: %w", err)
	}

	return &port.FD{Fd: fd, Name: slave}, slave, nil
}
