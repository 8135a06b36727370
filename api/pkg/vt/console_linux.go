package vt

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Console ioctls (linux/vt.h, linux/kd.h)
const (
	ioctlVTOpenQry    = 0x5600
	ioctlVTActivate   = 0x5606
	ioctlVTWaitActive = 0x5607
	ioctlKDSetMode    = 0x4b3a
	ioctlKDGetKbMode  = 0x4b44
	ioctlKDSetKbMode  = 0x4b45
)

// Keyboard and display modes
const (
	KeyboardOff = 0x04 // K_OFF

	ModeText     = 0x00 // KD_TEXT
	ModeGraphics = 0x01 // KD_GRAPHICS
)

// Console is an open virtual terminal.
type Console interface {
	Activate(n int) error
	WaitActive(n int) error
	KeyboardMode() (int, error)
	SetKeyboardMode(mode int) error
	SetMode(mode int) error
	Close() error
}

type ttyConsole struct {
	fd int
}

func openConsole(path string) (Console, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &ttyConsole{fd: fd}, nil
}

func (c *ttyConsole) ioctl(req uint, value int, op string) error {
	if err := unix.IoctlSetInt(c.fd, req, value); err != nil {
		log.Warn().Str("op", op).Int("fd", c.fd).Err(err).Msg("Console ioctl failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *ttyConsole) Activate(n int) error {
	return c.ioctl(ioctlVTActivate, n, "VT_ACTIVATE")
}

func (c *ttyConsole) WaitActive(n int) error {
	return c.ioctl(ioctlVTWaitActive, n, "VT_WAITACTIVE")
}

func (c *ttyConsole) KeyboardMode() (int, error) {
	mode, err := unix.IoctlGetInt(c.fd, ioctlKDGetKbMode)
	if err != nil {
		log.Warn().Str("op", "KDGKBMODE").Int("fd", c.fd).Err(err).Msg("Console ioctl failed")
		return 0, fmt.Errorf("KDGKBMODE: %w", err)
	}
	return mode, nil
}

func (c *ttyConsole) SetKeyboardMode(mode int) error {
	return c.ioctl(ioctlKDSetKbMode, mode, "KDSKBMODE")
}

func (c *ttyConsole) SetMode(mode int) error {
	return c.ioctl(ioctlKDSetMode, mode, "KDSETMODE")
}

func (c *ttyConsole) Close() error {
	return unix.Close(c.fd)
}

// openQuery asks the console driver for the first unused VT.
func openQuery(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer unix.Close(fd)

	n, err := unix.IoctlGetInt(fd, ioctlVTOpenQry)
	if err != nil {
		return -1, fmt.Errorf("VT_OPENQRY: %w", err)
	}
	return n, nil
}
