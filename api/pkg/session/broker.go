// Package session acquires device fds through systemd-logind, so that a
// process running on a text console can drive the GPU without root.
package session

import (
	"errors"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

var (
	// ErrNotTTYSession means the caller is not in a local text-console
	// session and cannot take control of its devices.
	ErrNotTTYSession = errors.New("session is not a local tty session")
)

type devnum struct {
	major, minor uint32
}

// Broker holds control of the caller's login session.
type Broker struct {
	bus     Logind
	id      string
	path    dbus.ObjectPath
	devices map[int]devnum
}

// New finds the caller's session, activates it and takes control of it.
// Any failure is fatal: the bus is closed and nothing is retried.
func New(bus Logind) (*Broker, error) {
	b := &Broker{bus: bus, devices: make(map[int]devnum)}
	if err := b.acquire(); err != nil {
		bus.Close()
		return nil, err
	}

	log.Info().
		Str("session_id", b.id).
		Str("session_path", string(b.path)).
		Msg("Took control of login session")
	return b, nil
}

func (b *Broker) acquire() error {
	if id := os.Getenv("XDG_SESSION_ID"); id != "" {
		path, err := b.bus.Session(id)
		if err != nil {
			return fmt.Errorf("failed to resolve session %s: %w", id, err)
		}
		b.id, b.path = id, path
	} else {
		path, err := b.bus.SessionByPID(uint32(os.Getpid()))
		if err != nil {
			return fmt.Errorf("failed to find session of pid %d: %w", os.Getpid(), err)
		}
		id, err := b.stringProperty(path, "Id")
		if err != nil {
			return err
		}
		b.id, b.path = id, path
	}

	kind, err := b.stringProperty(b.path, "Type")
	if err != nil {
		return err
	}
	if kind != "tty" {
		return fmt.Errorf("%w: session %s has type %q", ErrNotTTYSession, b.id, kind)
	}

	remote, err := b.bus.SessionProperty(b.path, "Remote")
	if err != nil {
		return err
	}
	if r, ok := remote.Value().(bool); !ok || r {
		return fmt.Errorf("%w: session %s is remote", ErrNotTTYSession, b.id)
	}

	if err := b.bus.Activate(b.path); err != nil {
		return fmt.Errorf("failed to activate session %s: %w", b.id, err)
	}
	if err := b.bus.TakeControl(b.path, false); err != nil {
		return fmt.Errorf("failed to take control of session %s: %w", b.id, err)
	}
	return nil
}

func (b *Broker) stringProperty(path dbus.ObjectPath, name string) (string, error) {
	v, err := b.bus.SessionProperty(path, name)
	if err != nil {
		return "", err
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("session property %s has type %s", name, v.Signature())
	}
	return s, nil
}

// ID returns the logind session id.
func (b *Broker) ID() string {
	if b == nil {
		return ""
	}
	return b.id
}

// TakeDevice opens the device special file at path through logind. It
// returns -1 on failure.
func (b *Broker) TakeDevice(path string) (int, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return -1, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	dev := devnum{major: unix.Major(uint64(st.Rdev)), minor: unix.Minor(uint64(st.Rdev))}

	busFD, inactive, err := b.bus.TakeDevice(b.path, dev.major, dev.minor)
	if err != nil {
		return -1, fmt.Errorf("failed to take device %s (%d:%d): %w", path, dev.major, dev.minor, err)
	}

	fd, err := unix.FcntlInt(uintptr(busFD), unix.F_DUPFD_CLOEXEC, 0)
	unix.Close(busFD)
	if err != nil {
		b.bus.ReleaseDevice(b.path, dev.major, dev.minor)
		return -1, fmt.Errorf("failed to duplicate fd for %s: %w", path, err)
	}
	b.devices[fd] = dev

	log.Debug().
		Str("path", path).
		Uint32("major", dev.major).
		Uint32("minor", dev.minor).
		Int("fd", fd).
		Bool("inactive", inactive).
		Msg("Took device from logind")
	return fd, nil
}

// ReleaseDevice hands a device taken with TakeDevice back to logind and
// closes fd.
func (b *Broker) ReleaseDevice(fd int) error {
	dev, ok := b.devices[fd]
	if !ok {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return fmt.Errorf("failed to stat fd %d: %w", fd, err)
		}
		dev = devnum{major: unix.Major(uint64(st.Rdev)), minor: unix.Minor(uint64(st.Rdev))}
	}
	delete(b.devices, fd)

	err := b.bus.ReleaseDevice(b.path, dev.major, dev.minor)
	unix.Close(fd)
	if err != nil {
		return fmt.Errorf("failed to release device %d:%d: %w", dev.major, dev.minor, err)
	}
	return nil
}

// Close releases every device still held, gives up control of the
// session and closes the bus. Safe on a nil or already closed Broker.
func (b *Broker) Close() error {
	if b == nil || b.bus == nil {
		return nil
	}

	for fd := range b.devices {
		if err := b.ReleaseDevice(fd); err != nil {
			log.Warn().Err(err).Int("fd", fd).Msg("Failed to release device")
		}
	}

	var errs []error
	if err := b.bus.ReleaseControl(b.path); err != nil {
		errs = append(errs, fmt.Errorf("failed to release control of session %s: %w", b.id, err))
	}
	if err := b.bus.Close(); err != nil {
		errs = append(errs, err)
	}
	b.bus = nil
	b.id, b.path = "", ""
	return errors.Join(errs...)
}
