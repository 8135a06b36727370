package session

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	logindBus        = "org.freedesktop.login1"
	logindPath       = dbus.ObjectPath("/org/freedesktop/login1")
	logindManager    = "org.freedesktop.login1.Manager"
	logindSession    = "org.freedesktop.login1.Session"
	propertiesGetter = "org.freedesktop.DBus.Properties.Get"
)

//go:generate mockgen -source $GOFILE -destination logind_mocks.go -package $GOPACKAGE

// Logind is the subset of the systemd-logind bus API used to take
// control of a session and the devices that belong to its seat.
type Logind interface {
	// SessionByPID returns the object path of the session pid belongs to.
	SessionByPID(pid uint32) (dbus.ObjectPath, error)
	// Session returns the object path of session id.
	Session(id string) (dbus.ObjectPath, error)
	// SessionProperty reads a property of the Session interface.
	SessionProperty(session dbus.ObjectPath, name string) (dbus.Variant, error)
	Activate(session dbus.ObjectPath) error
	TakeControl(session dbus.ObjectPath, force bool) error
	ReleaseControl(session dbus.ObjectPath) error
	// TakeDevice returns a new fd for the device. The caller owns it.
	TakeDevice(session dbus.ObjectPath, major, minor uint32) (fd int, inactive bool, err error)
	ReleaseDevice(session dbus.ObjectPath, major, minor uint32) error
	Close() error
}

type systemBus struct {
	conn *dbus.Conn
}

// Dial connects to logind on the system bus.
func Dial() (Logind, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	if !conn.SupportsUnixFDs() {
		conn.Close()
		return nil, fmt.Errorf("system bus connection does not support fd passing")
	}
	return &systemBus{conn: conn}, nil
}

func (b *systemBus) manager() dbus.BusObject {
	return b.conn.Object(logindBus, logindPath)
}

func (b *systemBus) SessionByPID(pid uint32) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	if err := b.manager().Call(logindManager+".GetSessionByPID", 0, pid).Store(&path); err != nil {
		return "", fmt.Errorf("GetSessionByPID(%d): %w", pid, err)
	}
	return path, nil
}

func (b *systemBus) Session(id string) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	if err := b.manager().Call(logindManager+".GetSession", 0, id).Store(&path); err != nil {
		return "", fmt.Errorf("GetSession(%s): %w", id, err)
	}
	return path, nil
}

func (b *systemBus) SessionProperty(session dbus.ObjectPath, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := b.conn.Object(logindBus, session).
		Call(propertiesGetter, 0, logindSession, name).
		Store(&v)
	if err != nil {
		return dbus.Variant{}, fmt.Errorf("get session property %s: %w", name, err)
	}
	return v, nil
}

func (b *systemBus) Activate(session dbus.ObjectPath) error {
	return b.conn.Object(logindBus, session).Call(logindSession+".Activate", 0).Err
}

func (b *systemBus) TakeControl(session dbus.ObjectPath, force bool) error {
	return b.conn.Object(logindBus, session).Call(logindSession+".TakeControl", 0, force).Err
}

func (b *systemBus) ReleaseControl(session dbus.ObjectPath) error {
	return b.conn.Object(logindBus, session).Call(logindSession+".ReleaseControl", 0).Err
}

func (b *systemBus) TakeDevice(session dbus.ObjectPath, major, minor uint32) (int, bool, error) {
	var (
		fd       dbus.UnixFD
		inactive bool
	)
	err := b.conn.Object(logindBus, session).
		Call(logindSession+".TakeDevice", 0, major, minor).
		Store(&fd, &inactive)
	if err != nil {
		return -1, false, err
	}
	return int(fd), inactive, nil
}

func (b *systemBus) ReleaseDevice(session dbus.ObjectPath, major, minor uint32) error {
	return b.conn.Object(logindBus, session).Call(logindSession+".ReleaseDevice", 0, major, minor).Err
}

func (b *systemBus) Close() error {
	return b.conn.Close()
}
