// Package device opens the DRM device node a direct scanout session
// drives, and owns its fd and the VT it presents on.
package device

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/helixml/scanout/api/pkg/vt"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoMaster means no candidate card could be opened as DRM master
	// with the required client capabilities.
	ErrNoMaster = errors.New("no DRM device available as master")
)

// Broker hands out device fds on behalf of an unprivileged process.
// *session.Broker implements it.
type Broker interface {
	TakeDevice(path string) (int, error)
	ReleaseDevice(fd int) error
}

// Options selects how the device is acquired. Path and LeaseSocket are
// mutually exclusive; with neither set every primary node is tried.
type Options struct {
	// Path is an explicit device node, for example /dev/dri/card1.
	Path string
	// LeaseSocket is a lease manager socket to request a DRM lease from.
	LeaseSocket string
	LeaseWidth  uint32
	LeaseHeight uint32

	// VT overrides the virtual terminal; 0 picks one automatically.
	VT int
	// SkipVT leaves the console alone, for read-only inspection.
	SkipVT bool

	// Broker, when set, opens and releases device nodes.
	Broker Broker

	SysRoot string // default /sys
	DevRoot string // default /dev/dri
}

// Node is an open DRM device. While open, its VT (if any) is in
// graphics mode with kernel keyboard processing off.
type Node struct {
	fd     int
	path   string
	term   *vt.Terminal
	broker Broker
	lease  *drm.Lease
	kernel kernel
}

var requiredClientCaps = []struct {
	name string
	cap  uint64
}{
	{"UNIVERSAL_PLANES", drm.ClientCapUniversalPlanes},
	{"ATOMIC", drm.ClientCapAtomic},
}

// Open acquires a DRM device according to opts.
func Open(opts Options) (*Node, error) {
	return open(opts, sysKernel{})
}

func open(opts Options, k kernel) (*Node, error) {
	if opts.Path != "" && opts.LeaseSocket != "" {
		return nil, fmt.Errorf("device path and lease socket are mutually exclusive")
	}
	if opts.SysRoot == "" {
		opts.SysRoot = "/sys"
	}
	if opts.DevRoot == "" {
		opts.DevRoot = "/dev/dri"
	}

	n := &Node{fd: -1, broker: opts.Broker, kernel: k}

	var err error
	switch {
	case opts.Path != "":
		err = n.openPath(opts.Path)
	case opts.LeaseSocket != "":
		err = n.openLease(opts)
	default:
		err = n.openFirstMaster(opts)
	}
	if err != nil {
		return nil, err
	}

	if !opts.SkipVT {
		term, err := k.SetupVT(opts.VT)
		if err != nil {
			n.releaseFD()
			return nil, fmt.Errorf("failed to set up VT: %w", err)
		}
		n.term = term
	}

	log.Info().
		Str("path", n.path).
		Int("fd", n.fd).
		Int("vt", n.term.Number()).
		Bool("logind", n.broker != nil).
		Bool("lease", n.lease != nil).
		Msg("Opened DRM device")
	return n, nil
}

func (n *Node) acquire(path string) (int, error) {
	if n.broker != nil {
		return n.broker.TakeDevice(path)
	}
	return n.kernel.Open(path)
}

func (n *Node) release(fd int) error {
	if n.broker != nil {
		return n.broker.ReleaseDevice(fd)
	}
	return n.kernel.Close(fd)
}

func (n *Node) setClientCaps(fd int) error {
	for _, c := range requiredClientCaps {
		if err := n.kernel.SetClientCap(fd, c.cap, 1); err != nil {
			return fmt.Errorf("client cap %s not supported: %w", c.name, err)
		}
	}
	return nil
}

func (n *Node) openPath(path string) error {
	fd, err := n.acquire(path)
	if err != nil {
		return err
	}
	if err := n.setClientCaps(fd); err != nil {
		n.release(fd)
		return fmt.Errorf("%s: %w", path, err)
	}
	n.fd, n.path = fd, path
	return nil
}

func (n *Node) openLease(opts Options) error {
	lease, err := n.kernel.RequestLease(opts.LeaseSocket, opts.LeaseWidth, opts.LeaseHeight)
	if err != nil {
		return fmt.Errorf("failed to get DRM lease: %w", err)
	}
	if err := n.setClientCaps(lease.FD); err != nil {
		n.kernel.Close(lease.FD)
		lease.Close()
		return fmt.Errorf("lease %d: %w", lease.ID, err)
	}
	n.fd, n.lease = lease.FD, lease
	n.path = fmt.Sprintf("lease:%s", lease.ConnectorName)
	return nil
}

func (n *Node) openFirstMaster(opts Options) error {
	for _, name := range PrimaryNodes(opts.SysRoot) {
		path := filepath.Join(opts.DevRoot, name)

		fd, err := n.acquire(path)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Skipping DRM device")
			continue
		}
		if err := n.kernel.Authenticate(fd); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Not DRM master, skipping")
			n.release(fd)
			continue
		}
		if err := n.setClientCaps(fd); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Missing client caps, skipping")
			n.release(fd)
			continue
		}

		n.fd, n.path = fd, path
		return nil
	}
	return ErrNoMaster
}

// Fd returns the device fd, or -1 when the node is not open.
func (n *Node) Fd() int {
	if n == nil || n.kernel == nil {
		return -1
	}
	return n.fd
}

// Path returns the device path the node was opened from.
func (n *Node) Path() string {
	if n == nil {
		return ""
	}
	return n.path
}

// Card returns a DRM handle on the node's fd.
func (n *Node) Card() *drm.Card {
	return drm.NewCard(n.Fd())
}

func (n *Node) releaseFD() error {
	if n.fd < 0 {
		return nil
	}
	var err error
	if n.lease != nil {
		err = n.kernel.Close(n.fd)
		n.lease.Close()
		n.lease = nil
	} else {
		err = n.release(n.fd)
	}
	n.fd = -1
	return err
}

// Close restores the VT and then releases the device fd. Safe on a nil
// or zero Node and when called more than once.
func (n *Node) Close() error {
	if n == nil || n.kernel == nil {
		return nil
	}
	var errs []error
	if err := n.term.Restore(); err != nil {
		errs = append(errs, fmt.Errorf("failed to restore VT: %w", err))
	}
	n.term = nil
	if err := n.releaseFD(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release %s: %w", n.path, err))
	}
	return errors.Join(errs...)
}
