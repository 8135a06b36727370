package device

import (
	"fmt"

	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/helixml/scanout/api/pkg/vt"
	"golang.org/x/sys/unix"
)

// kernel is everything Open needs from the operating system.
type kernel interface {
	Open(path string) (int, error)
	Close(fd int) error
	// Authenticate proves fd is DRM master.
	Authenticate(fd int) error
	SetClientCap(fd int, capability, value uint64) error
	SetupVT(override int) (*vt.Terminal, error)
	RequestLease(socket string, width, height uint32) (*drm.Lease, error)
}

type sysKernel struct{}

func (sysKernel) Open(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return fd, nil
}

func (sysKernel) Close(fd int) error {
	return unix.Close(fd)
}

// Authenticate runs the GET_MAGIC/AUTH_MAGIC handshake against itself.
// AUTH_MAGIC is only permitted to the master.
func (sysKernel) Authenticate(fd int) error {
	card := drm.NewCard(fd)
	magic, err := card.GetMagic()
	if err != nil {
		return err
	}
	return card.AuthMagic(magic)
}

func (sysKernel) SetClientCap(fd int, capability, value uint64) error {
	return drm.NewCard(fd).SetClientCap(capability, value)
}

func (sysKernel) SetupVT(override int) (*vt.Terminal, error) {
	return vt.Setup(override)
}

func (sysKernel) RequestLease(socket string, width, height uint32) (*drm.Lease, error) {
	return drm.NewLeaseClient(socket).RequestLease(width, height)
}
