package device

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/helixml/scanout/api/pkg/vt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKernel struct {
	nextFD   int
	fds      map[int]string
	opened   []string
	closed   []int
	notAuth  map[string]bool
	noAtomic map[string]bool
	vtErr    error
	vtCalls  int
	lease    *drm.Lease
	leaseErr error
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		nextFD:   10,
		fds:      make(map[int]string),
		notAuth:  make(map[string]bool),
		noAtomic: make(map[string]bool),
	}
}

func (k *fakeKernel) Open(path string) (int, error) {
	k.opened = append(k.opened, path)
	fd := k.nextFD
	k.nextFD++
	k.fds[fd] = path
	return fd, nil
}

func (k *fakeKernel) Close(fd int) error {
	k.closed = append(k.closed, fd)
	delete(k.fds, fd)
	return nil
}

func (k *fakeKernel) Authenticate(fd int) error {
	if k.notAuth[k.fds[fd]] {
		return errors.New("EACCES")
	}
	return nil
}

func (k *fakeKernel) SetClientCap(fd int, capability, value uint64) error {
	if capability == drm.ClientCapAtomic && k.noAtomic[k.fds[fd]] {
		return errors.New("EOPNOTSUPP")
	}
	return nil
}

func (k *fakeKernel) SetupVT(override int) (*vt.Terminal, error) {
	k.vtCalls++
	return nil, k.vtErr
}

func (k *fakeKernel) RequestLease(socket string, width, height uint32) (*drm.Lease, error) {
	if k.leaseErr != nil {
		return nil, k.leaseErr
	}
	k.fds[k.lease.FD] = "lease"
	return k.lease, nil
}

// sysfsTree builds a synthetic /sys/class/drm with the given entries.
func sysfsTree(t *testing.T, names ...string) string {
	root := t.TempDir()
	base := filepath.Join(root, "class/drm")
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(base, name), 0755))
	}
	return root
}

func TestIsPrimaryNode(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"card0", true},
		{"card12", true},
		{"card", false},
		{"card0-DP-1", false},
		{"card1-HDMI-A-1", false},
		{"renderD128", false},
		{"controlD64", false},
		{"version", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPrimaryNode(tt.name))
		})
	}
}

func TestPrimaryNodesOrder(t *testing.T) {
	root := sysfsTree(t, "card10", "card2", "renderD128", "card0-eDP-1", "card0", "controlD64")
	assert.Equal(t, []string{"card0", "card2", "card10"}, PrimaryNodes(root))

	assert.Nil(t, PrimaryNodes(filepath.Join(root, "missing")))
}

func TestOpenFirstMaster(t *testing.T) {
	k := newFakeKernel()
	k.notAuth["/dev/dri/card0"] = true
	root := sysfsTree(t, "card0", "card1", "card2", "renderD128")

	n, err := open(Options{SysRoot: root}, k)
	require.NoError(t, err)
	assert.Equal(t, "/dev/dri/card1", n.Path())
	assert.Equal(t, []string{"/dev/dri/card0", "/dev/dri/card1"}, k.opened)
	assert.Equal(t, []int{10}, k.closed)
	assert.Equal(t, 11, n.Fd())
	assert.Equal(t, 1, k.vtCalls)

	require.NoError(t, n.Close())
	assert.Equal(t, -1, n.Fd())
	assert.Empty(t, k.fds)

	// Idempotent.
	require.NoError(t, n.Close())
	assert.Equal(t, []int{10, 11}, k.closed)
}

func TestOpenSkipsMissingAtomic(t *testing.T) {
	k := newFakeKernel()
	k.noAtomic["/dev/dri/card0"] = true
	root := sysfsTree(t, "card0", "card1")

	n, err := open(Options{SysRoot: root, SkipVT: true}, k)
	require.NoError(t, err)
	assert.Equal(t, "/dev/dri/card1", n.Path())
	assert.Zero(t, k.vtCalls)
}

func TestOpenNoMaster(t *testing.T) {
	k := newFakeKernel()
	k.notAuth["/dev/dri/card0"] = true
	k.notAuth["/dev/dri/card1"] = true
	root := sysfsTree(t, "card0", "card1", "renderD128")

	n, err := open(Options{SysRoot: root}, k)
	assert.Nil(t, n)
	assert.ErrorIs(t, err, ErrNoMaster)
	assert.Empty(t, k.fds)
	assert.Equal(t, -1, n.Fd())
}

func TestOpenExplicitPath(t *testing.T) {
	k := newFakeKernel()

	n, err := open(Options{Path: "/dev/dri/card3", SkipVT: true}, k)
	require.NoError(t, err)
	assert.Equal(t, "/dev/dri/card3", n.Path())
	require.NoError(t, n.Close())

	k.noAtomic["/dev/dri/card4"] = true
	_, err = open(Options{Path: "/dev/dri/card4"}, k)
	assert.Error(t, err)
	assert.Empty(t, k.fds)
}

func TestOpenVTFailureReleasesDevice(t *testing.T) {
	k := newFakeKernel()
	k.vtErr = vt.ErrNoFreeVT

	_, err := open(Options{Path: "/dev/dri/card0"}, k)
	assert.ErrorIs(t, err, vt.ErrNoFreeVT)
	assert.Empty(t, k.fds)
}

func TestOpenLease(t *testing.T) {
	k := newFakeKernel()
	k.lease = &drm.Lease{ID: 3, ConnectorName: "Virtual-3", FD: 42}

	n, err := open(Options{LeaseSocket: "/run/drm.sock", SkipVT: true}, k)
	require.NoError(t, err)
	assert.Equal(t, 42, n.Fd())
	assert.Equal(t, "lease:Virtual-3", n.Path())

	require.NoError(t, n.Close())
	assert.Equal(t, []int{42}, k.closed)
}

func TestOpenLeaseFailure(t *testing.T) {
	k := newFakeKernel()
	k.leaseErr = errors.New("no free scanout")

	_, err := open(Options{LeaseSocket: "/run/drm.sock"}, k)
	assert.ErrorContains(t, err, "no free scanout")
}

func TestOpenConflictingOptions(t *testing.T) {
	_, err := open(Options{Path: "/dev/dri/card0", LeaseSocket: "/run/drm.sock"}, newFakeKernel())
	assert.Error(t, err)
}

type fakeBroker struct {
	taken    map[int]string
	released []int
	next     int
}

func (b *fakeBroker) TakeDevice(path string) (int, error) {
	b.next++
	b.taken[b.next] = path
	return b.next, nil
}

func (b *fakeBroker) ReleaseDevice(fd int) error {
	b.released = append(b.released, fd)
	delete(b.taken, fd)
	return nil
}

func TestOpenThroughBroker(t *testing.T) {
	k := newFakeKernel()
	b := &fakeBroker{taken: make(map[int]string)}

	n, err := open(Options{Path: "/dev/dri/card0", Broker: b, SkipVT: true}, k)
	require.NoError(t, err)
	assert.Empty(t, k.opened)
	assert.Equal(t, "/dev/dri/card0", b.taken[n.Fd()])

	require.NoError(t, n.Close())
	assert.Equal(t, []int{1}, b.released)
	assert.Empty(t, k.closed)
}

func TestZeroNodeClose(t *testing.T) {
	var n *Node
	assert.NoError(t, n.Close())
	assert.Equal(t, -1, n.Fd())

	assert.NoError(t, (&Node{}).Close())
	assert.Equal(t, -1, (&Node{}).Fd())
}
