package scanout

import (
	"errors"
	"fmt"
	"image/color"
	"testing"

	"github.com/helixml/scanout/api/pkg/buffer"
	"github.com/helixml/scanout/api/pkg/config"
	"github.com/helixml/scanout/api/pkg/device"
	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/helixml/scanout/api/pkg/output"
	"github.com/helixml/scanout/api/pkg/present"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeCard drives one 32x24 display: connector 11 -> encoder 21 ->
// crtc 41 -> plane 31. Dumb buffers are memfds.
type fakeCard struct {
	t       *testing.T
	events  *[]string
	idle    bool
	bos     map[uint32]int
	handle  uint32
	fb      uint32
	commits int
}

func (c *fakeCard) Resources() (*drm.Resources, error) {
	return &drm.Resources{Connectors: []uint32{11}, Encoders: []uint32{21}, Crtcs: []uint32{41}}, nil
}

func (c *fakeCard) PlaneIDs() ([]uint32, error) { return []uint32{31}, nil }

func (c *fakeCard) Connector(id uint32) (*drm.Connector, error) {
	return &drm.Connector{ID: id, EncoderID: 21, Connection: drm.ConnectorStatusConnected}, nil
}

func (c *fakeCard) Encoder(id uint32) (*drm.Encoder, error) {
	return &drm.Encoder{ID: id, CrtcID: 41, PossibleCrtcs: 1}, nil
}

func (c *fakeCard) Crtc(id uint32) (*drm.Crtc, error) {
	crtc := &drm.Crtc{ID: id, FbID: 5, ModeValid: true, Mode: drm.ModeInfo{Hdisplay: 32, Vdisplay: 24}}
	if c.idle {
		crtc.FbID = 0
	}
	return crtc, nil
}

func (c *fakeCard) Plane(id uint32) (*drm.Plane, error) {
	return &drm.Plane{ID: id, CrtcID: 41, FbID: 5, PossibleCrtcs: 1}, nil
}

func (c *fakeCard) Properties(objectID, objectType uint32) (drm.Properties, error) {
	if objectType != drm.ObjectPlane {
		return drm.Properties{}, nil
	}
	props := drm.Properties{}
	for i, name := range []string{"FB_ID", "CRTC_ID", "SRC_X", "SRC_Y", "SRC_W", "SRC_H", "CRTC_X", "CRTC_Y", "CRTC_W", "CRTC_H"} {
		props[name] = drm.Property{ID: uint32(100 + i)}
	}
	return props, nil
}

func (c *fakeCard) CreateDumb(width, height, bpp uint32) (uint32, uint32, uint64, error) {
	pitch := width * bpp / 8
	size := uint64(pitch) * uint64(height)
	fd, err := unix.MemfdCreate("dumb", unix.MFD_CLOEXEC)
	require.NoError(c.t, err)
	require.NoError(c.t, unix.Ftruncate(fd, int64(size)))
	c.handle++
	c.bos[c.handle] = fd
	return c.handle, pitch, size, nil
}

func (c *fakeCard) DestroyDumb(handle uint32) error {
	*c.events = append(*c.events, fmt.Sprintf("destroy %d", handle))
	unix.Close(c.bos[handle])
	delete(c.bos, handle)
	return nil
}

func (c *fakeCard) PrimeHandleToFD(handle uint32) (int, error) {
	return unix.FcntlInt(uintptr(c.bos[handle]), unix.F_DUPFD_CLOEXEC, 0)
}

func (c *fakeCard) AddFB(width, height uint32, depth, bpp uint8, pitch, handle uint32) (uint32, error) {
	c.fb++
	return c.fb, nil
}

func (c *fakeCard) AddFB2(width, height, format uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64, flags uint32) (uint32, error) {
	return 0, unix.EINVAL
}

func (c *fakeCard) DirtyFB(uint32) error { return nil }

func (c *fakeCard) RmFB(fbID uint32) error {
	*c.events = append(*c.events, fmt.Sprintf("rmfb %d", fbID))
	return nil
}

func (c *fakeCard) AtomicCommit(*drm.AtomicRequest, uint32) error {
	c.commits++
	return nil
}

func (c *fakeCard) GetCap(capability uint64) (uint64, error) {
	if capability == drm.CapAddFB2Modifiers {
		return 0, unix.EINVAL
	}
	return 1, nil
}

type fakeNode struct {
	card   *fakeCard
	events *[]string
	opts   device.Options
}

func (n *fakeNode) Fd() int { return 3 }
func (n *fakeNode) Path() string { return "/dev/dri/card0" }
func (n *fakeNode) Card() Card { return n.card }
func (n *fakeNode) Close() error {
	*n.events = append(*n.events, "node")
	return nil
}

type fakeBroker struct {
	events *[]string
}

func (b *fakeBroker) TakeDevice(string) (int, error) { return -1, errors.New("unused") }
func (b *fakeBroker) ReleaseDevice(int) error { return nil }
func (b *fakeBroker) ID() string { return "c1" }

func (b *fakeBroker) Close() error {
	*b.events = append(*b.events, "broker")
	return nil
}

type harness struct {
	events []string
	card   *fakeCard
	node   *fakeNode
	broker *fakeBroker

	brokerOpened bool
}

func newHarness(t *testing.T) *harness {
	h := &harness{}
	h.card = &fakeCard{t: t, events: &h.events, bos: map[uint32]int{}, fb: 200}
	h.node = &fakeNode{card: h.card, events: &h.events}
	h.broker = &fakeBroker{events: &h.events}

	origBroker, origNode := openBroker, openNode
	t.Cleanup(func() { openBroker, openNode = origBroker, origNode })

	openBroker = func() (broker, error) {
		h.brokerOpened = true
		return h.broker, nil
	}
	openNode = func(opts device.Options) (node, error) {
		h.node.opts = opts
		return h.node, nil
	}
	return h
}

func testConfig() config.ScanoutConfig {
	var cfg config.ScanoutConfig
	cfg.Buffers.Count = 2
	cfg.Buffers.Format = "XRGB8888"
	cfg.Buffers.Allocator = "dumb"
	cfg.Device.VT = 4
	return cfg
}

func TestOpenAndClose(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.Device.UseLogind = true

	d, err := Open(cfg)
	require.NoError(t, err)
	assert.True(t, h.brokerOpened)
	assert.Same(t, h.broker, h.node.opts.Broker)
	assert.Equal(t, 4, h.node.opts.VT)
	assert.False(t, h.node.opts.SkipVT)

	require.True(t, d.Chain().Valid())
	assert.Equal(t, uint32(31), d.Chain().Plane.ID)
	assert.Equal(t, 2, d.Pool().Len())
	assert.Equal(t, uint32(32), d.Pool().Buffer(0).Width)

	frames, err := d.Run(&present.CancelToken{}, present.Solid{Color: color.White}, present.RunOptions{Frames: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, frames)
	assert.Equal(t, 4, h.card.commits)

	require.NoError(t, d.Close())
	assert.Equal(t, []string{"rmfb 201", "destroy 1", "rmfb 202", "destroy 2", "node", "broker"}, h.events)
	assert.Empty(t, h.card.bos)

	require.NoError(t, d.Close())
	assert.Len(t, h.events, 6)
}

func TestOpenWithoutLogind(t *testing.T) {
	h := newHarness(t)

	d, err := Open(testConfig())
	require.NoError(t, err)
	defer d.Close()

	assert.False(t, h.brokerOpened)
	assert.Nil(t, h.node.opts.Broker)
}

func TestOpenUnwinds(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*harness, *config.ScanoutConfig)
		wantErr    error
		wantEvents []string
	}{
		{
			name:       "no output chain",
			mutate:     func(h *harness, _ *config.ScanoutConfig) { h.card.idle = true },
			wantErr:    output.ErrNoOutputChain,
			wantEvents: []string{"node", "broker"},
		},
		{
			name:       "unknown allocator",
			mutate:     func(_ *harness, cfg *config.ScanoutConfig) { cfg.Buffers.Allocator = "vulkan" },
			wantEvents: []string{"node", "broker"},
		},
		{
			name:       "invalid count",
			mutate:     func(_ *harness, cfg *config.ScanoutConfig) { cfg.Buffers.Count = 0 },
			wantErr:    buffer.ErrInvalidCount,
			wantEvents: []string{"node", "broker"},
		},
		{
			name:       "modifiers the dumb allocator cannot honour",
			mutate:     func(_ *harness, cfg *config.ScanoutConfig) { cfg.Buffers.Modifiers = "0x0100000000000001" },
			wantEvents: []string{"node", "broker"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			cfg := testConfig()
			cfg.Device.UseLogind = true
			tt.mutate(h, &cfg)

			d, err := Open(cfg)
			assert.Nil(t, d)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantEvents, h.events)
		})
	}
}

func TestOpenNodeFailureClosesBroker(t *testing.T) {
	h := newHarness(t)
	openNode = func(device.Options) (node, error) { return nil, device.ErrNoMaster }
	cfg := testConfig()
	cfg.Device.UseLogind = true

	_, err := Open(cfg)
	assert.ErrorIs(t, err, device.ErrNoMaster)
	assert.Equal(t, []string{"broker"}, h.events)
}

func TestOpenBadFormat(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.Buffers.Format = "NV12"

	_, err := Open(cfg)
	assert.Error(t, err)
	assert.Empty(t, h.events)
}

func TestProbe(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.Device.Path = "/dev/dri/card0"

	res, err := Probe(cfg)
	require.NoError(t, err)
	assert.True(t, h.node.opts.SkipVT)
	assert.Equal(t, "/dev/dri/card0", h.node.opts.Path)
	assert.Equal(t, "/dev/dri/card0", res.Device)
	assert.Equal(t, uint32(41), res.Chain.Crtc.ID)
	assert.Equal(t, map[string]uint64{"DUMB_BUFFER": 1, "PRIME": 1}, res.Capabilities)
	assert.Equal(t, []string{"node"}, h.events)
	assert.False(t, h.brokerOpened)
}

func TestSource(t *testing.T) {
	src, err := Source(config.Present{Colors: []string{"00ff00"}})
	require.NoError(t, err)
	assert.Equal(t, present.Solid{Color: color.RGBA{G: 0xff, A: 0xff}}, src)

	src, err = Source(config.Present{Colors: []string{"ff0000", "0000ff"}})
	require.NoError(t, err)
	assert.IsType(t, &present.Cycle{}, src)

	src, err = Source(config.Present{})
	require.NoError(t, err)
	assert.Equal(t, present.Solid{Color: color.Black}, src)

	_, err = Source(config.Present{Colors: []string{"red"}})
	assert.Error(t, err)
}

func TestNilDisplayClose(t *testing.T) {
	var d *Display
	assert.NoError(t, d.Close())
	assert.NoError(t, (&Display{}).Close())
}
