package buffer

import (
	"fmt"
	"slices"

	"github.com/helixml/scanout/api/pkg/drm"
)

// DumbDevice is the part of a DRM card the dumb allocator uses.
// *drm.Card implements it.
type DumbDevice interface {
	CreateDumb(width, height, bpp uint32) (handle, pitch uint32, size uint64, err error)
	DestroyDumb(handle uint32) error
}

// DumbAllocator allocates linear, CPU-mappable dumb buffers. It needs no
// userspace driver, so it works on any KMS device.
type DumbAllocator struct {
	dev DumbDevice
}

// OpenDumb returns a dumb buffer allocator on dev.
func OpenDumb(dev DumbDevice) *DumbAllocator {
	return &DumbAllocator{dev: dev}
}

func (a *DumbAllocator) Name() string { return "dumb" }

func (a *DumbAllocator) Create(width, height, format uint32, usage Usage) (Object, error) {
	_, bpp, ok := drm.FormatDepthBpp(format)
	if !ok {
		return nil, fmt.Errorf("dumb buffers do not support format %s", drm.FormatName(format))
	}
	handle, pitch, size, err := a.dev.CreateDumb(width, height, uint32(bpp))
	if err != nil {
		return nil, err
	}
	return &dumbObject{dev: a.dev, handle: handle, pitch: pitch, size: size, format: format}, nil
}

// CreateWithModifiers succeeds only when modifiers allows a linear layout.
func (a *DumbAllocator) CreateWithModifiers(width, height, format uint32, modifiers []uint64) (Object, error) {
	if !slices.Contains(modifiers, drm.ModifierLinear) {
		return nil, fmt.Errorf("dumb buffers are linear only, modifiers %#x do not allow it", modifiers)
	}
	return a.Create(width, height, format, UsageScanout|UsageLinear)
}

func (a *DumbAllocator) Close() error { return nil }

type dumbObject struct {
	dev    DumbDevice
	handle uint32
	pitch  uint32
	size   uint64
	format uint32
}

func (o *dumbObject) PlaneCount() int { return 1 }
func (o *dumbObject) Format() uint32 { return o.format }
func (o *dumbObject) Modifier() uint64 { return drm.ModifierLinear }
func (o *dumbObject) Handle(int) uint32 { return o.handle }
func (o *dumbObject) Stride(int) uint32 { return o.pitch }
func (o *dumbObject) Offset(int) uint32 { return 0 }

func (o *dumbObject) Destroy() error {
	return o.dev.DestroyDumb(o.handle)
}
