//go:build cgo && gbm

package buffer

/*
#cgo pkg-config: gbm
#include <gbm.h>
#include <stdint.h>

static uint32_t bo_handle_for_plane(struct gbm_bo *bo, int plane) {
    return gbm_bo_get_handle_for_plane(bo, plane).u32;
}
*/
import "C"

import (
	"fmt"

	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/rs/zerolog/log"
)

// GBMAvailable reports whether this build includes the GBM allocator.
const GBMAvailable = true

type gbmAllocator struct {
	dev *C.struct_gbm_device
}

// OpenGBM creates a GBM device on the DRM fd, letting the userspace
// driver choose tiled and compressed layouts. The fd stays owned by the
// caller and must outlive the allocator. Needs libgbm at build time.
func OpenGBM(fd int) (Allocator, error) {
	dev, err := C.gbm_create_device(C.int(fd))
	if dev == nil {
		return nil, fmt.Errorf("gbm_create_device: %v", err)
	}
	log.Debug().
		Int("fd", fd).
		Str("backend", C.GoString(C.gbm_device_get_backend_name(dev))).
		Msg("Created GBM device")
	return &gbmAllocator{dev: dev}, nil
}

func (a *gbmAllocator) Name() string { return "gbm" }

func (a *gbmAllocator) Create(width, height, format uint32, usage Usage) (Object, error) {
	bo, err := C.gbm_bo_create(a.dev, C.uint32_t(width), C.uint32_t(height), C.uint32_t(format), C.uint32_t(usage))
	if bo == nil {
		return nil, fmt.Errorf("gbm_bo_create %dx%d %s: %v", width, height, drm.FormatName(format), err)
	}
	return &gbmObject{bo: bo}, nil
}

func (a *gbmAllocator) CreateWithModifiers(width, height, format uint32, modifiers []uint64) (Object, error) {
	if len(modifiers) == 0 {
		return nil, fmt.Errorf("empty modifier list")
	}
	mods := make([]C.uint64_t, len(modifiers))
	for i, m := range modifiers {
		mods[i] = C.uint64_t(m)
	}
	bo, err := C.gbm_bo_create_with_modifiers(a.dev, C.uint32_t(width), C.uint32_t(height), C.uint32_t(format), &mods[0], C.uint(len(mods)))
	if bo == nil {
		return nil, fmt.Errorf("gbm_bo_create_with_modifiers %dx%d %s: %v", width, height, drm.FormatName(format), err)
	}
	return &gbmObject{bo: bo}, nil
}

func (a *gbmAllocator) Close() error {
	if a.dev != nil {
		C.gbm_device_destroy(a.dev)
		a.dev = nil
	}
	return nil
}

type gbmObject struct {
	bo *C.struct_gbm_bo
}

func (o *gbmObject) PlaneCount() int { return int(C.gbm_bo_get_plane_count(o.bo)) }
func (o *gbmObject) Format() uint32 { return uint32(C.gbm_bo_get_format(o.bo)) }
func (o *gbmObject) Modifier() uint64 { return uint64(C.gbm_bo_get_modifier(o.bo)) }

func (o *gbmObject) Handle(plane int) uint32 {
	return uint32(C.bo_handle_for_plane(o.bo, C.int(plane)))
}

func (o *gbmObject) Stride(plane int) uint32 {
	return uint32(C.gbm_bo_get_stride_for_plane(o.bo, C.int(plane)))
}

func (o *gbmObject) Offset(plane int) uint32 {
	return uint32(C.gbm_bo_get_offset(o.bo, C.int(plane)))
}

func (o *gbmObject) Destroy() error {
	if o.bo != nil {
		C.gbm_bo_destroy(o.bo)
		o.bo = nil
	}
	return nil
}
