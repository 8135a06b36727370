package drm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// The ioctl numbers encode the argument size, so the Go structs must match
// the kernel layout exactly.
func TestStructSizes(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"drm_mode_modeinfo", unsafe.Sizeof(ModeInfo{}), 68},
		{"drm_mode_card_res", unsafe.Sizeof(drmModeCardRes{}), 64},
		{"drm_mode_crtc", unsafe.Sizeof(drmModeCrtc{}), 104},
		{"drm_mode_get_encoder", unsafe.Sizeof(drmModeGetEncoder{}), 20},
		{"drm_mode_get_connector", unsafe.Sizeof(drmModeGetConnector{}), 80},
		{"drm_mode_get_property", unsafe.Sizeof(drmModeGetProperty{}), 64},
		{"drm_mode_fb_cmd", unsafe.Sizeof(drmModeFBCmd{}), 28},
		{"drm_mode_fb_cmd2", unsafe.Sizeof(drmModeFBCmd2{}), 104},
		{"drm_mode_fb_dirty_cmd", unsafe.Sizeof(drmModeFBDirtyCmd{}), 24},
		{"drm_mode_create_dumb", unsafe.Sizeof(drmModeCreateDumb{}), 32},
		{"drm_mode_destroy_dumb", unsafe.Sizeof(drmModeDestroyDumb{}), 4},
		{"drm_mode_get_plane_res", unsafe.Sizeof(drmModeGetPlaneRes{}), 16},
		{"drm_mode_get_plane", unsafe.Sizeof(drmModeGetPlane{}), 32},
		{"drm_mode_obj_get_properties", unsafe.Sizeof(drmModeObjGetProperties{}), 32},
		{"drm_mode_atomic", unsafe.Sizeof(drmModeAtomic{}), 56},
		{"drm_prime_handle", unsafe.Sizeof(drmPrimeHandle{}), 12},
		{"drm_get_cap", unsafe.Sizeof(drmGetCap{}), 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestIoctlSizeMatchesStruct(t *testing.T) {
	size := func(req uintptr) uintptr { return (req >> 16) & 0x3fff }

	assert.Equal(t, unsafe.Sizeof(drmModeCardRes{}), size(ioctlModeGetResources))
	assert.Equal(t, unsafe.Sizeof(drmModeGetConnector{}), size(ioctlModeGetConnector))
	assert.Equal(t, unsafe.Sizeof(drmModeFBCmd2{}), size(ioctlModeAddFB2))
	assert.Equal(t, unsafe.Sizeof(drmModeAtomic{}), size(ioctlModeAtomic))
	assert.Equal(t, unsafe.Sizeof(drmModeObjGetProperties{}), size(ioctlModeObjGetProperties))
	assert.Equal(t, unsafe.Sizeof(drmPrimeHandle{}), size(ioctlPrimeHandleToFD))
}

func TestModeInfoString(t *testing.T) {
	m := ModeInfo{Hdisplay: 1920, Vdisplay: 1080, Vrefresh: 60}
	copy(m.Name[:], "1920x1080")

	assert.Equal(t, "1920x1080", m.ModeName())
	assert.Equal(t, "1920x1080 (1920x1080@60Hz)", m.String())
}

func TestPropertiesID(t *testing.T) {
	props := Properties{"FB_ID": {ID: 17, Value: 42}}

	id, err := props.ID("FB_ID")
	assert.NoError(t, err)
	assert.Equal(t, uint32(17), id)

	_, err = props.ID("CRTC_ID")
	assert.Error(t, err)
}
