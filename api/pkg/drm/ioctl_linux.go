package drm

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// DRM ioctl numbers. These use the generic Linux ioctl encoding and the
// DRM uapi structs have the same layout on every 64-bit architecture:
//
//	_IO(type, nr)          = (type << 8) | nr
//	_IOR(type, nr, size)   = 0x80000000 | (size << 16) | (type << 8) | nr
//	_IOW(type, nr, size)   = 0x40000000 | (size << 16) | (type << 8) | nr
//	_IOWR(type, nr, size)  = 0xC0000000 | (size << 16) | (type << 8) | nr
const (
	// DRM_IOCTL_GET_MAGIC = _IOR('d', 0x02, struct drm_auth)
	ioctlGetMagic = 0x80046402

	// DRM_IOCTL_GET_CAP = _IOWR('d', 0x0c, struct drm_get_cap)
	ioctlGetCap = 0xc010640c

	// DRM_IOCTL_SET_CLIENT_CAP = _IOW('d', 0x0d, struct drm_set_client_cap)
	ioctlSetClientCap = 0x4010640d

	// DRM_IOCTL_AUTH_MAGIC = _IOW('d', 0x11, struct drm_auth)
	ioctlAuthMagic = 0x40046411

	// DRM_IOCTL_PRIME_HANDLE_TO_FD = _IOWR('d', 0x2d, struct drm_prime_handle)
	ioctlPrimeHandleToFD = 0xc00c642d

	// DRM_IOCTL_MODE_GETRESOURCES = _IOWR('d', 0xa0, struct drm_mode_card_res)
	ioctlModeGetResources = 0xc04064a0

	// DRM_IOCTL_MODE_GETCRTC = _IOWR('d', 0xa1, struct drm_mode_crtc)
	ioctlModeGetCrtc = 0xc06864a1

	// DRM_IOCTL_MODE_GETENCODER = _IOWR('d', 0xa6, struct drm_mode_get_encoder)
	ioctlModeGetEncoder = 0xc01464a6

	// DRM_IOCTL_MODE_GETCONNECTOR = _IOWR('d', 0xa7, struct drm_mode_get_connector)
	ioctlModeGetConnector = 0xc05064a7

	// DRM_IOCTL_MODE_GETPROPERTY = _IOWR('d', 0xaa, struct drm_mode_get_property)
	ioctlModeGetProperty = 0xc04064aa

	// DRM_IOCTL_MODE_ADDFB = _IOWR('d', 0xae, struct drm_mode_fb_cmd)
	ioctlModeAddFB = 0xc01c64ae

	// DRM_IOCTL_MODE_RMFB = _IOWR('d', 0xaf, unsigned int)
	ioctlModeRmFB = 0xc00464af

	// DRM_IOCTL_MODE_DIRTYFB = _IOWR('d', 0xb1, struct drm_mode_fb_dirty_cmd)
	ioctlModeDirtyFB = 0xc01864b1

	// DRM_IOCTL_MODE_CREATE_DUMB = _IOWR('d', 0xb2, struct drm_mode_create_dumb)
	ioctlModeCreateDumb = 0xc02064b2

	// DRM_IOCTL_MODE_DESTROY_DUMB = _IOWR('d', 0xb4, struct drm_mode_destroy_dumb)
	ioctlModeDestroyDumb = 0xc00464b4

	// DRM_IOCTL_MODE_GETPLANERESOURCES = _IOWR('d', 0xb5, struct drm_mode_get_plane_res)
	ioctlModeGetPlaneResources = 0xc01064b5

	// DRM_IOCTL_MODE_GETPLANE = _IOWR('d', 0xb6, struct drm_mode_get_plane)
	ioctlModeGetPlane = 0xc02064b6

	// DRM_IOCTL_MODE_ADDFB2 = _IOWR('d', 0xb8, struct drm_mode_fb_cmd2)
	ioctlModeAddFB2 = 0xc06864b8

	// DRM_IOCTL_MODE_OBJ_GETPROPERTIES = _IOWR('d', 0xb9, struct drm_mode_obj_get_properties)
	ioctlModeObjGetProperties = 0xc02064b9

	// DRM_IOCTL_MODE_ATOMIC = _IOWR('d', 0xbc, struct drm_mode_atomic)
	ioctlModeAtomic = 0xc03864bc
)

// drmAuth corresponds to struct drm_auth.
type drmAuth struct {
	Magic uint32
}

// drmGetCap corresponds to struct drm_get_cap.
type drmGetCap struct {
	Capability uint64
	Value      uint64
}

// drmSetClientCap corresponds to struct drm_set_client_cap.
type drmSetClientCap struct {
	Capability uint64
	Value      uint64
}

// drmPrimeHandle corresponds to struct drm_prime_handle.
type drmPrimeHandle struct {
	Handle uint32
	Flags  uint32
	FD     int32
}

// drmModeCardRes corresponds to struct drm_mode_card_res.
type drmModeCardRes struct {
	FbIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFbs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

// drmModeCrtc corresponds to struct drm_mode_crtc.
type drmModeCrtc struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FbID             uint32
	X                uint32
	Y                uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             ModeInfo
}

// drmModeGetEncoder corresponds to struct drm_mode_get_encoder.
type drmModeGetEncoder struct {
	EncoderID      uint32
	EncoderType    uint32
	CrtcID         uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

// drmModeGetConnector corresponds to struct drm_mode_get_connector.
type drmModeGetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

// drmModeGetProperty corresponds to struct drm_mode_get_property.
type drmModeGetProperty struct {
	ValuesPtr      uint64
	EnumBlobPtr    uint64
	PropID         uint32
	Flags          uint32
	Name           [32]byte
	CountValues    uint32
	CountEnumBlobs uint32
}

// drmModeFBCmd corresponds to struct drm_mode_fb_cmd.
type drmModeFBCmd struct {
	FbID   uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Bpp    uint32
	Depth  uint32
	Handle uint32
}

// drmModeFBCmd2 corresponds to struct drm_mode_fb_cmd2.
type drmModeFBCmd2 struct {
	FbID        uint32
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Flags       uint32
	Handles     [4]uint32
	Pitches     [4]uint32
	Offsets     [4]uint32
	Pad         uint32
	Modifier    [4]uint64
}

// drmModeFBDirtyCmd corresponds to struct drm_mode_fb_dirty_cmd.
type drmModeFBDirtyCmd struct {
	FbID     uint32
	Flags    uint32
	Color    uint32
	NumClips uint32
	ClipsPtr uint64
}

// drmModeCreateDumb corresponds to struct drm_mode_create_dumb.
type drmModeCreateDumb struct {
	Height uint32
	Width  uint32
	Bpp    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// drmModeDestroyDumb corresponds to struct drm_mode_destroy_dumb.
type drmModeDestroyDumb struct {
	Handle uint32
}

// drmModeGetPlaneRes corresponds to struct drm_mode_get_plane_res.
type drmModeGetPlaneRes struct {
	PlaneIDPtr  uint64
	CountPlanes uint32
	Pad         uint32
}

// drmModeGetPlane corresponds to struct drm_mode_get_plane.
type drmModeGetPlane struct {
	PlaneID          uint32
	CrtcID           uint32
	FbID             uint32
	PossibleCrtcs    uint32
	GammaSize        uint32
	CountFormatTypes uint32
	FormatTypePtr    uint64
}

// drmModeObjGetProperties corresponds to struct drm_mode_obj_get_properties.
type drmModeObjGetProperties struct {
	PropsPtr      uint64
	PropValuesPtr uint64
	CountProps    uint32
	ObjID         uint32
	ObjType       uint32
	Pad           uint32
}

// drmModeAtomic corresponds to struct drm_mode_atomic.
type drmModeAtomic struct {
	Flags         uint32
	CountObjs     uint32
	ObjsPtr       uint64
	CountPropsPtr uint64
	PropsPtr      uint64
	PropValuesPtr uint64
	Reserved      uint64
	UserData      uint64
}

// ioctl issues one DRM request. Failures are logged with the request
// name and errno, and the errno is wrapped so callers can match it.
func ioctl(fd int, req uintptr, arg unsafe.Pointer, op string) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		log.Warn().
			Str("op", op).
			Int("fd", fd).
			Int("errno", int(errno)).
			Err(errno).
			Msg("DRM ioctl failed")
		return fmt.Errorf("%s: %w", op, errno)
	}
	return nil
}

func ptr[T any](s []T) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

func getMagic(fd int) (uint32, error) {
	var auth drmAuth
	if err := ioctl(fd, ioctlGetMagic, unsafe.Pointer(&auth), "DRM_IOCTL_GET_MAGIC"); err != nil {
		return 0, err
	}
	return auth.Magic, nil
}

func authMagic(fd int, magic uint32) error {
	auth := drmAuth{Magic: magic}
	return ioctl(fd, ioctlAuthMagic, unsafe.Pointer(&auth), "DRM_IOCTL_AUTH_MAGIC")
}

func getCap(fd int, capability uint64) (uint64, error) {
	req := drmGetCap{Capability: capability}
	if err := ioctl(fd, ioctlGetCap, unsafe.Pointer(&req), "DRM_IOCTL_GET_CAP"); err != nil {
		return 0, err
	}
	return req.Value, nil
}

func setClientCap(fd int, capability, value uint64) error {
	req := drmSetClientCap{Capability: capability, Value: value}
	return ioctl(fd, ioctlSetClientCap, unsafe.Pointer(&req), "DRM_IOCTL_SET_CLIENT_CAP")
}

// getResources retrieves the mode object ids of the card.
func getResources(fd int) (*Resources, error) {
	// First call: get counts
	var res drmModeCardRes
	if err := ioctl(fd, ioctlModeGetResources, unsafe.Pointer(&res), "MODE_GETRESOURCES (count)"); err != nil {
		return nil, err
	}

	out := &Resources{
		Framebuffers: make([]uint32, res.CountFbs),
		Crtcs:        make([]uint32, res.CountCrtcs),
		Connectors:   make([]uint32, res.CountConnectors),
		Encoders:     make([]uint32, res.CountEncoders),
	}

	// Second call: fill arrays
	res2 := drmModeCardRes{
		FbIDPtr:         ptr(out.Framebuffers),
		CrtcIDPtr:       ptr(out.Crtcs),
		ConnectorIDPtr:  ptr(out.Connectors),
		EncoderIDPtr:    ptr(out.Encoders),
		CountFbs:        res.CountFbs,
		CountCrtcs:      res.CountCrtcs,
		CountConnectors: res.CountConnectors,
		CountEncoders:   res.CountEncoders,
	}
	err := ioctl(fd, ioctlModeGetResources, unsafe.Pointer(&res2), "MODE_GETRESOURCES (fill)")
	runtime.KeepAlive(out)
	if err != nil {
		return nil, err
	}

	// A hotplug between the two calls can shrink the lists.
	out.Framebuffers = out.Framebuffers[:min(res.CountFbs, res2.CountFbs)]
	out.Crtcs = out.Crtcs[:min(res.CountCrtcs, res2.CountCrtcs)]
	out.Connectors = out.Connectors[:min(res.CountConnectors, res2.CountConnectors)]
	out.Encoders = out.Encoders[:min(res.CountEncoders, res2.CountEncoders)]
	out.MinWidth, out.MaxWidth = res2.MinWidth, res2.MaxWidth
	out.MinHeight, out.MaxHeight = res2.MinHeight, res2.MaxHeight
	return out, nil
}

func getConnector(fd int, connectorID uint32) (*Connector, error) {
	conn := drmModeGetConnector{ConnectorID: connectorID}
	if err := ioctl(fd, ioctlModeGetConnector, unsafe.Pointer(&conn), fmt.Sprintf("MODE_GETCONNECTOR(%d)", connectorID)); err != nil {
		return nil, err
	}

	modes := make([]ModeInfo, conn.CountModes)
	encoders := make([]uint32, conn.CountEncoders)
	fill := drmModeGetConnector{
		ConnectorID:   connectorID,
		ModesPtr:      ptr(modes),
		EncodersPtr:   ptr(encoders),
		CountModes:    conn.CountModes,
		CountEncoders: conn.CountEncoders,
	}
	err := ioctl(fd, ioctlModeGetConnector, unsafe.Pointer(&fill), fmt.Sprintf("MODE_GETCONNECTOR(%d) (fill)", connectorID))
	runtime.KeepAlive(modes)
	runtime.KeepAlive(encoders)
	if err != nil {
		return nil, err
	}

	return &Connector{
		ID:         fill.ConnectorID,
		EncoderID:  fill.EncoderID,
		Type:       fill.ConnectorType,
		TypeID:     fill.ConnectorTypeID,
		Connection: fill.Connection,
		MmWidth:    fill.MmWidth,
		MmHeight:   fill.MmHeight,
		Modes:      modes[:min(conn.CountModes, fill.CountModes)],
		Encoders:   encoders[:min(conn.CountEncoders, fill.CountEncoders)],
	}, nil
}

func getEncoder(fd int, encoderID uint32) (*Encoder, error) {
	enc := drmModeGetEncoder{EncoderID: encoderID}
	if err := ioctl(fd, ioctlModeGetEncoder, unsafe.Pointer(&enc), fmt.Sprintf("MODE_GETENCODER(%d)", encoderID)); err != nil {
		return nil, err
	}
	return &Encoder{
		ID:             enc.EncoderID,
		Type:           enc.EncoderType,
		CrtcID:         enc.CrtcID,
		PossibleCrtcs:  enc.PossibleCrtcs,
		PossibleClones: enc.PossibleClones,
	}, nil
}

func getCrtc(fd int, crtcID uint32) (*Crtc, error) {
	crtc := drmModeCrtc{CrtcID: crtcID}
	if err := ioctl(fd, ioctlModeGetCrtc, unsafe.Pointer(&crtc), fmt.Sprintf("MODE_GETCRTC(%d)", crtcID)); err != nil {
		return nil, err
	}
	return &Crtc{
		ID:        crtc.CrtcID,
		FbID:      crtc.FbID,
		X:         crtc.X,
		Y:         crtc.Y,
		GammaSize: crtc.GammaSize,
		ModeValid: crtc.ModeValid != 0,
		Mode:      crtc.Mode,
	}, nil
}

func getPlaneResources(fd int) ([]uint32, error) {
	var res drmModeGetPlaneRes
	if err := ioctl(fd, ioctlModeGetPlaneResources, unsafe.Pointer(&res), "MODE_GETPLANERESOURCES (count)"); err != nil {
		return nil, err
	}
	ids := make([]uint32, res.CountPlanes)
	fill := drmModeGetPlaneRes{PlaneIDPtr: ptr(ids), CountPlanes: res.CountPlanes}
	err := ioctl(fd, ioctlModeGetPlaneResources, unsafe.Pointer(&fill), "MODE_GETPLANERESOURCES (fill)")
	runtime.KeepAlive(ids)
	if err != nil {
		return nil, err
	}
	return ids[:min(res.CountPlanes, fill.CountPlanes)], nil
}

func getPlane(fd int, planeID uint32) (*Plane, error) {
	plane := drmModeGetPlane{PlaneID: planeID}
	if err := ioctl(fd, ioctlModeGetPlane, unsafe.Pointer(&plane), fmt.Sprintf("MODE_GETPLANE(%d)", planeID)); err != nil {
		return nil, err
	}
	formats := make([]uint32, plane.CountFormatTypes)
	fill := drmModeGetPlane{
		PlaneID:          planeID,
		CountFormatTypes: plane.CountFormatTypes,
		FormatTypePtr:    ptr(formats),
	}
	err := ioctl(fd, ioctlModeGetPlane, unsafe.Pointer(&fill), fmt.Sprintf("MODE_GETPLANE(%d) (fill)", planeID))
	runtime.KeepAlive(formats)
	if err != nil {
		return nil, err
	}
	return &Plane{
		ID:            fill.PlaneID,
		CrtcID:        fill.CrtcID,
		FbID:          fill.FbID,
		PossibleCrtcs: fill.PossibleCrtcs,
		GammaSize:     fill.GammaSize,
		Formats:       formats[:min(plane.CountFormatTypes, fill.CountFormatTypes)],
	}, nil
}

func getPropertyName(fd int, propID uint32) (string, error) {
	prop := drmModeGetProperty{PropID: propID}
	if err := ioctl(fd, ioctlModeGetProperty, unsafe.Pointer(&prop), fmt.Sprintf("MODE_GETPROPERTY(%d)", propID)); err != nil {
		return "", err
	}
	return cString(prop.Name[:]), nil
}

func getObjectProperties(fd int, objectID, objectType uint32) (Properties, error) {
	op := fmt.Sprintf("MODE_OBJ_GETPROPERTIES(%d)", objectID)
	req := drmModeObjGetProperties{ObjID: objectID, ObjType: objectType}
	if err := ioctl(fd, ioctlModeObjGetProperties, unsafe.Pointer(&req), op); err != nil {
		return nil, err
	}

	ids := make([]uint32, req.CountProps)
	values := make([]uint64, req.CountProps)
	fill := drmModeObjGetProperties{
		PropsPtr:      ptr(ids),
		PropValuesPtr: ptr(values),
		CountProps:    req.CountProps,
		ObjID:         objectID,
		ObjType:       objectType,
	}
	err := ioctl(fd, ioctlModeObjGetProperties, unsafe.Pointer(&fill), op+" (fill)")
	runtime.KeepAlive(ids)
	runtime.KeepAlive(values)
	if err != nil {
		return nil, err
	}

	n := min(req.CountProps, fill.CountProps)
	props := make(Properties, n)
	for i := uint32(0); i < n; i++ {
		name, err := getPropertyName(fd, ids[i])
		if err != nil {
			return nil, err
		}
		props[name] = Property{ID: ids[i], Value: values[i]}
	}
	return props, nil
}

func createDumb(fd int, width, height, bpp uint32) (handle, pitch uint32, size uint64, err error) {
	dumb := drmModeCreateDumb{Width: width, Height: height, Bpp: bpp}
	if err := ioctl(fd, ioctlModeCreateDumb, unsafe.Pointer(&dumb), "MODE_CREATE_DUMB"); err != nil {
		return 0, 0, 0, err
	}
	return dumb.Handle, dumb.Pitch, dumb.Size, nil
}

func destroyDumb(fd int, handle uint32) error {
	req := drmModeDestroyDumb{Handle: handle}
	return ioctl(fd, ioctlModeDestroyDumb, unsafe.Pointer(&req), fmt.Sprintf("MODE_DESTROY_DUMB(%d)", handle))
}

func primeHandleToFD(fd int, handle uint32) (int, error) {
	req := drmPrimeHandle{Handle: handle, Flags: primeFlagCloExec | primeFlagReadWrite, FD: -1}
	if err := ioctl(fd, ioctlPrimeHandleToFD, unsafe.Pointer(&req), fmt.Sprintf("PRIME_HANDLE_TO_FD(%d)", handle)); err != nil {
		return -1, err
	}
	return int(req.FD), nil
}

func addFB(fd int, width, height uint32, depth, bpp uint8, pitch, handle uint32) (uint32, error) {
	cmd := drmModeFBCmd{
		Width:  width,
		Height: height,
		Pitch:  pitch,
		Bpp:    uint32(bpp),
		Depth:  uint32(depth),
		Handle: handle,
	}
	if err := ioctl(fd, ioctlModeAddFB, unsafe.Pointer(&cmd), "MODE_ADDFB"); err != nil {
		return 0, err
	}
	return cmd.FbID, nil
}

func addFB2(fd int, width, height, format, flags uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64) (uint32, error) {
	cmd := drmModeFBCmd2{
		Width:       width,
		Height:      height,
		PixelFormat: format,
		Flags:       flags,
		Handles:     handles,
		Pitches:     pitches,
		Offsets:     offsets,
		Modifier:    modifiers,
	}
	if err := ioctl(fd, ioctlModeAddFB2, unsafe.Pointer(&cmd), "MODE_ADDFB2"); err != nil {
		return 0, err
	}
	return cmd.FbID, nil
}

func rmFB(fd int, fbID uint32) error {
	id := fbID
	return ioctl(fd, ioctlModeRmFB, unsafe.Pointer(&id), fmt.Sprintf("MODE_RMFB(%d)", fbID))
}

func dirtyFB(fd int, fbID uint32) error {
	cmd := drmModeFBDirtyCmd{FbID: fbID}
	return ioctl(fd, ioctlModeDirtyFB, unsafe.Pointer(&cmd), fmt.Sprintf("MODE_DIRTYFB(%d)", fbID))
}

func atomicCommit(fd int, req *AtomicRequest, flags uint32) error {
	objs, counts, props, values := req.pack()
	if len(objs) == 0 {
		return nil
	}
	cmd := drmModeAtomic{
		Flags:         flags,
		CountObjs:     uint32(len(objs)),
		ObjsPtr:       ptr(objs),
		CountPropsPtr: ptr(counts),
		PropsPtr:      ptr(props),
		PropValuesPtr: ptr(values),
	}
	err := ioctl(fd, ioctlModeAtomic, unsafe.Pointer(&cmd), "MODE_ATOMIC")
	runtime.KeepAlive(objs)
	runtime.KeepAlive(counts)
	runtime.KeepAlive(props)
	runtime.KeepAlive(values)
	return err
}
