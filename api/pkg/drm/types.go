// Package drm talks to the Linux DRM/KMS subsystem through raw ioctls.
//
// It covers the subset a direct scanout client needs: master
// authentication, client capabilities, mode object discovery, object
// properties, dumb buffers, PRIME export, framebuffer registration and
// atomic commits.
package drm

import "fmt"

// Connector status values
const (
	ConnectorStatusConnected    = 1
	ConnectorStatusDisconnected = 2
	ConnectorStatusUnknown      = 3
)

// Mode object types, as used by OBJ_GETPROPERTIES.
const (
	ObjectCRTC      uint32 = 0xcccccccc
	ObjectConnector uint32 = 0xc0c0c0c0
	ObjectEncoder   uint32 = 0xe0e0e0e0
	ObjectMode      uint32 = 0xdededede
	ObjectProperty  uint32 = 0xb0b0b0b0
	ObjectFB        uint32 = 0xfbfbfbfb
	ObjectBlob      uint32 = 0xbbbbbbbb
	ObjectPlane     uint32 = 0xeeeeeeee
)

// Client capabilities
const (
	ClientCapStereo3D        = 1
	ClientCapUniversalPlanes = 2
	ClientCapAtomic          = 3
	ClientCapAspectRatio     = 4
)

// Device capabilities, for GetCap.
const (
	CapDumbBuffer      = 0x1
	CapPrime           = 0x5
	CapAddFB2Modifiers = 0x10

	PrimeCapExport = 0x2
)

// FBModifiers marks an ADDFB2 request as carrying per-plane modifiers
// (DRM_MODE_FB_MODIFIERS).
const FBModifiers = 1 << 1

// PRIME export flags
const (
	primeFlagReadWrite = 0x2     // DRM_RDWR
	primeFlagCloExec   = 0x80000 // DRM_CLOEXEC, same value as O_CLOEXEC
)

// Atomic commit flags
const (
	PageFlipEvent      = 0x01
	PageFlipAsync      = 0x02
	AtomicTestOnly     = 0x0100
	AtomicNonBlock     = 0x0200
	AtomicAllowModeset = 0x0400
)

// Plane types, values of the "type" plane property.
const (
	PlaneTypeOverlay = 0
	PlaneTypePrimary = 1
	PlaneTypeCursor  = 2
)

// ModeInfo corresponds to struct drm_mode_modeinfo (68 bytes).
type ModeInfo struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

// ModeName returns the NUL-trimmed mode name.
func (m ModeInfo) ModeName() string {
	return cString(m.Name[:])
}

func (m ModeInfo) String() string {
	return fmt.Sprintf("%s (%dx%d@%dHz)", m.ModeName(), m.Hdisplay, m.Vdisplay, m.Vrefresh)
}

// Resources lists the mode objects of a card.
type Resources struct {
	Framebuffers []uint32
	Crtcs        []uint32
	Connectors   []uint32
	Encoders     []uint32

	MinWidth, MaxWidth   uint32
	MinHeight, MaxHeight uint32
}

// Connector describes a physical output.
type Connector struct {
	ID         uint32
	EncoderID  uint32 // currently attached encoder, 0 if none
	Type       uint32
	TypeID     uint32
	Connection uint32
	MmWidth    uint32
	MmHeight   uint32
	Modes      []ModeInfo
	Encoders   []uint32
}

// Connected reports whether a sink is plugged in.
func (c *Connector) Connected() bool {
	return c != nil && c.Connection == ConnectorStatusConnected
}

// Encoder describes a signal-format converter.
type Encoder struct {
	ID             uint32
	Type           uint32
	CrtcID         uint32 // currently attached CRTC, 0 if none
	PossibleCrtcs  uint32
	PossibleClones uint32
}

// Crtc describes a scanout engine and its current configuration.
type Crtc struct {
	ID        uint32
	FbID      uint32 // framebuffer currently scanned out, 0 if idle
	X, Y      uint32
	GammaSize uint32
	ModeValid bool
	Mode      ModeInfo
}

// Width returns the horizontal resolution of the current mode.
func (c *Crtc) Width() uint32 { return uint32(c.Mode.Hdisplay) }

// Height returns the vertical resolution of the current mode.
func (c *Crtc) Height() uint32 { return uint32(c.Mode.Vdisplay) }

// Plane describes a compositable image source.
type Plane struct {
	ID            uint32
	CrtcID        uint32
	FbID          uint32
	PossibleCrtcs uint32
	GammaSize     uint32
	Formats       []uint32
}

// Property is one driver-reported property of a mode object.
type Property struct {
	ID    uint32
	Value uint64
}

// Properties maps property names to their id and current value.
type Properties map[string]Property

// ID returns the id of the named property.
func (p Properties) ID(name string) (uint32, error) {
	prop, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("property %q not found", name)
	}
	return prop.ID, nil
}
