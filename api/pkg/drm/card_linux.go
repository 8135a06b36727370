package drm

// Card is a handle on an open DRM device fd. It does not own the fd.
type Card struct {
	fd int
}

// NewCard wraps an already open DRM fd.
func NewCard(fd int) *Card {
	return &Card{fd: fd}
}

// Fd returns the wrapped file descriptor.
func (c *Card) Fd() int { return c.fd }

// GetMagic returns the authentication token of this fd.
func (c *Card) GetMagic() (uint32, error) { return getMagic(c.fd) }

// AuthMagic authenticates a token. It only succeeds when the calling fd
// is master, so GetMagic followed by AuthMagic on the same fd proves
// master status.
func (c *Card) AuthMagic(magic uint32) error { return authMagic(c.fd, magic) }

// GetCap queries a device capability.
func (c *Card) GetCap(capability uint64) (uint64, error) { return getCap(c.fd, capability) }

// SetClientCap declares a client capability.
func (c *Card) SetClientCap(capability, value uint64) error {
	return setClientCap(c.fd, capability, value)
}

func (c *Card) Resources() (*Resources, error) { return getResources(c.fd) }

func (c *Card) PlaneIDs() ([]uint32, error) { return getPlaneResources(c.fd) }

func (c *Card) Connector(id uint32) (*Connector, error) { return getConnector(c.fd, id) }

func (c *Card) Encoder(id uint32) (*Encoder, error) { return getEncoder(c.fd, id) }

func (c *Card) Crtc(id uint32) (*Crtc, error) { return getCrtc(c.fd, id) }

func (c *Card) Plane(id uint32) (*Plane, error) { return getPlane(c.fd, id) }

// Properties returns every property of a mode object keyed by name.
func (c *Card) Properties(objectID, objectType uint32) (Properties, error) {
	return getObjectProperties(c.fd, objectID, objectType)
}

// CreateDumb allocates a linear CPU-mappable buffer object.
func (c *Card) CreateDumb(width, height, bpp uint32) (handle, pitch uint32, size uint64, err error) {
	return createDumb(c.fd, width, height, bpp)
}

func (c *Card) DestroyDumb(handle uint32) error { return destroyDumb(c.fd, handle) }

// PrimeHandleToFD exports a GEM handle as a read-write, close-on-exec
// DMA-BUF fd.
func (c *Card) PrimeHandleToFD(handle uint32) (int, error) {
	return primeHandleToFD(c.fd, handle)
}

// AddFB registers a single-plane framebuffer described by depth and bpp.
func (c *Card) AddFB(width, height uint32, depth, bpp uint8, pitch, handle uint32) (uint32, error) {
	return addFB(c.fd, width, height, depth, bpp, pitch, handle)
}

// AddFB2 registers a framebuffer described by fourcc format and up to
// four planes. Pass FBModifiers in flags when modifiers are set.
func (c *Card) AddFB2(width, height, format uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64, flags uint32) (uint32, error) {
	return addFB2(c.fd, width, height, format, flags, handles, pitches, offsets, modifiers)
}

// DirtyFB flushes a framebuffer on drivers that need explicit damage.
func (c *Card) DirtyFB(fbID uint32) error { return dirtyFB(c.fd, fbID) }

func (c *Card) RmFB(fbID uint32) error { return rmFB(c.fd, fbID) }

// AtomicCommit applies req in one atomic transaction.
func (c *Card) AtomicCommit(req *AtomicRequest, flags uint32) error {
	return atomicCommit(c.fd, req, flags)
}
