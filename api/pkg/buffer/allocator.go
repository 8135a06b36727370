package buffer

// Usage flags passed to Allocator.Create. Values match GBM_BO_USE_*.
type Usage uint32

const (
	UsageScanout   Usage = 1 << 0
	UsageCursor    Usage = 1 << 1
	UsageRendering Usage = 1 << 2
	UsageWrite     Usage = 1 << 3
	UsageLinear    Usage = 1 << 4
)

// Allocator creates GPU buffer objects on a DRM device.
type Allocator interface {
	// Create allocates a buffer object with implementation-chosen layout.
	Create(width, height, format uint32, usage Usage) (Object, error)
	// CreateWithModifiers allocates a buffer object whose layout is one of
	// modifiers.
	CreateWithModifiers(width, height, format uint32, modifiers []uint64) (Object, error)
	// Name identifies the implementation in logs.
	Name() string
	Close() error
}

// Object is one allocated buffer object with up to four planes.
type Object interface {
	PlaneCount() int
	Format() uint32
	Modifier() uint64
	// Handle returns the GEM handle of plane on the allocator's device.
	Handle(plane int) uint32
	Stride(plane int) uint32
	Offset(plane int) uint32
	Destroy() error
}
