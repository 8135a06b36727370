// Package buffer allocates the GPU buffers a display scans out from,
// exports them as DMA-BUF fds and registers them as framebuffers.
package buffer

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

var (
	ErrInvalidSize  = errors.New("buffer width and height must be non-zero")
	ErrInvalidCount = errors.New("pool needs at least one buffer")
)

// Device is the part of a DRM card the pool uses to export buffers and
// manage framebuffers. *drm.Card implements it.
type Device interface {
	PrimeHandleToFD(handle uint32) (int, error)
	AddFB(width, height uint32, depth, bpp uint8, pitch, handle uint32) (uint32, error)
	AddFB2(width, height, format uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64, flags uint32) (uint32, error)
	DirtyFB(fbID uint32) error
	RmFB(fbID uint32) error
}

// Options describes the buffers of a pool.
type Options struct {
	Count  int
	Width  uint32
	Height uint32
	Format uint32

	// Depth and BPP are used when registering without modifiers. Zero
	// takes them from Format.
	Depth uint8
	BPP   uint8

	Usage Usage

	// Modifiers, when set, switches to modifier-aware allocation and
	// registration.
	Modifiers []uint64
}

// Plane is one plane of a buffer as seen by an importer.
type Plane struct {
	FD     int // DMA-BUF fd, -1 when not exported
	Pitch  uint32
	Offset uint32
	Handle uint32
}

// Buffer is a GPU buffer registered as a kernel framebuffer.
type Buffer struct {
	Planes   []Plane
	Format   uint32
	Modifier uint64
	FbID     uint32
	Width    uint32
	Height   uint32

	obj     Object
	linear  bool
	mapping *Mapping
}

// Pool is a fixed, ordered set of buffers sharing one allocator.
type Pool struct {
	dev      Device
	alloc    Allocator
	buffers  []*Buffer
	strategy string
}

// NewPool allocates opts.Count buffers. The pool takes ownership of
// alloc: on any failure the buffers built so far and the allocator are
// released before returning.
func NewPool(dev Device, alloc Allocator, opts Options) (*Pool, error) {
	pool := &Pool{dev: dev, alloc: alloc}
	ok := false
	defer func() {
		if !ok {
			pool.Close()
		}
	}()

	if opts.Width == 0 || opts.Height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, opts.Width, opts.Height)
	}
	if opts.Count < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, opts.Count)
	}
	if opts.Depth == 0 || opts.BPP == 0 {
		depth, bpp, known := drm.FormatDepthBpp(opts.Format)
		if !known && len(opts.Modifiers) == 0 {
			return nil, fmt.Errorf("no depth/bpp for format %s", drm.FormatName(opts.Format))
		}
		if opts.Depth == 0 {
			opts.Depth = depth
		}
		if opts.BPP == 0 {
			opts.BPP = bpp
		}
	}

	strat := chooseStrategy(opts)
	pool.strategy = strat.name()

	for i := 0; i < opts.Count; i++ {
		b, err := newBuffer(dev, alloc, strat, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create buffer %d: %w", i, err)
		}
		pool.buffers = append(pool.buffers, b)
	}
	ok = true

	log.Info().
		Str("allocator", alloc.Name()).
		Str("strategy", pool.strategy).
		Int("count", opts.Count).
		Uint32("width", opts.Width).
		Uint32("height", opts.Height).
		Str("format", drm.FormatName(opts.Format)).
		Str("size", humanize.IBytes(pool.bytes())).
		Msg("Created buffer pool")
	return pool, nil
}

func newBuffer(dev Device, alloc Allocator, strat strategy, opts Options) (*Buffer, error) {
	obj, err := strat.allocate(alloc, opts)
	if err != nil {
		return nil, fmt.Errorf("allocate: %w", err)
	}

	b := &Buffer{
		obj:      obj,
		Format:   obj.Format(),
		Modifier: obj.Modifier(),
		Width:    opts.Width,
		Height:   opts.Height,
		linear:   obj.Modifier() == drm.ModifierLinear || opts.Usage&UsageLinear != 0,
	}
	ok := false
	defer func() {
		if !ok {
			b.release(dev)
		}
	}()

	n := obj.PlaneCount()
	if n < 1 || n > 4 {
		return nil, fmt.Errorf("buffer object has %d planes", n)
	}
	b.Planes = make([]Plane, n)
	for i := range b.Planes {
		b.Planes[i].FD = -1
	}
	for i := range b.Planes {
		p := &b.Planes[i]
		p.Handle = obj.Handle(i)
		p.Pitch = obj.Stride(i)
		p.Offset = obj.Offset(i)
		if p.FD, err = dev.PrimeHandleToFD(p.Handle); err != nil {
			p.FD = -1
			return nil, fmt.Errorf("export plane %d: %w", i, err)
		}
	}

	if b.FbID, err = strat.register(dev, b, opts); err != nil {
		b.FbID = 0
		return nil, fmt.Errorf("register framebuffer: %w", err)
	}
	ok = true

	log.Debug().
		Uint32("fb_id", b.FbID).
		Int("planes", n).
		Uint32("pitch", b.Planes[0].Pitch).
		Str("modifier", fmt.Sprintf("%#x", b.Modifier)).
		Msg("Created framebuffer")
	return b, nil
}

// release frees everything the buffer holds, in reverse order of
// acquisition. Safe to call more than once.
func (b *Buffer) release(dev Device) error {
	var errs []error
	if err := b.mapping.Unmap(); err != nil {
		errs = append(errs, err)
	}
	b.mapping = nil

	if b.FbID != 0 {
		if err := dev.DirtyFB(b.FbID); err != nil {
			// Drivers without a dirty hook reject the flush.
			log.Debug().Err(err).Uint32("fb_id", b.FbID).Msg("DirtyFB not supported")
		}
		if err := dev.RmFB(b.FbID); err != nil {
			errs = append(errs, err)
		}
		b.FbID = 0
	}
	if b.obj != nil {
		if err := b.obj.Destroy(); err != nil {
			errs = append(errs, err)
		}
		b.obj = nil
	}
	for i := range b.Planes {
		if b.Planes[i].FD >= 0 {
			unix.Close(b.Planes[i].FD)
			b.Planes[i].FD = -1
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of buffers.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.buffers)
}

// Buffer returns buffer i.
func (p *Pool) Buffer(i int) *Buffer {
	return p.buffers[i]
}

// Strategy returns "plain" or "modifiers".
func (p *Pool) Strategy() string {
	return p.strategy
}

func (p *Pool) bytes() uint64 {
	var total uint64
	for _, b := range p.buffers {
		total += uint64(b.Planes[0].Pitch) * uint64(b.Height)
	}
	return total
}

// Close releases every buffer and then the allocator. Safe on a nil or
// zero Pool and when called more than once.
func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for i, b := range p.buffers {
		if err := b.release(p.dev); err != nil {
			errs = append(errs, fmt.Errorf("buffer %d: %w", i, err))
		}
	}
	p.buffers = nil
	if p.alloc != nil {
		if err := p.alloc.Close(); err != nil {
			errs = append(errs, err)
		}
		p.alloc = nil
	}
	return errors.Join(errs...)
}
