package buffer

import (
	"github.com/helixml/scanout/api/pkg/drm"
)

// strategy decides how buffer objects are allocated and registered as
// framebuffers. It is chosen once per pool.
type strategy interface {
	name() string
	allocate(alloc Allocator, opts Options) (Object, error)
	register(dev Device, b *Buffer, opts Options) (uint32, error)
}

func chooseStrategy(opts Options) strategy {
	if len(opts.Modifiers) == 0 {
		return plainStrategy{}
	}
	return modifierStrategy{}
}

// plainStrategy lets the allocator pick the layout and registers the
// framebuffer by depth and bpp.
type plainStrategy struct{}

func (plainStrategy) name() string { return "plain" }

func (plainStrategy) allocate(alloc Allocator, opts Options) (Object, error) {
	return alloc.Create(opts.Width, opts.Height, opts.Format, opts.Usage)
}

func (plainStrategy) register(dev Device, b *Buffer, opts Options) (uint32, error) {
	return dev.AddFB(opts.Width, opts.Height, opts.Depth, opts.BPP, b.Planes[0].Pitch, b.Planes[0].Handle)
}

// modifierStrategy allocates with an explicit modifier list and registers
// every plane with the modifier the allocator picked.
type modifierStrategy struct{}

func (modifierStrategy) name() string { return "modifiers" }

func (modifierStrategy) allocate(alloc Allocator, opts Options) (Object, error) {
	return alloc.CreateWithModifiers(opts.Width, opts.Height, opts.Format, opts.Modifiers)
}

func (modifierStrategy) register(dev Device, b *Buffer, opts Options) (uint32, error) {
	var (
		handles, pitches, offsets [4]uint32
		modifiers                 [4]uint64
	)
	for i, p := range b.Planes {
		handles[i] = p.Handle
		pitches[i] = p.Pitch
		offsets[i] = p.Offset
		modifiers[i] = b.Modifier
	}
	return dev.AddFB2(opts.Width, opts.Height, b.Format, handles, pitches, offsets, modifiers, drm.FBModifiers)
}
