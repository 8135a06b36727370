// Package present cycles a buffer pool onto a display with synchronous
// atomic commits.
package present

import (
	"errors"
	"fmt"

	"github.com/helixml/scanout/api/pkg/buffer"
	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/helixml/scanout/api/pkg/output"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by Swap once the presenter has been closed.
var ErrClosed = errors.New("presenter is closed")

// Committer applies atomic mode setting requests. *drm.Card implements it.
type Committer interface {
	AtomicCommit(req *drm.AtomicRequest, flags uint32) error
}

// plane property ids needed to point a plane at a framebuffer
type planeProps struct {
	fbID, crtcID               uint32
	srcX, srcY, srcW, srcH     uint32
	crtcX, crtcY, crtcW, crtcH uint32
}

func resolvePlaneProps(props drm.Properties) (planeProps, error) {
	var pp planeProps
	for _, f := range []struct {
		name string
		dst  *uint32
	}{
		{"FB_ID", &pp.fbID},
		{"CRTC_ID", &pp.crtcID},
		{"SRC_X", &pp.srcX},
		{"SRC_Y", &pp.srcY},
		{"SRC_W", &pp.srcW},
		{"SRC_H", &pp.srcH},
		{"CRTC_X", &pp.crtcX},
		{"CRTC_Y", &pp.crtcY},
		{"CRTC_W", &pp.crtcW},
		{"CRTC_H", &pp.crtcH},
	} {
		id, err := props.ID(f.name)
		if err != nil {
			return planeProps{}, fmt.Errorf("plane: %w", err)
		}
		*f.dst = id
	}
	return pp, nil
}

// Presenter owns the display-side state of a pool: which buffer is on
// screen.
type Presenter struct {
	dev     Committer
	chain   *output.Chain
	pool    *buffer.Pool
	props   planeProps
	current int
}

// New checks the pool matches the chain's mode and resolves the plane
// properties used by Swap.
func New(dev Committer, chain *output.Chain, pool *buffer.Pool) (*Presenter, error) {
	if !chain.Valid() {
		return nil, errors.New("incomplete output chain")
	}
	if pool.Len() < 1 {
		return nil, buffer.ErrInvalidCount
	}
	for i := 0; i < pool.Len(); i++ {
		b := pool.Buffer(i)
		if b.Width != chain.Width() || b.Height != chain.Height() {
			return nil, fmt.Errorf("buffer %d is %dx%d, display mode is %dx%d",
				i, b.Width, b.Height, chain.Width(), chain.Height())
		}
	}
	props, err := resolvePlaneProps(chain.Plane.Props)
	if err != nil {
		return nil, err
	}
	return &Presenter{dev: dev, chain: chain, pool: pool, props: props}, nil
}

// Current returns the index of the buffer last presented.
func (p *Presenter) Current() int {
	return p.current
}

// Swap renders src into the next buffer and makes it visible. The call
// blocks until the commit completes. On failure the current buffer is
// unchanged.
func (p *Presenter) Swap(src Source) error {
	if p.pool == nil {
		return ErrClosed
	}
	back := (p.current + 1) % p.pool.Len()
	b := p.pool.Buffer(back)

	if src != nil {
		if err := render(b, src); err != nil {
			return fmt.Errorf("render buffer %d: %w", back, err)
		}
	}

	w, h := uint64(b.Width), uint64(b.Height)
	plane := p.chain.Plane.ID
	req := drm.NewAtomicRequest()
	req.Add(plane, p.props.fbID, uint64(b.FbID))
	req.Add(plane, p.props.crtcID, uint64(p.chain.Crtc.ID))
	req.Add(plane, p.props.srcX, 0)
	req.Add(plane, p.props.srcY, 0)
	req.Add(plane, p.props.srcW, w<<16)
	req.Add(plane, p.props.srcH, h<<16)
	req.Add(plane, p.props.crtcX, 0)
	req.Add(plane, p.props.crtcY, 0)
	req.Add(plane, p.props.crtcW, w)
	req.Add(plane, p.props.crtcH, h)

	if err := p.dev.AtomicCommit(req, drm.AtomicAllowModeset); err != nil {
		return fmt.Errorf("atomic commit of fb %d: %w", b.FbID, err)
	}
	p.current = back
	return nil
}

func render(b *buffer.Buffer, src Source) error {
	m, err := b.Map()
	if err != nil {
		return err
	}
	if err := m.Begin(); err != nil {
		return err
	}
	rerr := src.Render(m)
	if err := m.End(); err != nil && rerr == nil {
		rerr = err
	}
	return rerr
}

// Close drops the CPU mappings of the pool's buffers. The pool itself is
// closed by its owner.
func (p *Presenter) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	var errs []error
	for i := 0; i < p.pool.Len(); i++ {
		if err := p.pool.Buffer(i).Unmap(); err != nil {
			errs = append(errs, err)
		}
	}
	p.pool = nil
	log.Debug().Msg("Presenter closed")
	return errors.Join(errs...)
}
