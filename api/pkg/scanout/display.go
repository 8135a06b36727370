// Package scanout ties the session, device, output chain, buffer pool and
// presenter together in acquisition order and tears them down in reverse.
package scanout

import (
	"errors"
	"fmt"
	"image/color"
	"strings"

	"github.com/helixml/scanout/api/pkg/buffer"
	"github.com/helixml/scanout/api/pkg/config"
	"github.com/helixml/scanout/api/pkg/device"
	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/helixml/scanout/api/pkg/output"
	"github.com/helixml/scanout/api/pkg/present"
	"github.com/helixml/scanout/api/pkg/session"
	"github.com/rs/zerolog/log"
)

// Card is what a display needs from an open DRM device. *drm.Card
// implements it.
type Card interface {
	output.Device
	buffer.Device
	buffer.DumbDevice
	present.Committer
}

type node interface {
	Fd() int
	Path() string
	Card() Card
	Close() error
}

type broker interface {
	device.Broker
	ID() string
	Close() error
}

type deviceNode struct{ *device.Node }

func (n deviceNode) Card() Card { return n.Node.Card() }

var (
	openBroker = func() (broker, error) {
		bus, err := session.Dial()
		if err != nil {
			return nil, err
		}
		b, err := session.New(bus)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	openNode = func(opts device.Options) (node, error) {
		n, err := device.Open(opts)
		if err != nil {
			return nil, err
		}
		return deviceNode{n}, nil
	}

	openAllocator = func(name string, n node) (buffer.Allocator, error) {
		switch strings.ToLower(name) {
		case "", "dumb":
			return buffer.OpenDumb(n.Card()), nil
		case "gbm":
			return buffer.OpenGBM(n.Fd())
		default:
			return nil, fmt.Errorf("unknown allocator %q", name)
		}
	}
)

// Display is a running direct scanout session.
type Display struct {
	broker    broker
	node      node
	chain     *output.Chain
	pool      *buffer.Pool
	presenter *present.Presenter
}

// Open acquires everything needed to present on a display. On failure
// whatever was acquired is released in reverse order.
func Open(cfg config.ScanoutConfig) (*Display, error) {
	format, err := drm.ParseFormat(cfg.Buffers.Format)
	if err != nil {
		return nil, err
	}
	modifiers, err := drm.ParseModifiers(cfg.Buffers.Modifiers)
	if err != nil {
		return nil, err
	}

	d := &Display{}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	opts := device.Options{
		Path:        cfg.Device.Path,
		LeaseSocket: cfg.Device.LeaseSocket,
		LeaseWidth:  cfg.Device.LeaseWidth,
		LeaseHeight: cfg.Device.LeaseHeight,
		VT:          cfg.Device.VT,
	}
	if cfg.Device.UseLogind {
		if d.broker, err = openBroker(); err != nil {
			return nil, fmt.Errorf("failed to open login session: %w", err)
		}
		opts.Broker = d.broker
	}

	if d.node, err = openNode(opts); err != nil {
		return nil, err
	}
	card := d.node.Card()

	if d.chain, err = output.Resolve(card, output.Options{PlaneID: cfg.Device.PlaneID}); err != nil {
		return nil, err
	}

	alloc, err := openAllocator(cfg.Buffers.Allocator, d.node)
	if err != nil {
		return nil, err
	}
	d.pool, err = buffer.NewPool(card, alloc, buffer.Options{
		Count:     cfg.Buffers.Count,
		Width:     d.chain.Width(),
		Height:    d.chain.Height(),
		Format:    format,
		Usage:     buffer.UsageScanout | buffer.UsageLinear,
		Modifiers: modifiers,
	})
	if err != nil {
		return nil, err
	}

	if d.presenter, err = present.New(card, d.chain, d.pool); err != nil {
		return nil, err
	}

	log.Info().
		Str("device", d.node.Path()).
		Str("chain", d.chain.String()).
		Int("buffers", d.pool.Len()).
		Str("format", drm.FormatName(format)).
		Str("strategy", d.pool.Strategy()).
		Msg("Display ready")
	ok = true
	return d, nil
}

// Presenter returns the display's presenter.
func (d *Display) Presenter() *present.Presenter { return d.presenter }

// Chain returns the output chain being driven.
func (d *Display) Chain() *output.Chain { return d.chain }

// Pool returns the buffers being presented.
func (d *Display) Pool() *buffer.Pool { return d.pool }

// Run presents frames from src until token is cancelled or opts.Frames
// frames have been shown.
func (d *Display) Run(token *present.CancelToken, src present.Source, opts present.RunOptions) (int, error) {
	return present.Run(token, d.presenter, src, opts)
}

// Close releases the presenter's mappings, the pool, the chain, the
// device node (restoring the VT) and finally the login session, in that
// order. Safe on nil and when called twice.
func (d *Display) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if err := d.presenter.Close(); err != nil {
		errs = append(errs, err)
	}
	d.presenter = nil
	if d.pool != nil {
		if err := d.pool.Close(); err != nil {
			errs = append(errs, err)
		}
		d.pool = nil
	}
	d.chain = nil
	if d.node != nil {
		if err := d.node.Close(); err != nil {
			errs = append(errs, err)
		}
		d.node = nil
	}
	if d.broker != nil {
		if err := d.broker.Close(); err != nil {
			errs = append(errs, err)
		}
		d.broker = nil
	}
	return errors.Join(errs...)
}

// Source builds the frame source described by cfg: one colour is a solid
// fill, more alternate per frame.
func Source(cfg config.Present) (present.Source, error) {
	colors := make([]color.Color, 0, len(cfg.Colors))
	for _, s := range cfg.Colors {
		c, err := present.ParseColor(s)
		if err != nil {
			return nil, err
		}
		colors = append(colors, c)
	}
	switch len(colors) {
	case 0:
		return present.Solid{Color: color.Black}, nil
	case 1:
		return present.Solid{Color: colors[0]}, nil
	default:
		return present.NewCycle(colors...), nil
	}
}
