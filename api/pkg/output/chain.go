// Package output finds the connector, encoder, CRTC and plane that are
// currently lighting up a display.
package output

import (
	"errors"
	"fmt"

	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoResources means the card reports no connectors, encoders,
	// CRTCs or planes.
	ErrNoResources = errors.New("device has no mode setting resources")

	// ErrNoOutputChain means no connector is driven through an encoder
	// and CRTC with a plane scanning out its framebuffer. Retrying on the
	// same device will not help.
	ErrNoOutputChain = errors.New("no active output chain")
)

// Device is the read side of a DRM card. *drm.Card implements it.
type Device interface {
	Resources() (*drm.Resources, error)
	PlaneIDs() ([]uint32, error)
	Connector(id uint32) (*drm.Connector, error)
	Encoder(id uint32) (*drm.Encoder, error)
	Crtc(id uint32) (*drm.Crtc, error)
	Plane(id uint32) (*drm.Plane, error)
	Properties(objectID, objectType uint32) (drm.Properties, error)
}

// Stage is one mode object of the chain with its driver properties.
type Stage struct {
	ID    uint32
	Props drm.Properties
}

// Chain is a complete connector -> encoder -> CRTC -> plane path.
type Chain struct {
	Connector Stage
	Encoder   Stage
	Crtc      Stage
	Plane     Stage

	// Mode is the CRTC's current display mode.
	Mode drm.ModeInfo
}

// Valid reports whether all four stages are populated.
func (c *Chain) Valid() bool {
	return c != nil && c.Connector.ID != 0 && c.Encoder.ID != 0 && c.Crtc.ID != 0 && c.Plane.ID != 0
}

// Width returns the horizontal resolution of the current mode.
func (c *Chain) Width() uint32 { return uint32(c.Mode.Hdisplay) }

// Height returns the vertical resolution of the current mode.
func (c *Chain) Height() uint32 { return uint32(c.Mode.Vdisplay) }

func (c *Chain) String() string {
	return fmt.Sprintf("connector %d -> encoder %d -> crtc %d -> plane %d, %s",
		c.Connector.ID, c.Encoder.ID, c.Crtc.ID, c.Plane.ID, c.Mode)
}

// Options tunes the search.
type Options struct {
	// PlaneID pins the plane instead of matching it by CRTC and
	// framebuffer. The first active CRTC the plane can drive is chosen.
	PlaneID uint32
}

// Resolve returns the first connector, in discovery order, whose encoder
// drives a CRTC that is scanning out a framebuffer, together with the
// plane showing that framebuffer. The same topology always yields the
// same chain.
func Resolve(dev Device, opts Options) (*Chain, error) {
	res, err := dev.Resources()
	if err != nil {
		return nil, fmt.Errorf("failed to read resources: %w", err)
	}
	planeIDs, err := dev.PlaneIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to read plane resources: %w", err)
	}
	if len(res.Connectors) == 0 || len(res.Encoders) == 0 || len(res.Crtcs) == 0 || len(planeIDs) == 0 {
		return nil, fmt.Errorf("%w: %d connectors, %d encoders, %d crtcs, %d planes", ErrNoResources,
			len(res.Connectors), len(res.Encoders), len(res.Crtcs), len(planeIDs))
	}

	planes := make([]*drm.Plane, 0, len(planeIDs))
	for _, id := range planeIDs {
		plane, err := dev.Plane(id)
		if err != nil {
			return nil, err
		}
		planes = append(planes, plane)
	}

	var pinned *drm.Plane
	if opts.PlaneID != 0 {
		for _, p := range planes {
			if p.ID == opts.PlaneID {
				pinned = p
			}
		}
		if pinned == nil {
			return nil, fmt.Errorf("plane %d not found", opts.PlaneID)
		}
	}

	for _, connID := range res.Connectors {
		conn, err := dev.Connector(connID)
		if err != nil {
			log.Debug().Err(err).Uint32("connector", connID).Msg("Skipping unreadable connector")
			continue
		}
		if conn.EncoderID == 0 {
			log.Debug().Uint32("connector", connID).Msg("Connector has no encoder")
			continue
		}

		enc, err := dev.Encoder(conn.EncoderID)
		if err != nil {
			log.Debug().Err(err).Uint32("encoder", conn.EncoderID).Msg("Skipping unreadable encoder")
			continue
		}
		if enc.CrtcID == 0 {
			log.Debug().Uint32("encoder", enc.ID).Msg("Encoder has no CRTC")
			continue
		}

		crtc, err := dev.Crtc(enc.CrtcID)
		if err != nil {
			log.Debug().Err(err).Uint32("crtc", enc.CrtcID).Msg("Skipping unreadable CRTC")
			continue
		}
		if crtc.FbID == 0 {
			log.Debug().Uint32("crtc", crtc.ID).Msg("CRTC is not scanning out")
			continue
		}

		plane := pickPlane(planes, pinned, crtc, crtcIndex(res.Crtcs, crtc.ID))
		if plane == nil {
			log.Debug().Uint32("crtc", crtc.ID).Msg("No usable plane for the CRTC")
			continue
		}

		chain := &Chain{
			Connector: Stage{ID: conn.ID},
			Encoder:   Stage{ID: enc.ID},
			Crtc:      Stage{ID: crtc.ID},
			Plane:     Stage{ID: plane.ID},
			Mode:      crtc.Mode,
		}
		if err := readProperties(dev, chain); err != nil {
			return nil, err
		}

		log.Info().
			Uint32("connector", chain.Connector.ID).
			Uint32("encoder", chain.Encoder.ID).
			Uint32("crtc", chain.Crtc.ID).
			Uint32("plane", chain.Plane.ID).
			Str("mode", chain.Mode.String()).
			Msg("Resolved output chain")
		return chain, nil
	}

	return nil, ErrNoOutputChain
}

func crtcIndex(crtcs []uint32, id uint32) int {
	for i, c := range crtcs {
		if c == id {
			return i
		}
	}
	return -1
}

// pickPlane returns pinned when set, or nil if it cannot drive crtc.
// Without a pin it returns the plane showing the CRTC's framebuffer.
func pickPlane(planes []*drm.Plane, pinned *drm.Plane, crtc *drm.Crtc, index int) *drm.Plane {
	if pinned != nil {
		if index < 0 || pinned.PossibleCrtcs&(1<<uint(index)) == 0 {
			return nil
		}
		return pinned
	}

	for _, p := range planes {
		if p.CrtcID == crtc.ID && p.FbID == crtc.FbID {
			return p
		}
	}
	return nil
}

func readProperties(dev Device, chain *Chain) error {
	stages := []struct {
		stage *Stage
		typ   uint32
	}{
		{&chain.Connector, drm.ObjectConnector},
		{&chain.Encoder, drm.ObjectEncoder},
		{&chain.Crtc, drm.ObjectCRTC},
		{&chain.Plane, drm.ObjectPlane},
	}
	for _, s := range stages {
		props, err := dev.Properties(s.stage.ID, s.typ)
		if err != nil && s.typ == drm.ObjectEncoder {
			// Encoders have no property list on most kernels.
			s.stage.Props = drm.Properties{}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read properties of object %d: %w", s.stage.ID, err)
		}
		s.stage.Props = props
	}
	return nil
}
