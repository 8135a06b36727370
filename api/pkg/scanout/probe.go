package scanout

import (
	"github.com/helixml/scanout/api/pkg/config"
	"github.com/helixml/scanout/api/pkg/device"
	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/helixml/scanout/api/pkg/output"
)

type capReader interface {
	GetCap(capability uint64) (uint64, error)
}

// ProbeResult describes what a device would drive, without touching the
// console or allocating buffers.
type ProbeResult struct {
	Device string
	Chain  *output.Chain

	// Capabilities maps capability names to their value, for those the
	// driver answered.
	Capabilities map[string]uint64
}

var probedCaps = []struct {
	name string
	cap  uint64
}{
	{"DUMB_BUFFER", drm.CapDumbBuffer},
	{"PRIME", drm.CapPrime},
	{"ADDFB2_MODIFIERS", drm.CapAddFB2Modifiers},
}

// Probe opens the configured device, resolves its output chain and
// releases everything again.
func Probe(cfg config.ScanoutConfig) (*ProbeResult, error) {
	n, err := openNode(device.Options{
		Path:        cfg.Device.Path,
		LeaseSocket: cfg.Device.LeaseSocket,
		LeaseWidth:  cfg.Device.LeaseWidth,
		LeaseHeight: cfg.Device.LeaseHeight,
		SkipVT:      true,
	})
	if err != nil {
		return nil, err
	}
	defer n.Close()

	card := n.Card()
	chain, err := output.Resolve(card, output.Options{PlaneID: cfg.Device.PlaneID})
	if err != nil {
		return nil, err
	}

	res := &ProbeResult{Device: n.Path(), Chain: chain, Capabilities: map[string]uint64{}}
	if cr, ok := card.(capReader); ok {
		for _, c := range probedCaps {
			if v, err := cr.GetCap(c.cap); err == nil {
				res.Capabilities[c.name] = v
			}
		}
	}
	return res, nil
}
