package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type ScanoutConfig struct {
	Device  Device
	Buffers Buffers
	Present Present

	LogLevel string `envconfig:"SCANOUT_LOG_LEVEL" default:"info"`
}

// LoadScanoutConfig reads the environment, after merging a .env file from
// the working directory if there is one.
func LoadScanoutConfig() (ScanoutConfig, error) {
	_ = godotenv.Load()

	var cfg ScanoutConfig
	err := envconfig.Process("", &cfg)
	if err != nil {
		return ScanoutConfig{}, err
	}
	return cfg, nil
}

type Device struct {
	// Empty picks the first card that grants DRM master.
	Path string `envconfig:"SCANOUT_DEVICE" default:""`
	VT   int    `envconfig:"SCANOUT_VT" default:"0" description:"VT to switch to, 0 picks one"`

	UseLogind bool `envconfig:"SCANOUT_USE_LOGIND" default:"false" description:"Take the device through systemd-logind"`

	LeaseSocket string `envconfig:"SCANOUT_DRM_SOCKET" default:"" description:"DRM lease manager socket"`
	LeaseWidth  uint32 `envconfig:"SCANOUT_LEASE_WIDTH" default:"1920"`
	LeaseHeight uint32 `envconfig:"SCANOUT_LEASE_HEIGHT" default:"1080"`

	PlaneID uint32 `envconfig:"SCANOUT_PLANE_ID" default:"0" description:"Pin the primary plane instead of matching it"`
}

type Buffers struct {
	Count     int    `envconfig:"SCANOUT_BUFFERS" default:"2"`
	Format    string `envconfig:"SCANOUT_FORMAT" default:"XRGB8888"`
	Allocator string `envconfig:"SCANOUT_ALLOCATOR" default:"dumb" description:"One of dumb or gbm"`
	Modifiers string `envconfig:"SCANOUT_MODIFIERS" default:"" description:"Comma separated, hex, decimal or linear"`
}

type Present struct {
	Frames   int           `envconfig:"SCANOUT_FRAMES" default:"0" description:"Stop after this many frames, 0 runs until signalled"`
	Interval time.Duration `envconfig:"SCANOUT_INTERVAL" default:"0s"`
	Colors   []string      `envconfig:"SCANOUT_COLORS" default:"ff0000,0000ff"`
}
