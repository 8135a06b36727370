package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/helixml/scanout/api/pkg/config"
	"github.com/helixml/scanout/api/pkg/device"
	"github.com/helixml/scanout/api/pkg/present"
	"github.com/helixml/scanout/api/pkg/scanout"
)

var (
	devicePath string
	vtNumber   int
	leaseSock  string
	useLogind  bool
	planeID    uint32
	bufCount   int
	format     string
	allocator  string
	modifiers  string
	frames     int
	colors     []string
	logLevel   string
)

// Hooks for tests.
var (
	openDisplay    = scanout.Open
	notifyOnSignal = present.NotifyOnSignal
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scanout",
		Short: "Present frames directly on a DRM/KMS display",
		Long: `scanout drives a display without a window system. It opens a DRM device
as master, finds the connector, encoder, CRTC and plane currently lighting
up a screen, and flips a pool of dumb or GBM buffers with atomic commits.

Settings come from SCANOUT_* environment variables (and a .env file);
flags override them.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&devicePath, "device", "", "DRM device node, empty picks the first card granting master (env: SCANOUT_DEVICE)")
	pf.StringVar(&leaseSock, "drm-socket", "", "Request a DRM lease from this manager socket (env: SCANOUT_DRM_SOCKET)")
	pf.Uint32Var(&planeID, "plane", 0, "Pin the plane id (env: SCANOUT_PLANE_ID)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error) (env: SCANOUT_LOG_LEVEL)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Take over a VT and flip buffers until interrupted",
		RunE:  run,
	}
	f := runCmd.Flags()
	f.IntVar(&vtNumber, "vt", 0, "VT number, 0 picks one (env: SCANOUT_VT)")
	f.BoolVar(&useLogind, "logind", false, "Take the device through systemd-logind (env: SCANOUT_USE_LOGIND)")
	f.IntVar(&bufCount, "buffers", 0, "Number of buffers (env: SCANOUT_BUFFERS)")
	f.StringVar(&format, "format", "", "Pixel format, e.g. XRGB8888 (env: SCANOUT_FORMAT)")
	f.StringVar(&allocator, "allocator", "", "dumb or gbm (env: SCANOUT_ALLOCATOR)")
	f.StringVar(&modifiers, "modifiers", "", "Comma separated format modifiers (env: SCANOUT_MODIFIERS)")
	f.IntVar(&frames, "frames", 0, "Stop after this many frames (env: SCANOUT_FRAMES)")
	f.StringSliceVar(&colors, "colors", nil, "Colours to cycle through as rrggbb (env: SCANOUT_COLORS)")

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Print the output chain a device would drive and exit",
		RunE:  probe,
	}

	rootCmd.AddCommand(runCmd, probeCmd, newLeaseCmd())
	return rootCmd
}

// loadConfig reads the environment and applies any flags that were set.
func loadConfig(cmd *cobra.Command) (config.ScanoutConfig, error) {
	cfg, err := config.LoadScanoutConfig()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Device.Path = devicePath
	}
	if flags.Changed("drm-socket") {
		cfg.Device.LeaseSocket = leaseSock
	}
	if flags.Changed("plane") {
		cfg.Device.PlaneID = planeID
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("vt") {
		cfg.Device.VT = vtNumber
	}
	if flags.Changed("logind") {
		cfg.Device.UseLogind = useLogind
	}
	if flags.Changed("buffers") {
		cfg.Buffers.Count = bufCount
	}
	if flags.Changed("format") {
		cfg.Buffers.Format = format
	}
	if flags.Changed("allocator") {
		cfg.Buffers.Allocator = allocator
	}
	if flags.Changed("modifiers") {
		cfg.Buffers.Modifiers = modifiers
	}
	if flags.Changed("frames") {
		cfg.Present.Frames = frames
	}
	if flags.Changed("colors") {
		cfg.Present.Colors = colors
	}

	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(levelName string) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	src, err := scanout.Source(cfg.Present)
	if err != nil {
		return err
	}

	// Signals must be caught before Open switches the console to
	// graphics mode.
	token := &present.CancelToken{}
	stop := notifyOnSignal(token, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	display, err := openDisplay(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := display.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to release display")
		}
	}()

	_, err = display.Run(token, src, present.RunOptions{
		Frames:   cfg.Present.Frames,
		Interval: cfg.Present.Interval,
	})
	return err
}

func probe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	res, err := scanout.Probe(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.Device.Path == "" && cfg.Device.LeaseSocket == "" {
		fmt.Fprintf(out, "candidates: %s\n", strings.Join(device.PrimaryNodes("/sys"), ", "))
	}
	fmt.Fprintf(out, "device:    %s\n", res.Device)
	fmt.Fprintf(out, "connector: %d\n", res.Chain.Connector.ID)
	fmt.Fprintf(out, "encoder:   %d\n", res.Chain.Encoder.ID)
	fmt.Fprintf(out, "crtc:      %d\n", res.Chain.Crtc.ID)
	fmt.Fprintf(out, "plane:     %d\n", res.Chain.Plane.ID)
	fmt.Fprintf(out, "mode:      %s\n", res.Chain.Mode)
	for _, name := range []string{"DUMB_BUFFER", "PRIME", "ADDFB2_MODIFIERS"} {
		if v, ok := res.Capabilities[name]; ok {
			fmt.Fprintf(out, "cap %s: %d\n", name, v)
		}
	}
	return nil
}
