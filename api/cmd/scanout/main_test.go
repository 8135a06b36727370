package main

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/scanout/api/pkg/config"
	"github.com/helixml/scanout/api/pkg/present"
	"github.com/helixml/scanout/api/pkg/scanout"
)

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SCANOUT_VT", "2")
	t.Setenv("SCANOUT_FORMAT", "ARGB8888")
	t.Setenv("SCANOUT_DEVICE", "/dev/dri/card0")

	var got config.ScanoutConfig
	root := newRootCmd()
	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	run.RunE = func(cmd *cobra.Command, _ []string) error {
		var err error
		got, err = loadConfig(cmd)
		return err
	}

	root.SetArgs([]string{"run", "--vt", "5", "--device", "/dev/dri/card1", "--colors", "ffffff"})
	require.NoError(t, root.Execute())

	assert.Equal(t, 5, got.Device.VT)
	assert.Equal(t, "/dev/dri/card1", got.Device.Path)
	assert.Equal(t, "ARGB8888", got.Buffers.Format, "unset flags keep the environment")
	assert.Equal(t, []string{"ffffff"}, got.Present.Colors)
}

func TestLeaseRequiresSocket(t *testing.T) {
	chdir(t, t.TempDir())

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"lease", "release", "3"})
	err := root.Execute()
	assert.ErrorContains(t, err, "SCANOUT_DRM_SOCKET")
}

func TestSizeArgs(t *testing.T) {
	assert.NoError(t, sizeArgs(nil, nil))
	assert.NoError(t, sizeArgs(nil, []string{"800", "600"}))
	assert.Error(t, sizeArgs(nil, []string{"800"}))
}

func TestRunCatchesSignalsBeforeOpen(t *testing.T) {
	chdir(t, t.TempDir())
	origOpen, origNotify := openDisplay, notifyOnSignal
	t.Cleanup(func() { openDisplay, notifyOnSignal = origOpen, origNotify })

	var events []string
	notifyOnSignal = func(*present.CancelToken, ...os.Signal) func() {
		events = append(events, "notify")
		return func() { events = append(events, "stop") }
	}
	openDisplay = func(config.ScanoutConfig) (*scanout.Display, error) {
		events = append(events, "open")
		return nil, errors.New("no card")
	}

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run"})
	assert.ErrorContains(t, root.Execute(), "no card")
	assert.Equal(t, []string{"notify", "open", "stop"}, events)
}
