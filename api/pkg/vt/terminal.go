// Package vt switches a Linux virtual terminal into graphics mode for the
// duration of a direct scanout session and puts it back afterwards.
package vt

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

var (
	// ErrNoFreeVT means no target VT was given and the console driver
	// has no unused VT to offer.
	ErrNoFreeVT = errors.New("no free virtual terminal")
)

const (
	ttyMajor = 4
	maxVT    = 63

	consoleQueryPath = "/dev/tty0"
)

// Overridable in tests.
var (
	openConsoleFunc = openConsole
	openQueryFunc   = openQuery
	attachedVTFunc  = func() (int, bool) { return attachedVT(0) }
)

// Terminal is a VT held in graphics mode with kernel keyboard handling
// switched off.
type Terminal struct {
	console Console
	number  int
	kbMode  int
}

// Number returns the VT number.
func (t *Terminal) Number() int {
	if t == nil {
		return 0
	}
	return t.number
}

// Target picks the VT to use: override when positive, else the VT the
// process runs on, else the first unused VT.
func Target(override int) (int, error) {
	if override > 0 {
		return override, nil
	}
	if n, ok := attachedVTFunc(); ok {
		return n, nil
	}
	n, err := openQueryFunc(consoleQueryPath)
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrNoFreeVT, err)
	}
	if n < 1 {
		return -1, ErrNoFreeVT
	}
	return n, nil
}

// attachedVT reports the VT number when fd is a virtual console.
func attachedVT(fd int) (int, bool) {
	if !term.IsTerminal(fd) {
		return 0, false
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, false
	}
	major, minor := unix.Major(uint64(st.Rdev)), unix.Minor(uint64(st.Rdev))
	if major != ttyMajor || minor < 1 || minor > maxVT {
		return 0, false
	}
	return int(minor), true
}

// Setup activates the target VT, waits for it, saves its keyboard mode,
// switches keyboard processing off and enters graphics mode. Anything
// changed is undone if a later step fails.
func Setup(override int) (*Terminal, error) {
	n, err := Target(override)
	if err != nil {
		return nil, err
	}
	console, err := openConsoleFunc(fmt.Sprintf("/dev/tty%d", n))
	if err != nil {
		return nil, err
	}
	return setup(n, console)
}

func setup(n int, c Console) (t *Terminal, err error) {
	var (
		saved       int
		keyboardOff bool
	)
	defer func() {
		if err == nil {
			return
		}
		if keyboardOff {
			if rerr := c.SetKeyboardMode(saved); rerr != nil {
				log.Warn().Err(rerr).Int("vt", n).Msg("Failed to restore keyboard mode")
			}
		}
		c.Close()
	}()

	if err = c.Activate(n); err != nil {
		return nil, err
	}
	if err = c.WaitActive(n); err != nil {
		return nil, err
	}
	if saved, err = c.KeyboardMode(); err != nil {
		return nil, err
	}
	if err = c.SetKeyboardMode(KeyboardOff); err != nil {
		return nil, err
	}
	keyboardOff = true
	if err = c.SetMode(ModeGraphics); err != nil {
		return nil, err
	}

	log.Info().Int("vt", n).Int("saved_kb_mode", saved).Msg("Switched VT to graphics mode")
	return &Terminal{console: c, number: n, kbMode: saved}, nil
}

// Restore puts back the saved keyboard mode, returns to text mode and
// closes the VT. Safe to call more than once and on nil.
func (t *Terminal) Restore() error {
	if t == nil || t.console == nil {
		return nil
	}
	var errs []error
	if err := t.console.SetKeyboardMode(t.kbMode); err != nil {
		errs = append(errs, err)
	}
	if err := t.console.SetMode(ModeText); err != nil {
		errs = append(errs, err)
	}
	if err := t.console.Close(); err != nil {
		errs = append(errs, err)
	}
	t.console = nil

	log.Debug().Int("vt", t.number).Msg("Restored VT to text mode")
	return errors.Join(errs...)
}
