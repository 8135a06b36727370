package vt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsole struct {
	calls  []string
	kbMode int
	mode   int
	closed bool

	failOn string
}

func (f *fakeConsole) step(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (f *fakeConsole) Activate(n int) error { return f.step("activate") }
func (f *fakeConsole) WaitActive(n int) error { return f.step("wait") }

func (f *fakeConsole) KeyboardMode() (int, error) {
	return f.kbMode, f.step("get_kb")
}

func (f *fakeConsole) SetKeyboardMode(mode int) error {
	if err := f.step("set_kb"); err != nil {
		return err
	}
	f.kbMode = mode
	return nil
}

func (f *fakeConsole) SetMode(mode int) error {
	if err := f.step("set_mode"); err != nil {
		return err
	}
	f.mode = mode
	return nil
}

func (f *fakeConsole) Close() error {
	f.closed = true
	return f.step("close")
}

func stubTarget(t *testing.T, attached int, free int) {
	t.Helper()
	oldAttached, oldQuery := attachedVTFunc, openQueryFunc
	t.Cleanup(func() { attachedVTFunc, openQueryFunc = oldAttached, oldQuery })

	attachedVTFunc = func() (int, bool) { return attached, attached > 0 }
	openQueryFunc = func(string) (int, error) { return free, nil }
}

func TestTarget(t *testing.T) {
	tests := []struct {
		name     string
		override int
		attached int
		free     int
		want     int
		wantErr  error
	}{
		{"override wins", 5, 2, 7, 5, nil},
		{"attached terminal", 0, 2, 7, 2, nil},
		{"first free", 0, 0, 7, 7, nil},
		{"none free", 0, 0, -1, -1, ErrNoFreeVT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubTarget(t, tt.attached, tt.free)
			got, err := Target(tt.override)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargetQueryFailure(t *testing.T) {
	stubTarget(t, 0, 0)
	openQueryFunc = func(string) (int, error) { return -1, errors.New("no console") }

	_, err := Target(0)
	assert.ErrorIs(t, err, ErrNoFreeVT)
}

func TestSetupAndRestore(t *testing.T) {
	c := &fakeConsole{kbMode: 3}

	term, err := setup(4, c)
	require.NoError(t, err)
	assert.Equal(t, 4, term.Number())
	assert.Equal(t, KeyboardOff, c.kbMode)
	assert.Equal(t, ModeGraphics, c.mode)
	assert.Equal(t, []string{"activate", "wait", "get_kb", "set_kb", "set_mode"}, c.calls)

	require.NoError(t, term.Restore())
	assert.Equal(t, 3, c.kbMode)
	assert.Equal(t, ModeText, c.mode)
	assert.True(t, c.closed)

	// Idempotent.
	c.calls = nil
	assert.NoError(t, term.Restore())
	assert.Empty(t, c.calls)
}

func TestSetupUnwinds(t *testing.T) {
	tests := []struct {
		failOn     string
		restoresKb bool
	}{
		{"activate", false},
		{"wait", false},
		{"get_kb", false},
		{"set_kb", false},
		{"set_mode", true},
	}
	for _, tt := range tests {
		t.Run(tt.failOn, func(t *testing.T) {
			c := &fakeConsole{kbMode: 3, failOn: tt.failOn}

			term, err := setup(4, c)
			assert.Nil(t, term)
			assert.Error(t, err)
			assert.True(t, c.closed)
			assert.Equal(t, 3, c.kbMode)
			if tt.restoresKb {
				assert.Contains(t, c.calls[len(c.calls)-2:], "set_kb")
			}
		})
	}
}

func TestSetupOpensTargetConsole(t *testing.T) {
	stubTarget(t, 0, 0)
	old := openConsoleFunc
	t.Cleanup(func() { openConsoleFunc = old })

	c := &fakeConsole{}
	var opened string
	openConsoleFunc = func(path string) (Console, error) {
		opened = path
		return c, nil
	}

	term, err := Setup(9)
	require.NoError(t, err)
	assert.Equal(t, "/dev/tty9", opened)
	assert.Equal(t, 9, term.Number())
}

func TestRestoreNil(t *testing.T) {
	var term *Terminal
	assert.NoError(t, term.Restore())
	assert.Zero(t, term.Number())
}
