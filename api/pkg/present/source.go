package present

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
)

// Source produces the pixels of one frame.
type Source interface {
	Render(dst draw.Image) error
}

type filler interface {
	Fill(c color.Color)
}

func fill(dst draw.Image, c color.Color) {
	if f, ok := dst.(filler); ok {
		f.Fill(c)
		return
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// Solid fills every frame with one colour. A nil Color is black.
type Solid struct {
	Color color.Color
}

func (s Solid) Render(dst draw.Image) error {
	c := s.Color
	if c == nil {
		c = color.Black
	}
	fill(dst, c)
	return nil
}

// Cycle fills each frame with the next colour of a fixed list.
type Cycle struct {
	colors []color.Color
	next   int
}

// NewCycle returns a source that steps through colors, one per frame.
func NewCycle(colors ...color.Color) *Cycle {
	return &Cycle{colors: colors}
}

func (c *Cycle) Render(dst draw.Image) error {
	if len(c.colors) == 0 {
		return nil
	}
	fill(dst, c.colors[c.next])
	c.next = (c.next + 1) % len(c.colors)
	return nil
}

// ParseColor reads an opaque colour written as rrggbb, with or without a
// leading #.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("colour %q is not rrggbb", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
