package buffer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/helixml/scanout/api/pkg/drm"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// DMA_BUF_IOCTL_SYNC = _IOW('b', 0, struct dma_buf_sync)
const ioctlDMABufSync = 0x40086200

const (
	dmaBufSyncRead  = 1 << 0
	dmaBufSyncWrite = 1 << 1
	dmaBufSyncRW    = dmaBufSyncRead | dmaBufSyncWrite
	dmaBufSyncStart = 0 << 2
	dmaBufSyncEnd   = 1 << 2
)

type dmaBufSync struct {
	Flags uint64
}

// byte offsets of the colour channels within a 32-bit pixel
type channelLayout struct {
	r, g, b, a int // a < 0 means the fourth byte is padding
}

var layouts = map[uint32]channelLayout{
	drm.FormatXRGB8888: {r: 2, g: 1, b: 0, a: -1},
	drm.FormatARGB8888: {r: 2, g: 1, b: 0, a: 3},
	drm.FormatXBGR8888: {r: 0, g: 1, b: 2, a: -1},
	drm.FormatABGR8888: {r: 0, g: 1, b: 2, a: 3},
}

// Mapping is a CPU mapping of plane 0 of a linear buffer through its
// DMA-BUF fd. It implements draw.Image. Bracket access with Begin and End.
type Mapping struct {
	fd     int
	data   []byte
	pix    []byte
	stride int
	width  int
	height int
	layout channelLayout
	noSync bool
}

// Map maps the buffer for CPU access. The mapping is cached and released
// with the pool.
func (b *Buffer) Map() (*Mapping, error) {
	if b.mapping != nil {
		return b.mapping, nil
	}
	if !b.linear {
		return nil, fmt.Errorf("buffer with modifier %#x is not linear", b.Modifier)
	}
	layout, ok := layouts[b.Format]
	if !ok {
		return nil, fmt.Errorf("CPU access to format %s not supported", drm.FormatName(b.Format))
	}

	p := b.Planes[0]
	if p.FD < 0 {
		return nil, errors.New("buffer is not exported")
	}
	size := int(p.Offset) + int(p.Pitch)*int(b.Height)
	data, err := unix.Mmap(p.FD, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap dma-buf: %w", err)
	}

	m := &Mapping{
		fd:     p.FD,
		data:   data,
		pix:    data[p.Offset:],
		stride: int(p.Pitch),
		width:  int(b.Width),
		height: int(b.Height),
		layout: layout,
	}
	b.mapping = m

	log.Debug().
		Uint32("fb_id", b.FbID).
		Str("size", humanize.IBytes(uint64(size))).
		Msg("Mapped buffer")
	return m, nil
}

// Mapping returns the cached mapping, or nil.
func (b *Buffer) Mapping() *Mapping {
	return b.mapping
}

func (m *Mapping) sync(flags uint64) error {
	if m.noSync {
		return nil
	}
	req := dmaBufSync{Flags: flags}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(m.fd), ioctlDMABufSync, uintptr(unsafe.Pointer(&req)))
	switch errno {
	case 0:
		return nil
	case unix.ENOTTY:
		// Not a dma-buf exporter with cache management.
		log.Debug().Int("fd", m.fd).Msg("DMA-BUF sync not supported, skipping")
		m.noSync = true
		return nil
	default:
		return fmt.Errorf("DMA_BUF_IOCTL_SYNC: %w", errno)
	}
}

// Begin starts a CPU read/write access window.
func (m *Mapping) Begin() error {
	return m.sync(dmaBufSyncStart | dmaBufSyncRW)
}

// End closes the access window opened by Begin.
func (m *Mapping) End() error {
	return m.sync(dmaBufSyncEnd | dmaBufSyncRW)
}

// Unmap releases the mapping. Safe on nil and when called twice.
func (m *Mapping) Unmap() error {
	if m == nil || m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data, m.pix = nil, nil
	return err
}

func (m *Mapping) ColorModel() color.Model { return color.RGBAModel }

func (m *Mapping) Bounds() image.Rectangle { return image.Rect(0, 0, m.width, m.height) }

func (m *Mapping) offset(x, y int) int { return y*m.stride + x*4 }

func (m *Mapping) At(x, y int) color.Color {
	if !image.Pt(x, y).In(m.Bounds()) {
		return color.RGBA{}
	}
	px := m.pix[m.offset(x, y):]
	c := color.RGBA{R: px[m.layout.r], G: px[m.layout.g], B: px[m.layout.b], A: 0xff}
	if m.layout.a >= 0 {
		c.A = px[m.layout.a]
	}
	return c
}

func (m *Mapping) Set(x, y int, c color.Color) {
	if !image.Pt(x, y).In(m.Bounds()) {
		return
	}
	m.put(m.offset(x, y), color.RGBAModel.Convert(c).(color.RGBA))
}

func (m *Mapping) put(i int, c color.RGBA) {
	px := m.pix[i : i+4 : i+4]
	px[m.layout.r] = c.R
	px[m.layout.g] = c.G
	px[m.layout.b] = c.B
	if m.layout.a >= 0 {
		px[m.layout.a] = c.A
	} else {
		px[6-m.layout.r-m.layout.g-m.layout.b] = 0xff
	}
}

// Fill sets every pixel to c.
func (m *Mapping) Fill(c color.Color) {
	if c == nil {
		c = color.Black
	}
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	row := m.pix[:m.width*4]
	for x := 0; x < m.width; x++ {
		m.put(x*4, rgba)
	}
	for y := 1; y < m.height; y++ {
		copy(m.pix[m.offset(0, y):], row)
	}
}

// Unmap drops the cached CPU mapping, if any.
func (b *Buffer) Unmap() error {
	err := b.mapping.Unmap()
	b.mapping = nil
	return err
}
