package drm

import (
	"fmt"
	"strconv"
	"strings"
)

// Fourcc builds a DRM pixel format code from its four characters.
func Fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Pixel formats (drm_fourcc.h)
var (
	FormatXRGB8888 = Fourcc('X', 'R', '2', '4')
	FormatARGB8888 = Fourcc('A', 'R', '2', '4')
	FormatXBGR8888 = Fourcc('X', 'B', '2', '4')
	FormatABGR8888 = Fourcc('A', 'B', '2', '4')
	FormatRGB565   = Fourcc('R', 'G', '1', '6')
)

// Format modifiers
const (
	ModifierLinear  uint64 = 0
	ModifierInvalid uint64 = 0x00ffffffffffffff
)

type formatInfo struct {
	name  string
	depth uint8
	bpp   uint8
}

var formats = map[uint32]formatInfo{
	FormatXRGB8888: {"XRGB8888", 24, 32},
	FormatARGB8888: {"ARGB8888", 32, 32},
	FormatXBGR8888: {"XBGR8888", 24, 32},
	FormatABGR8888: {"ABGR8888", 32, 32},
	FormatRGB565:   {"RGB565", 16, 16},
}

// ParseFormat resolves a format name such as "XRGB8888".
func ParseFormat(name string) (uint32, error) {
	for code, info := range formats {
		if strings.EqualFold(info.name, name) {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unsupported pixel format %q", name)
}

// FormatName returns the name of a known format, or its four characters.
func FormatName(format uint32) string {
	if info, ok := formats[format]; ok {
		return info.name
	}
	return string([]byte{byte(format), byte(format >> 8), byte(format >> 16), byte(format >> 24)})
}

// FormatDepthBpp returns the legacy depth and bits per pixel of format,
// as used by AddFB. ok is false for formats with no legacy equivalent.
func FormatDepthBpp(format uint32) (depth, bpp uint8, ok bool) {
	info, ok := formats[format]
	return info.depth, info.bpp, ok
}

// ParseModifiers parses a comma separated modifier list. Entries are
// "linear", "invalid", hex with a 0x prefix, or decimal.
func ParseModifiers(s string) ([]uint64, error) {
	var out []uint64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		switch strings.ToLower(field) {
		case "":
			continue
		case "linear":
			out = append(out, ModifierLinear)
		case "invalid":
			out = append(out, ModifierInvalid)
		default:
			v, err := strconv.ParseUint(field, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid modifier %q: %w", field, err)
			}
			out = append(out, v)
		}
	}
	return out, nil
}
