package overlay

import (
	"image/color"
	"strconv"
	"strings"
)

var black = color.NRGBA{A: 0xff}

// ParseColor accepts #rgb, #rrggbb and #rrggbbaa. Anything else is black.
func ParseColor(s string) color.NRGBA {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		return black
	}
	hex := s[1:]
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "ff"
	case 6:
		hex += "ff"
	case 8:
	default:
		return black
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return black
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
}
