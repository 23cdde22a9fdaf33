package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultColor is the foreground color assumed when a source carries none.
const DefaultColor = "#000000"

func expandHex(hex string) string {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) == 3 {
		var b strings.Builder
		for _, c := range hex {
			b.WriteRune(c)
			b.WriteRune(c)
		}
		return b.String()
	}
	return hex
}

// HexToRGB parses "#rrggbb", "rrggbb" or the short "#rgb" form.
func HexToRGB(hex string) (r, g, b uint8, err error) {
	h := expandHex(hex)
	if len(h) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", hex)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}

// RGBToHex formats clamped channel values as "#rrggbb".
func RGBToHex(r, g, b int) string {
	return fmt.Sprintf("#%02x%02x%02x", clampByte(r), clampByte(g), clampByte(b))
}

func clampByte(v int) int {
	return max(0, min(255, v))
}

// IntToHex converts a packed 0xRRGGBB integer.
func IntToHex(c int) string {
	return RGBToHex((c>>16)&0xFF, (c>>8)&0xFF, c&0xFF)
}

// HexToInt is the inverse of IntToHex.
func HexToInt(hex string) (int, error) {
	r, g, b, err := HexToRGB(hex)
	if err != nil {
		return 0, err
	}
	return int(r)<<16 | int(g)<<8 | int(b), nil
}

// ColorDistance is the Euclidean distance in RGB space, 0 for equal colors
// and about 441.67 between black and white.
func ColorDistance(a, b string) (float64, error) {
	r1, g1, b1, err := HexToRGB(a)
	if err != nil {
		return 0, err
	}
	r2, g2, b2, err := HexToRGB(b)
	if err != nil {
		return 0, err
	}
	dr := float64(r2) - float64(r1)
	dg := float64(g2) - float64(g1)
	db := float64(b2) - float64(b1)
	return math.Sqrt(dr*dr + dg*dg + db*db), nil
}

// IsDarkColor reports whether the luminance 0.299R+0.587G+0.114B is below 128.
func IsDarkColor(hex string) (bool, error) {
	r, g, b, err := HexToRGB(hex)
	if err != nil {
		return false, err
	}
	lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	return lum < 128, nil
}

// NormalizeColor lowercases a hex color, expands the short form and adds
// the "#" prefix. It is idempotent.
func NormalizeColor(c string) string {
	return "#" + strings.ToLower(expandHex(strings.TrimSpace(c)))
}
