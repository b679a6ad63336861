// Package vision classifies the resting zone of the marker from a single
// still image of the board. The pipeline is color segmentation, external
// contour extraction, marker shape validation and innermost-first
// point-in-polygon classification.
//
// Colors use the 8-bit HSV convention: hue in [0,180), saturation and
// value in [0,255].
package vision

import (
	"fmt"
	"image/color"
)

// MaxHue is the exclusive upper bound of the hue axis.
const MaxHue = 180

// HSV is a pixel in 8-bit hue-saturation-value space.
type HSV struct {
	H, S, V uint8
}

// ToHSV converts an 8-bit RGB triple.
func ToHSV(r, g, b uint8) HSV {
	rf, gf, bf := float64(r), float64(g), float64(b)
	maxC := max(rf, gf, bf)
	minC := min(rf, gf, bf)
	delta := maxC - minC

	var s float64
	if maxC > 0 {
		s = 255 * delta / maxC
	}

	var h float64
	if delta > 0 {
		switch maxC {
		case rf:
			h = 60 * (gf - bf) / delta
		case gf:
			h = 120 + 60*(bf-rf)/delta
		default:
			h = 240 + 60*(rf-gf)/delta
		}
		if h < 0 {
			h += 360
		}
	}

	hue := int(h/2 + 0.5)
	if hue >= MaxHue {
		hue -= MaxHue
	}
	return HSV{H: uint8(hue), S: uint8(s + 0.5), V: uint8(maxC)}
}

// ColorToHSV converts any color.Color.
func ColorToHSV(c color.Color) HSV {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return ToHSV(n.R, n.G, n.B)
}

// Range is an inclusive box in HSV space. A range whose lower hue exceeds its
// upper hue wraps around the hue axis.
type Range struct {
	Lower HSV
	Upper HSV
}

// Wraps reports whether the hue interval crosses the end of the hue axis.
func (r Range) Wraps() bool {
	return r.Lower.H > r.Upper.H
}

// Split returns r as one or two non-wrapping ranges.
func (r Range) Split() []Range {
	if !r.Wraps() {
		return []Range{r}
	}
	high := r
	high.Upper.H = MaxHue - 1
	low := r
	low.Lower.H = 0
	return []Range{high, low}
}

func (r Range) contains(p HSV) bool {
	return p.H >= r.Lower.H && p.H <= r.Upper.H &&
		p.S >= r.Lower.S && p.S <= r.Upper.S &&
		p.V >= r.Lower.V && p.V <= r.Upper.V
}

// Band is a union of non-wrapping ranges.
type Band []Range

// NewBand builds a band from ranges, splitting any that wrap the hue axis.
func NewBand(ranges ...Range) Band {
	var b Band
	for _, r := range ranges {
		b = append(b, r.Split()...)
	}
	return b
}

// RangeFromBounds builds a range from [h, s, v] lower and upper bounds. Hue
// bounds of 180 are clamped to 179.
func RangeFromBounds(lower, upper []int) (Range, error) {
	lo, err := hsvFromSlice(lower)
	if err != nil {
		return Range{}, fmt.Errorf("vision: lower bound: %w", err)
	}
	hi, err := hsvFromSlice(upper)
	if err != nil {
		return Range{}, fmt.Errorf("vision: upper bound: %w", err)
	}
	return Range{Lower: lo, Upper: hi}, nil
}

func hsvFromSlice(v []int) (HSV, error) {
	if len(v) != 3 {
		return HSV{}, fmt.Errorf("want [h, s, v], got %d values", len(v))
	}
	h, s, val := v[0], v[1], v[2]
	if h < 0 || h > MaxHue {
		return HSV{}, fmt.Errorf("hue %d out of range 0-%d", h, MaxHue)
	}
	if s < 0 || s > 255 || val < 0 || val > 255 {
		return HSV{}, fmt.Errorf("saturation/value out of range 0-255: %v", v)
	}
	if h == MaxHue {
		h = MaxHue - 1
	}
	return HSV{H: uint8(h), S: uint8(s), V: uint8(val)}, nil
}

// Contains reports whether p falls in any range of the band.
func (b Band) Contains(p HSV) bool {
	for _, r := range b {
		if r.contains(p) {
			return true
		}
	}
	return false
}
