package vision

import "image"

// Mask is a binary image. Coordinates start at (0, 0).
type Mask struct {
	W, H int
	bits []bool
}

// NewMask returns an all-background mask of the given size.
func NewMask(w, h int) *Mask {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Mask{W: w, H: h, bits: make([]bool, w*h)}
}

// At reports whether (x, y) is foreground. Out-of-bounds points are
// background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.bits[y*m.W+x]
}

// Set marks (x, y) as foreground or background.
func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return
	}
	m.bits[y*m.W+x] = v
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// FillRect marks every pixel of r as foreground.
func (m *Mask) FillRect(r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, m.W, m.H))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.bits[y*m.W+x] = true
		}
	}
}

// FillFunc marks every pixel for which inside returns true.
func (m *Mask) FillFunc(inside func(x, y int) bool) {
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if inside(x, y) {
				m.bits[y*m.W+x] = true
			}
		}
	}
}
