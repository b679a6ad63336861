package vision

import (
	"image"
	"math"
)

// Default minimum enclosed areas, in square pixels.
const (
	DefaultZoneMinArea   = 500
	DefaultMarkerMinArea = 300
)

// Contour is a closed boundary through pixel centers. The last point
// connects back to the first.
type Contour []image.Point

// Area returns the enclosed area (shoelace formula, always non-negative).
func (c Contour) Area() float64 {
	return math.Abs(c.signedArea())
}

func (c Contour) signedArea() float64 {
	n := len(c)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		p, q := c[i], c[(i+1)%n]
		sum += float64(p.X*q.Y - q.X*p.Y)
	}
	return sum / 2
}

// Perimeter returns the length of the closed boundary.
func (c Contour) Perimeter() float64 {
	n := len(c)
	if n < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		p, q := c[i], c[(i+1)%n]
		sum += math.Hypot(float64(q.X-p.X), float64(q.Y-p.Y))
	}
	return sum
}

// Contains reports whether p lies inside the contour or on its boundary.
func (c Contour) Contains(p Point) bool {
	return c.Test(p) >= 0
}

// Test returns +1 when p is strictly inside, 0 when it lies on the boundary
// and -1 when it is outside.
func (c Contour) Test(p Point) int {
	n := len(c)
	if n == 0 {
		return -1
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := toPoint(c[j]), toPoint(c[i])
		if onSegment(a, b, p) {
			return 0
		}
		if (b.Y > p.Y) != (a.Y > p.Y) {
			xCross := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	if inside {
		return 1
	}
	return -1
}

const geomEps = 1e-9

func onSegment(a, b, p Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > geomEps {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-geomEps && p.X <= math.Max(a.X, b.X)+geomEps &&
		p.Y >= math.Min(a.Y, b.Y)-geomEps && p.Y <= math.Max(a.Y, b.Y)+geomEps
}

// ring lists the 8 neighbours clockwise (y grows downward), starting west.
var ring = [8]image.Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

func ringIndex(d image.Point) int {
	for i, r := range ring {
		if r == d {
			return i
		}
	}
	return -1
}

// ExternalContours returns the outer border of every 8-connected foreground
// component, in raster discovery order. Holes are not reported.
func ExternalContours(m *Mask) []Contour {
	labels := make([]bool, m.W*m.H)
	var out []Contour
	var stack []image.Point

	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.At(x, y) || labels[y*m.W+x] {
				continue
			}

			// Flood the component so it is traced once.
			labels[y*m.W+x] = true
			stack = append(stack[:0], image.Pt(x, y))
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, d := range ring {
					q := p.Add(d)
					if m.At(q.X, q.Y) && !labels[q.Y*m.W+q.X] {
						labels[q.Y*m.W+q.X] = true
						stack = append(stack, q)
					}
				}
			}

			out = append(out, traceBorder(m, image.Pt(x, y)))
		}
	}
	return out
}

// traceBorder follows the outer border clockwise from start, which must be
// the first foreground pixel of its component in raster order.
func traceBorder(m *Mask, start image.Point) Contour {
	pts := Contour{start}
	cur := start
	back := 0 // west of start is background

	var first image.Point
	haveFirst := false
	pendingStart := false
	limit := 4*m.W*m.H + 8

	for step := 0; step < limit; step++ {
		next, nextBack, ok := nextClockwise(m, cur, back)
		if !ok {
			break // isolated pixel
		}
		if cur == start && haveFirst {
			if next == first {
				break
			}
			if pendingStart {
				pts = append(pts, start)
				pendingStart = false
			}
		}
		if !haveFirst {
			first = next
			haveFirst = true
		}

		if next == start {
			pendingStart = true
		} else {
			pts = append(pts, next)
		}
		cur, back = next, nextBack
	}
	return pts
}

// nextClockwise scans the neighbours of cur clockwise, starting just after
// the background neighbour at index back. It returns the first foreground
// neighbour and the index, relative to it, of the last background pixel seen.
func nextClockwise(m *Mask, cur image.Point, back int) (image.Point, int, bool) {
	for i := 1; i <= 8; i++ {
		d := (back + i) % 8
		n := cur.Add(ring[d])
		if !m.At(n.X, n.Y) {
			continue
		}
		prev := cur.Add(ring[(d+7)%8])
		return n, ringIndex(prev.Sub(n)), true
	}
	return image.Point{}, 0, false
}

// LargestContour returns the external contour with the largest enclosed
// area, provided that area exceeds minArea. Ties keep the first discovered.
func LargestContour(m *Mask, minArea float64) (Contour, bool) {
	var best Contour
	bestArea := -1.0
	for _, c := range ExternalContours(m) {
		if a := c.Area(); a > bestArea {
			best, bestArea = c, a
		}
	}
	if best == nil || bestArea <= minArea {
		return nil, false
	}
	return best, true
}
