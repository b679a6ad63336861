package vision

import (
	"image"
	"math"
)

// Simplify approximates the closed contour c with a polygon whose vertices
// are a subset of c and whose edges stay within epsilon of the original
// boundary (Douglas-Peucker). The split points are a pair of mutually
// distant boundary points, which for convex shapes are always corners.
func Simplify(c Contour, epsilon float64) Contour {
	n := len(c)
	if n < 3 {
		out := make(Contour, n)
		copy(out, c)
		return out
	}

	a := farthestFrom(c, 0)
	b := farthestFrom(c, a)
	if a == b {
		return Contour{c[a]}
	}

	keep := make([]bool, n)
	keep[a], keep[b] = true, true
	dpMark(c, a, b, epsilon, keep)
	dpMark(c, b, a, epsilon, keep)

	// Emit in boundary order starting at a.
	out := make(Contour, 0, 8)
	for i := 0; i < n; i++ {
		idx := (a + i) % n
		if keep[idx] {
			out = append(out, c[idx])
		}
	}
	return out
}

func farthestFrom(c Contour, from int) int {
	best, bestD := from, -1.0
	p := c[from]
	for i, q := range c {
		dx, dy := float64(q.X-p.X), float64(q.Y-p.Y)
		if d := dx*dx + dy*dy; d > bestD {
			best, bestD = i, d
		}
	}
	return best
}

// dpMark walks the boundary from index i forward (wrapping) to index j and
// marks the points that must be kept.
func dpMark(c Contour, i, j int, epsilon float64, keep []bool) {
	n := len(c)
	span := (j - i + n) % n
	if span < 2 {
		return
	}
	p, q := c[i], c[j]
	maxD, maxK := -1.0, -1
	for s := 1; s < span; s++ {
		k := (i + s) % n
		if d := segmentDistance(c[k], p, q); d > maxD {
			maxD, maxK = d, k
		}
	}
	if maxD <= epsilon {
		return
	}
	keep[maxK] = true
	dpMark(c, i, maxK, epsilon, keep)
	dpMark(c, maxK, j, epsilon, keep)
}

// segmentDistance is the distance from p to the line through a and b, or to
// a itself when a and b coincide.
func segmentDistance(p, a, b image.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	px, py := float64(p.X-a.X), float64(p.Y-a.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return math.Hypot(px, py)
	}
	return math.Abs(dx*py-dy*px) / length
}
