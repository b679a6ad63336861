package vision

import (
	"errors"
	"image"
	"math"
)

// DefaultEpsilonRatio is the simplification tolerance as a fraction of the
// contour perimeter.
const DefaultEpsilonRatio = 0.04

// MarkerVertices is the vertex count the marker silhouette reduces to.
const MarkerVertices = 4

// Point is a location in image pixel coordinates.
type Point struct {
	X, Y float64
}

func toPoint(p image.Point) Point {
	return Point{X: float64(p.X), Y: float64(p.Y)}
}

// Rejection reasons reported by ValidateMarker.
var (
	ErrNoContour         = errors.New("vision: no marker contour")
	ErrDegenerateContour = errors.New("vision: marker contour has zero area")
	ErrVertexCount       = errors.New("vision: marker outline is not a quadrilateral")
)

// Moments holds the zeroth and first spatial moments of a filled polygon.
type Moments struct {
	M00, M10, M01 float64
}

// PolygonMoments computes the moments of the region enclosed by c using
// Green's theorem.
func PolygonMoments(c Contour) Moments {
	n := len(c)
	var m Moments
	if n < 3 {
		return m
	}
	for i := 0; i < n; i++ {
		x0, y0 := float64(c[i].X), float64(c[i].Y)
		x1, y1 := float64(c[(i+1)%n].X), float64(c[(i+1)%n].Y)
		cross := x0*y1 - x1*y0
		m.M00 += cross
		m.M10 += (x0 + x1) * cross
		m.M01 += (y0 + y1) * cross
	}
	m.M00 /= 2
	m.M10 /= 6
	m.M01 /= 6
	return m
}

// Centroid returns the centroid of the filled region, or false when the
// region has no area.
func (m Moments) Centroid() (Point, bool) {
	if math.Abs(m.M00) < geomEps {
		return Point{}, false
	}
	return Point{X: m.M10 / m.M00, Y: m.M01 / m.M00}, true
}

// MarkerShape is the outcome of validating a marker contour.
type MarkerShape struct {
	Centroid Point
	Vertices int
}

// ValidateMarker accepts c only when its simplified outline has exactly four
// vertices and it encloses a non-zero area. The returned shape carries the
// vertex count even when validation fails.
func ValidateMarker(c Contour, epsilonRatio float64) (MarkerShape, error) {
	if len(c) == 0 {
		return MarkerShape{}, ErrNoContour
	}

	approx := Simplify(c, epsilonRatio*c.Perimeter())
	shape := MarkerShape{Vertices: len(approx)}

	centroid, ok := PolygonMoments(c).Centroid()
	if !ok {
		return shape, ErrDegenerateContour
	}
	shape.Centroid = centroid

	if shape.Vertices != MarkerVertices {
		return shape, ErrVertexCount
	}
	return shape, nil
}
