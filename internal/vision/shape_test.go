package vision

import (
	"errors"
	"image"
	"math"
	"testing"
)

func squareContour(t *testing.T, r image.Rectangle) Contour {
	t.Helper()
	m := NewMask(r.Max.X+10, r.Max.Y+10)
	m.FillRect(r)
	c, ok := LargestContour(m, 0)
	if !ok {
		t.Fatalf("no contour for %v", r)
	}
	return c
}

// regularPolygon returns a densely sampled outline of a regular n-gon whose
// first corner sits at angle phase (radians) from the +X axis.
func regularPolygon(n int, cx, cy, radius, phase float64) Contour {
	var out Contour
	for i := 0; i < n; i++ {
		a0 := phase + 2*math.Pi*float64(i)/float64(n)
		a1 := phase + 2*math.Pi*float64(i+1)/float64(n)
		x0, y0 := cx+radius*math.Cos(a0), cy+radius*math.Sin(a0)
		x1, y1 := cx+radius*math.Cos(a1), cy+radius*math.Sin(a1)
		steps := int(math.Hypot(x1-x0, y1-y0))
		for s := 0; s < steps; s++ {
			f := float64(s) / float64(steps)
			out = append(out, image.Pt(
				int(math.Round(x0+(x1-x0)*f)),
				int(math.Round(y0+(y1-y0)*f)),
			))
		}
	}
	return out
}

func TestValidateMarkerAcceptsSquare(t *testing.T) {
	c := squareContour(t, image.Rect(10, 10, 30, 30))

	shape, err := ValidateMarker(c, DefaultEpsilonRatio)
	if err != nil {
		t.Fatalf("square rejected: %v", err)
	}
	if shape.Vertices != 4 {
		t.Fatalf("vertices = %d, want 4", shape.Vertices)
	}
	if math.Abs(shape.Centroid.X-19.5) > 1e-9 || math.Abs(shape.Centroid.Y-19.5) > 1e-9 {
		t.Fatalf("centroid = %+v, want (19.5, 19.5)", shape.Centroid)
	}
}

func TestValidateMarkerRejectsOtherPolygons(t *testing.T) {
	tri := NewMask(60, 60)
	tri.FillFunc(func(x, y int) bool {
		return x >= 5 && y >= 5 && y <= 45 && x <= y
	})
	triangle, ok := LargestContour(tri, 0)
	if !ok {
		t.Fatalf("no triangle contour")
	}

	tests := []struct {
		name     string
		contour  Contour
		vertices int
	}{
		{"triangle", triangle, 3},
		{"pentagon", regularPolygon(5, 200, 200, 100, 0.3), 5},
		// With a corner on the +X axis the first split chord runs parallel
		// to a far edge, so an edge point survives as a sixth vertex. The
		// count is still not four.
		{"pentagon flat chord", regularPolygon(5, 200, 200, 100, 0), 6},
		{"hexagon", regularPolygon(6, 200, 200, 100, 0), 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, err := ValidateMarker(tt.contour, DefaultEpsilonRatio)
			if !errors.Is(err, ErrVertexCount) {
				t.Fatalf("err = %v, want ErrVertexCount", err)
			}
			if shape.Vertices != tt.vertices {
				t.Fatalf("vertices = %d, want %d", shape.Vertices, tt.vertices)
			}
		})
	}
}

func TestValidateMarkerRejectsDegenerate(t *testing.T) {
	line := Contour{{0, 0}, {5, 0}, {10, 0}, {5, 0}}
	if _, err := ValidateMarker(line, DefaultEpsilonRatio); !errors.Is(err, ErrDegenerateContour) {
		t.Fatalf("err = %v, want ErrDegenerateContour", err)
	}
	if _, err := ValidateMarker(nil, DefaultEpsilonRatio); !errors.Is(err, ErrNoContour) {
		t.Fatalf("err = %v, want ErrNoContour", err)
	}
}

func TestPolygonMomentsCentroid(t *testing.T) {
	rect := Contour{{0, 0}, {10, 0}, {10, 4}, {0, 4}}
	m := PolygonMoments(rect)
	if m.M00 != 40 {
		t.Fatalf("m00 = %v, want 40", m.M00)
	}
	c, ok := m.Centroid()
	if !ok || c.X != 5 || c.Y != 2 {
		t.Fatalf("centroid = %+v ok=%v, want (5, 2)", c, ok)
	}

	// Orientation does not move the centroid.
	rev := Contour{{0, 4}, {10, 4}, {10, 0}, {0, 0}}
	c2, _ := PolygonMoments(rev).Centroid()
	if c2 != c {
		t.Fatalf("reversed centroid = %+v, want %+v", c2, c)
	}
}

func TestSimplifyKeepsCornersOfSquare(t *testing.T) {
	c := squareContour(t, image.Rect(0, 0, 50, 50))
	approx := Simplify(c, 0.04*c.Perimeter())
	want := map[image.Point]bool{{0, 0}: true, {49, 0}: true, {49, 49}: true, {0, 49}: true}
	if len(approx) != 4 {
		t.Fatalf("approx = %v", approx)
	}
	for _, p := range approx {
		if !want[p] {
			t.Fatalf("unexpected vertex %v in %v", p, approx)
		}
	}
}
