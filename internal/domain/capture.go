package domain

import "time"

// Point is a location in image pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Capture records one classification attempt for a round. Captures never
// change round or wager state.
type Capture struct {
	ID             string    `json:"id"`
	RoundID        string    `json:"round_id"`
	Verdict        Verdict   `json:"verdict"`
	Centroid       *Point    `json:"centroid,omitempty"`
	MarkerVertices int       `json:"marker_vertices"`
	ZonesFound     []Zone    `json:"zones_found"`
	ImagePath      string    `json:"image_path,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}
