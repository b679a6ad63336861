package vision

import (
	"image"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// ZoneContour is the extracted boundary of one zone.
type ZoneContour struct {
	Zone    domain.Zone
	Contour Contour
}

// ClassifyPoint returns the first zone, in the given order, whose contour
// contains p (boundary included). zones must be ordered innermost first.
// A point inside none of them, including when no zone was extracted at all,
// is OUTSIDE.
func ClassifyPoint(zones []ZoneContour, p Point) domain.Verdict {
	for _, z := range zones {
		if z.Contour.Contains(p) {
			return domain.VerdictFor(z.Zone)
		}
	}
	return domain.VerdictOutside
}

// Config tunes the referee pipeline.
type Config struct {
	BlurSigma     float64
	ZoneMinArea   float64
	MarkerMinArea float64
	EpsilonRatio  float64
	// Zones must be ordered innermost first.
	Zones  []ZoneBand
	Marker Band
}

// DefaultConfig returns the three-ring board the referee ships with. A
// CENTER zone is configured separately for boards that have one; its color
// must not be a blend of two neighbouring rings, or the blurred seam between
// them is picked up as a closed ring.
func DefaultConfig() Config {
	return Config{
		BlurSigma:     DefaultBlurSigma,
		ZoneMinArea:   DefaultZoneMinArea,
		MarkerMinArea: DefaultMarkerMinArea,
		EpsilonRatio:  DefaultEpsilonRatio,
		Zones: []ZoneBand{
			{Zone: domain.ZoneGreen, Band: NewBand(Range{HSV{40, 70, 70}, HSV{80, 255, 255}})},
			{Zone: domain.ZoneRed, Band: NewBand(
				Range{HSV{0, 70, 70}, HSV{10, 255, 255}},
				Range{HSV{170, 70, 70}, HSV{179, 255, 255}},
			)},
			{Zone: domain.ZoneBlue, Band: NewBand(Range{HSV{90, 70, 70}, HSV{130, 255, 255}})},
		},
		Marker: NewBand(Range{HSV{0, 0, 0}, HSV{179, 255, 60}}),
	}
}

// Detection is the full outcome of classifying one image.
type Detection struct {
	Verdict        domain.Verdict
	Centroid       *Point
	MarkerVertices int
	ZonesFound     []domain.Zone
	// Reason is set when the marker was rejected.
	Reason error
}

// Referee composes segmentation, contour extraction, marker validation and
// zone classification. It holds no mutable state.
type Referee struct {
	cfg       Config
	segmenter *Segmenter
}

// NewReferee creates a Referee from cfg.
func NewReferee(cfg Config) *Referee {
	return &Referee{
		cfg:       cfg,
		segmenter: NewSegmenter(cfg.BlurSigma, cfg.Zones, cfg.Marker),
	}
}

// Classify determines which zone the marker in img rests in.
func (r *Referee) Classify(img image.Image) Detection {
	seg := r.segmenter.Segment(img)

	// Zones whose contour cannot be extracted are treated as absent.
	var zones []ZoneContour
	var found []domain.Zone
	for _, zm := range seg.Zones {
		c, ok := LargestContour(zm.Mask, r.cfg.ZoneMinArea)
		if !ok {
			continue
		}
		zones = append(zones, ZoneContour{Zone: zm.Zone, Contour: c})
		found = append(found, zm.Zone)
	}

	det := Detection{ZonesFound: found}

	marker, ok := LargestContour(seg.Marker, r.cfg.MarkerMinArea)
	if !ok {
		det.Verdict = domain.VerdictNoMarker
		det.Reason = ErrNoContour
		return det
	}

	shape, err := ValidateMarker(marker, r.cfg.EpsilonRatio)
	det.MarkerVertices = shape.Vertices
	if err != nil {
		det.Verdict = domain.VerdictNoMarker
		det.Reason = err
		return det
	}

	centroid := shape.Centroid
	det.Centroid = &centroid
	det.Verdict = ClassifyPoint(zones, centroid)
	return det
}
