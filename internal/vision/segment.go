package vision

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// DefaultBlurSigma approximates an 11x11 Gaussian kernel.
const DefaultBlurSigma = 2.0

// ZoneBand maps a zone to the colors that identify it.
type ZoneBand struct {
	Zone domain.Zone
	Band Band
}

// Segmentation holds one mask per zone, in the order the zones were
// configured, and the marker mask.
type Segmentation struct {
	Zones  []ZoneMask
	Marker *Mask
}

// ZoneMask is a zone's thresholded mask.
type ZoneMask struct {
	Zone domain.Zone
	Mask *Mask
}

// Segmenter turns an image into per-zone and marker masks.
type Segmenter struct {
	sigma  float64
	zones  []ZoneBand
	marker Band
}

// NewSegmenter creates a Segmenter. A non-positive sigma disables smoothing.
func NewSegmenter(sigma float64, zones []ZoneBand, marker Band) *Segmenter {
	return &Segmenter{sigma: sigma, zones: zones, marker: marker}
}

// Segment smooths img and thresholds every pixel against each band.
func (s *Segmenter) Segment(img image.Image) Segmentation {
	var src *image.NRGBA
	if s.sigma > 0 {
		src = imaging.Blur(img, s.sigma)
	} else {
		src = imaging.Clone(img)
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := Segmentation{
		Zones:  make([]ZoneMask, len(s.zones)),
		Marker: NewMask(w, h),
	}
	for i, z := range s.zones {
		out.Zones[i] = ZoneMask{Zone: z.Zone, Mask: NewMask(w, h)}
	}

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			p := ToHSV(px[0], px[1], px[2])
			for i, z := range s.zones {
				if z.Band.Contains(p) {
					out.Zones[i].Mask.Set(x, y, true)
				}
			}
			if s.marker.Contains(p) {
				out.Marker.Set(x, y, true)
			}
		}
	}
	return out
}
