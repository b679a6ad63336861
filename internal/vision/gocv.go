//go:build gocv

package vision

import (
	"image"
	"image/draw"

	"gocv.io/x/gocv"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

var _ Classifier = (*CVReferee)(nil)

// CVReferee runs the referee pipeline on OpenCV: Gaussian blur, BGR to HSV,
// inRange masks, external contours, approxPolyDP and pointPolygonTest. It
// accepts the same Config as Referee and holds no mutable state.
type CVReferee struct {
	cfg Config
}

// NewCVReferee creates a CVReferee from cfg.
func NewCVReferee(cfg Config) *CVReferee {
	return &CVReferee{cfg: cfg}
}

// Classify determines which zone the marker in img rests in.
func (r *CVReferee) Classify(img image.Image) Detection {
	frame, err := toBGR(img)
	if err != nil {
		return Detection{Verdict: domain.VerdictNoMarker, Reason: err}
	}
	defer frame.Close()

	if r.cfg.BlurSigma > 0 {
		gocv.GaussianBlur(frame, &frame, image.Pt(0, 0), r.cfg.BlurSigma, r.cfg.BlurSigma, gocv.BorderDefault)
	}
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	type zoneOutline struct {
		zone    domain.Zone
		contour gocv.PointVector
	}
	var zones []zoneOutline
	defer func() {
		for _, z := range zones {
			z.contour.Close()
		}
	}()

	var found []domain.Zone
	for _, zb := range r.cfg.Zones {
		mask := bandMask(hsv, zb.Band)
		c, ok := largestOutline(mask, r.cfg.ZoneMinArea)
		mask.Close()
		if !ok {
			continue
		}
		zones = append(zones, zoneOutline{zone: zb.Zone, contour: c})
		found = append(found, zb.Zone)
	}

	det := Detection{ZonesFound: found}

	markerMask := bandMask(hsv, r.cfg.Marker)
	defer markerMask.Close()
	marker, ok := largestOutline(markerMask, r.cfg.MarkerMinArea)
	if !ok {
		det.Verdict = domain.VerdictNoMarker
		det.Reason = ErrNoContour
		return det
	}
	defer marker.Close()

	approx := gocv.ApproxPolyDP(marker, r.cfg.EpsilonRatio*gocv.ArcLength(marker, true), true)
	det.MarkerVertices = approx.Size()
	approx.Close()

	// Contour moments, as cv::moments computes them for a point set.
	centroid, ok := PolygonMoments(Contour(marker.ToPoints())).Centroid()
	if !ok {
		det.Verdict = domain.VerdictNoMarker
		det.Reason = ErrDegenerateContour
		return det
	}
	if det.MarkerVertices != MarkerVertices {
		det.Verdict = domain.VerdictNoMarker
		det.Reason = ErrVertexCount
		return det
	}

	det.Centroid = &centroid
	det.Verdict = domain.VerdictOutside
	pt := image.Pt(int(centroid.X), int(centroid.Y))
	for _, z := range zones {
		if gocv.PointPolygonTest(z.contour, pt, false) >= 0 {
			det.Verdict = domain.VerdictFor(z.zone)
			break
		}
	}
	return det
}

// toBGR copies img into an 8-bit, 3-channel BGR Mat.
func toBGR(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)

	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer src.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(src, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

// bandMask thresholds hsv against every range of band and ORs the results.
// The caller closes the returned Mat.
func bandMask(hsv gocv.Mat, band Band) gocv.Mat {
	mask := gocv.Zeros(hsv.Rows(), hsv.Cols(), gocv.MatTypeCV8U)
	part := gocv.NewMat()
	defer part.Close()
	for _, rg := range band {
		lo := gocv.NewScalar(float64(rg.Lower.H), float64(rg.Lower.S), float64(rg.Lower.V), 0)
		hi := gocv.NewScalar(float64(rg.Upper.H), float64(rg.Upper.S), float64(rg.Upper.V), 0)
		gocv.InRangeWithScalar(hsv, lo, hi, &part)
		gocv.BitwiseOr(mask, part, &mask)
	}
	return mask
}

// largestOutline returns a copy of the external contour with the largest
// area, provided that area exceeds minArea. The caller closes it.
func largestOutline(mask gocv.Mat, minArea float64) (gocv.PointVector, bool) {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best, bestArea := -1, -1.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 || bestArea <= minArea {
		return gocv.PointVector{}, false
	}
	return gocv.NewPointVectorFromPoints(contours.At(best).ToPoints()), true
}
