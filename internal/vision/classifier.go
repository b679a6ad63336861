package vision

import "image"

// Classifier decides which zone the marker in an image rests in. Referee is
// the pure-Go implementation; builds tagged gocv also provide CVReferee,
// backed by OpenCV.
type Classifier interface {
	Classify(img image.Image) Detection
}

var _ Classifier = (*Referee)(nil)
