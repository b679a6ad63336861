//go:build gocv

package vision

// Backend names the image pipeline New builds.
const Backend = "opencv"

// New returns the referee for this build.
func New(cfg Config) Classifier { return NewCVReferee(cfg) }
