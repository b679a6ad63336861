//go:build !gocv

package vision

// Backend names the image pipeline New builds.
const Backend = "pure-go"

// New returns the referee for this build.
func New(cfg Config) Classifier { return NewReferee(cfg) }
