package faceswap

import "strings"

// Classifier decides whether a provider failure message means the
// source photo had no detectable face. Providers phrase this failure
// differently, so the default matches on known fragments; deployments
// facing a new provider can plug in their own.
type Classifier func(msg string) bool

var faceDetectionFragments = []string{
	"no face",
	"no_face",
	"face not found",
	"face not detected",
	"face_not_detected",
	"could not detect",
	"face detection failed",
	"missing face",
}

// DefaultClassifier matches the face-detection failure phrasings seen
// across swap providers.
func DefaultClassifier(msg string) bool {
	m := strings.ToLower(msg)
	for _, frag := range faceDetectionFragments {
		if strings.Contains(m, frag) {
			return true
		}
	}
	return false
}
