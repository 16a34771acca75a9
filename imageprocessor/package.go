// Package imageprocessor loads micrographs and simulated patterns and
// normalizes them into the canonical frame used for matching.
package imageprocessor

import "gocv.io/x/gocv"

// ImageLoader is the interface that all image loaders must implement
type ImageLoader interface {
	// CanLoad checks if the loader can handle the given file
	CanLoad(path string) bool

	// LoadImage loads the file as a single channel 8-bit image
	LoadImage(path string) (gocv.Mat, error)
}
