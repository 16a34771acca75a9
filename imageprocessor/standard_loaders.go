package imageprocessor

import (
	"fmt"

	"pacbedthickness/logging"

	"gocv.io/x/gocv"
)

// BaseImageLoader provides common functionality for all image loaders
type BaseImageLoader struct {
	SupportedFormats []FormatType
}

// CanLoad checks if this loader supports the file's format
func (l *BaseImageLoader) CanLoad(path string) bool {
	format := GetFileFormat(path)
	for _, supported := range l.SupportedFormats {
		if format == supported {
			return fileExists(path)
		}
	}
	return false
}

// DefaultLoadImage reads the file with OpenCV and falls back to the Go
// decoders when OpenCV cannot handle it
func (l *BaseImageLoader) DefaultLoadImage(path string) (gocv.Mat, error) {
	if !fileExists(path) {
		return gocv.NewMat(), newImageLoadError("file does not exist", path)
	}

	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if !img.Empty() {
		return img, nil
	}
	img.Close()

	goImg, err := tryGoImagePackages(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return gocvMatFromGoImage(goImg)
}

// StandardImageLoader handles common image formats like JPEG, PNG, etc.
type StandardImageLoader struct {
	BaseImageLoader
}

// NewStandardImageLoader creates a new loader for standard image formats
func NewStandardImageLoader() *StandardImageLoader {
	return &StandardImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatJPEG,
				FormatPNG,
				FormatGIF,
				FormatBMP,
				FormatWEBP,
			},
		},
	}
}

// LoadImage loads a standard image format
func (l *StandardImageLoader) LoadImage(path string) (gocv.Mat, error) {
	return l.DefaultLoadImage(path)
}

// TiffImageLoader specializes in TIFF format loading
type TiffImageLoader struct {
	BaseImageLoader
}

// NewTiffImageLoader creates a new TIFF image loader
func NewTiffImageLoader() *TiffImageLoader {
	return &TiffImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{FormatTIFF},
		},
	}
}

// LoadImage loads a TIFF. Microscope TIFFs are often 16-bit or float; OpenCV
// reduces them to 8-bit grayscale, the Go decoder covers what OpenCV rejects.
func (l *TiffImageLoader) LoadImage(path string) (gocv.Mat, error) {
	img, err := l.DefaultLoadImage(path)
	if err != nil {
		logging.DebugLog("TIFF load failed for %s: %v", path, err)
		return img, err
	}
	return img, nil
}
