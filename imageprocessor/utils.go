package imageprocessor

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"pacbedthickness/types"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Try to load an image using Go's image packages
func tryGoImagePackages(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// Convert a Go image to a single channel OpenCV Mat
func gocvMatFromGoImage(img image.Image) (gocv.Mat, error) {
	gray, ok := img.(*image.Gray)
	if !ok {
		b := img.Bounds()
		gray = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	}
	return gocv.ImageGrayToMatGray(gray)
}

// toGray8 returns a continuous single channel 8-bit copy of src
func toGray8(src gocv.Mat) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty image")
	}

	gray := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&gray)
	case 3:
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src, &gray, gocv.ColorBGRAToGray)
	default:
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d", src.Channels())
	}

	if gray.Type() == gocv.MatTypeCV8UC1 {
		return gray, nil
	}

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Normalize(gray, &scaled, 0, 255, gocv.NormMinMax)
	gray.Close()

	out := gocv.NewMat()
	scaled.ConvertTo(&out, gocv.MatTypeCV8U)
	return out, nil
}

// MatToGrayscale copies an 8-bit single channel Mat into a Go grid
func MatToGrayscale(m gocv.Mat) (types.Grayscale, error) {
	gray, err := toGray8(m)
	if err != nil {
		return types.Grayscale{}, err
	}
	defer gray.Close()

	return types.Grayscale{
		Width:  gray.Cols(),
		Height: gray.Rows(),
		Pix:    gray.ToBytes(),
	}, nil
}

// GrayscaleToMat builds a Mat over a copy of the grid pixels
func GrayscaleToMat(g types.Grayscale) (gocv.Mat, error) {
	if len(g.Pix) != g.Width*g.Height {
		return gocv.NewMat(), fmt.Errorf("grid of %dx%d has %d pixels", g.Width, g.Height, len(g.Pix))
	}
	pix := make([]byte, len(g.Pix))
	copy(pix, g.Pix)
	return gocv.NewMatFromBytes(g.Height, g.Width, gocv.MatTypeCV8U, pix)
}

// Check if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Check if a file exists and has content
func fileHasContent(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
