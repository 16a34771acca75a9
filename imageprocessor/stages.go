package imageprocessor

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

var black = color.RGBA{0, 0, 0, 0}

// renderOnCanvas stretches src to the full intensity range, scales it to fit
// fill*canvas while keeping its aspect ratio and pads it with black to
// exactly canvasW x canvasH.
func renderOnCanvas(src gocv.Mat, canvasW, canvasH int, fill float64) gocv.Mat {
	stretched := gocv.NewMat()
	defer stretched.Close()
	gocv.Normalize(src, &stretched, 0, 255, gocv.NormMinMax)

	areaW := float64(canvasW) * fill
	areaH := float64(canvasH) * fill
	scale := math.Min(areaW/float64(src.Cols()), areaH/float64(src.Rows()))

	w := clampInt(int(math.Round(float64(src.Cols())*scale)), 1, canvasW)
	h := clampInt(int(math.Round(float64(src.Rows())*scale)), 1, canvasH)

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(stretched, &scaled, image.Point{X: w, Y: h}, 0, 0, gocv.InterpolationLinear)

	left := (canvasW - w) / 2
	top := (canvasH - h) / 2

	out := gocv.NewMat()
	gocv.CopyMakeBorder(scaled, &out, top, canvasH-h-top, left, canvasW-w-left, gocv.BorderConstant, black)
	return out
}

// renderAtWidth re-renders src at a fixed width with its own aspect ratio
func renderAtWidth(src gocv.Mat, width int) gocv.Mat {
	height := int(math.Round(float64(width) * float64(src.Rows()) / float64(src.Cols())))
	if height < 1 {
		height = 1
	}
	return renderOnCanvas(src, width, height, 1)
}

// PatternCentroid thresholds src and returns the centroid of the binary mask
// truncated to integer pixels. ok is false when the mask is empty.
func PatternCentroid(src gocv.Mat, threshold float64) (image.Point, bool) {
	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(src, &binary, float32(threshold), 255, gocv.ThresholdBinary)

	m := gocv.Moments(binary, false)
	if m["m00"] == 0 {
		return image.Point{}, false
	}
	return image.Point{
		X: int(m["m10"] / m["m00"]),
		Y: int(m["m01"] / m["m00"]),
	}, true
}

// CenterPattern cyclically shifts src so the centroid of its thresholded mask
// lands on the image midpoint. It returns ErrDegenerate for an empty mask.
func CenterPattern(src gocv.Mat, threshold float64) (gocv.Mat, image.Point, error) {
	centroid, ok := PatternCentroid(src, threshold)
	if !ok {
		return gocv.NewMat(), image.Point{}, ErrDegenerate
	}

	shift := image.Point{
		X: src.Cols()/2 - centroid.X,
		Y: src.Rows()/2 - centroid.Y,
	}

	rolled := Roll(src.ToBytes(), src.Cols(), src.Rows(), shift)
	out, err := gocv.NewMatFromBytes(src.Rows(), src.Cols(), gocv.MatTypeCV8U, rolled)
	if err != nil {
		return gocv.NewMat(), image.Point{}, err
	}
	return out, shift, nil
}

// Roll shifts a row-major grid with wrap-around, pixels leaving one edge
// re-enter on the opposite edge.
func Roll(pix []byte, width, height int, shift image.Point) []byte {
	out := make([]byte, len(pix))
	dx := mod(shift.X, width)
	dy := mod(shift.Y, height)
	for y := 0; y < height; y++ {
		dst := mod(y+dy, height) * width
		row := pix[y*width : (y+1)*width]
		for x, v := range row {
			out[dst+mod(x+dx, width)] = v
		}
	}
	return out
}

// cropCenter crops a size x size window around the image midpoint, clamped
// to the image bounds, and resizes it to exactly size x size.
func cropCenter(src gocv.Mat, size int) gocv.Mat {
	cx, cy := src.Cols()/2, src.Rows()/2
	half := size / 2

	rect := image.Rect(
		max(0, cx-half),
		max(0, cy-half),
		min(src.Cols(), cx+half),
		min(src.Rows(), cy+half),
	)

	region := src.Region(rect)
	defer region.Close()

	out := gocv.NewMat()
	gocv.Resize(region, &out, image.Point{X: size, Y: size}, 0, 0, gocv.InterpolationLinear)
	return out
}

// edgeOptions are the parameters of the orientation estimate
type edgeOptions struct {
	blurKernel int
	cannyLow   float64
	cannyHigh  float64
	tallOffset float64
}

// orientationAngle estimates the rotation correction in degrees from the
// ellipse fitted to the largest outer edge contour. found is false when no
// usable contour exists, the angle is then zero.
func orientationAngle(src gocv.Mat, opts edgeOptions) (angle float64, found bool) {
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(src, &blurred, image.Point{X: opts.blurKernel, Y: opts.blurKernel}, 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, float32(opts.cannyLow), float32(opts.cannyHigh))

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return 0, false
	}

	largest := 0
	largestArea := gocv.ContourArea(contours.At(0))
	for i := 1; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > largestArea {
			largest = i
			largestArea = area
		}
	}

	contour := contours.At(largest)
	// fitEllipse needs at least five points
	if contour.Size() < 5 {
		return 0, false
	}

	ellipse := gocv.FitEllipse(contour)
	angle = ellipse.Angle
	if tallerThanWide(ellipse, contour.ToPoints()) {
		angle += opts.tallOffset
	}
	return angle, true
}

// tallerThanWide reports whether the ellipse axis perpendicular to its angle
// is the longer one. gocv truncates the fitted axes to int; when they tie the
// contour's own second moments along those two directions decide.
func tallerThanWide(ellipse gocv.RotatedRect, contour []image.Point) bool {
	if ellipse.Height != ellipse.Width {
		return ellipse.Height > ellipse.Width
	}
	along, across, ok := axisSpread(contour, ellipse.Angle)
	return ok && across > along
}

// axisSpread returns the second central moments of the polygon area along
// the direction angle (degrees) and perpendicular to it. ok is false for a
// polygon without area.
func axisSpread(poly []image.Point, angle float64) (along, across float64, ok bool) {
	var m00, m10, m01, m20, m02, m11 float64
	n := len(poly)
	for i := 0; i < n; i++ {
		x0, y0 := float64(poly[i].X), float64(poly[i].Y)
		x1, y1 := float64(poly[(i+1)%n].X), float64(poly[(i+1)%n].Y)
		a := x0*y1 - x1*y0
		m00 += a
		m10 += (x0 + x1) * a
		m01 += (y0 + y1) * a
		m20 += (x0*x0 + x0*x1 + x1*x1) * a
		m02 += (y0*y0 + y0*y1 + y1*y1) * a
		m11 += (x0*y1 + 2*x0*y0 + 2*x1*y1 + x1*y0) * a
	}
	m00 /= 2
	if m00 == 0 {
		return 0, 0, false
	}
	cx, cy := m10/6/m00, m01/6/m00
	mu20 := m20/12/m00 - cx*cx
	mu02 := m02/12/m00 - cy*cy
	mu11 := m11/24/m00 - cx*cy

	sin, cos := math.Sincos(angle * math.Pi / 180)
	along = mu20*cos*cos + 2*mu11*cos*sin + mu02*sin*sin
	across = mu20*sin*sin - 2*mu11*cos*sin + mu02*cos*cos
	return along, across, true
}

// rotate turns src about its center by angle degrees (counter-clockwise),
// filling uncovered pixels with black
func rotate(src gocv.Mat, angle float64) gocv.Mat {
	center := image.Point{X: src.Cols() / 2, Y: src.Rows() / 2}
	m := gocv.GetRotationMatrix2D(center, angle, 1.0)
	defer m.Close()

	out := gocv.NewMat()
	gocv.WarpAffineWithParams(src, &out, m, image.Point{X: src.Cols(), Y: src.Rows()},
		gocv.InterpolationLinear, gocv.BorderConstant, black)
	return out
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
