package imageprocessor

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"pacbedthickness/config"
	"pacbedthickness/types"

	"gocv.io/x/gocv"
	"golang.org/x/image/tiff"
)

// disk draws a filled bright disk on a black w x h image
func disk(w, h, cx, cy, r int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				img.SetGray(x, y, color.Gray{Y: 220})
			}
		}
	}
	return img
}

func writePNG(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return path
}

func matFromGray(t *testing.T, img *image.Gray) gocv.Mat {
	t.Helper()
	m, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		t.Fatalf("ImageGrayToMatGray: %v", err)
	}
	return m
}

func TestPatternCentroid(t *testing.T) {
	tests := []struct {
		name   string
		cx, cy int
	}{
		{"centered", 50, 50},
		{"offset", 30, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := matFromGray(t, disk(100, 100, tt.cx, tt.cy, 10))
			defer m.Close()

			got, ok := PatternCentroid(m, 127)
			if !ok {
				t.Fatal("expected a non-empty mask")
			}
			if got != (image.Point{X: tt.cx, Y: tt.cy}) {
				t.Fatalf("centroid = %v, want (%d,%d)", got, tt.cx, tt.cy)
			}
		})
	}
}

func TestCenterPatternShift(t *testing.T) {
	m := matFromGray(t, disk(100, 100, 50, 50, 10))
	defer m.Close()

	out, shift, err := CenterPattern(m, 127)
	if err != nil {
		t.Fatalf("CenterPattern: %v", err)
	}
	defer out.Close()
	if shift != (image.Point{}) {
		t.Fatalf("centered disk moved by %v", shift)
	}

	off := matFromGray(t, disk(100, 100, 30, 40, 10))
	defer off.Close()
	moved, shift, err := CenterPattern(off, 127)
	if err != nil {
		t.Fatalf("CenterPattern: %v", err)
	}
	defer moved.Close()
	if shift != (image.Point{X: 20, Y: 10}) {
		t.Fatalf("shift = %v, want (20,10)", shift)
	}
	if c, _ := PatternCentroid(moved, 127); c != (image.Point{X: 50, Y: 50}) {
		t.Fatalf("centroid after shift = %v", c)
	}
}

func TestCenterPatternDegenerate(t *testing.T) {
	m := matFromGray(t, image.NewGray(image.Rect(0, 0, 40, 30)))
	defer m.Close()

	_, _, err := CenterPattern(m, 127)
	if !errors.Is(err, ErrDegenerate) {
		t.Fatalf("expected ErrDegenerate, got %v", err)
	}
}

func TestRollWraps(t *testing.T) {
	// 3x2 grid
	pix := []byte{
		1, 2, 3,
		4, 5, 6,
	}
	got := Roll(pix, 3, 2, image.Point{X: 1, Y: 1})
	want := []byte{
		6, 4, 5,
		3, 1, 2,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Roll = %v, want %v", got, want)
		}
	}

	back := Roll(got, 3, 2, image.Point{X: -1, Y: -1})
	for i := range pix {
		if back[i] != pix[i] {
			t.Fatalf("negative roll did not invert: %v", back)
		}
	}
}

func TestCanonicalizeOutputSize(t *testing.T) {
	path := writePNG(t, "query.png", disk(120, 90, 70, 40, 15))

	c := NewCanonicalizer(config.Default().Canonical)
	got, err := c.Canonicalize(path)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if got.Width != 384 || got.Height != 384 {
		t.Fatalf("size = %dx%d, want 384x384", got.Width, got.Height)
	}
	if len(got.Pix) != 384*384 {
		t.Fatalf("pixel count = %d", len(got.Pix))
	}
	if got.Source != path {
		t.Fatalf("source = %q", got.Source)
	}
}

func TestCanonicalizeDebugSnapshots(t *testing.T) {
	path := writePNG(t, "query one.png", disk(80, 80, 40, 40, 12))

	c := NewCanonicalizer(config.Default().Canonical)
	c.DebugDir = t.TempDir()
	if _, err := c.Canonicalize(path); err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if _, err := c.Canonicalize(path); err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}

	dirs, err := os.ReadDir(c.DebugDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected one snapshot directory per call, got %d", len(dirs))
	}
	if !fileHasContent(filepath.Join(c.DebugDir, dirs[0].Name(), "4-rotated.png")) {
		t.Fatal("missing rotated snapshot")
	}
}

func TestCanonicalizeErrors(t *testing.T) {
	c := NewCanonicalizer(config.Default().Canonical)

	black := writePNG(t, "black.png", image.NewGray(image.Rect(0, 0, 64, 48)))
	_, err := c.Canonicalize(black)
	var degenerate *DegenerateImageError
	if !errors.As(err, &degenerate) {
		t.Fatalf("black image: expected DegenerateImageError, got %v", err)
	}
	if degenerate.Path != black {
		t.Fatalf("error path = %q", degenerate.Path)
	}

	var readErr *ImageReadError
	_, err = c.Canonicalize(filepath.Join(t.TempDir(), "missing.png"))
	if !errors.As(err, &readErr) {
		t.Fatalf("missing file: expected ImageReadError, got %v", err)
	}

	corrupt := filepath.Join(t.TempDir(), "corrupt.png")
	if err := os.WriteFile(corrupt, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = c.Canonicalize(corrupt)
	if !errors.As(err, &readErr) {
		t.Fatalf("corrupt file: expected ImageReadError, got %v", err)
	}
}

func TestWriteCanonicalTiff(t *testing.T) {
	g := types.Grayscale{Width: 4, Height: 3, Pix: []byte{
		0, 10, 20, 30,
		40, 50, 60, 70,
		80, 90, 100, 255,
	}}
	path := filepath.Join(t.TempDir(), "out", "42 nm.tif")
	if err := WriteCanonical(path, g); err != nil {
		t.Fatalf("WriteCanonical: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := tiff.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("decoded %T, want *image.Gray", img)
	}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if got, want := gray.GrayAt(x, y).Y, g.Pix[y*g.Width+x]; got != want {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestWriteCanonicalPNGRoundTrip(t *testing.T) {
	g := types.Grayscale{Width: 3, Height: 2, Pix: []byte{1, 2, 3, 250, 251, 252}}
	path := filepath.Join(t.TempDir(), "out.png")
	if err := WriteCanonical(path, g); err != nil {
		t.Fatalf("WriteCanonical: %v", err)
	}

	m, err := NewImageLoaderRegistry().LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	defer m.Close()
	back, err := MatToGrayscale(m)
	if err != nil {
		t.Fatal(err)
	}
	if !back.SameSize(g) || string(back.Pix) != string(g.Pix) {
		t.Fatalf("round trip = %+v, want %+v", back, g)
	}
}

func TestWriteCanonicalRejectsShortGrid(t *testing.T) {
	g := types.Grayscale{Width: 4, Height: 4, Pix: make([]byte, 3)}
	if err := WriteCanonical(filepath.Join(t.TempDir(), "bad.tif"), g); err == nil {
		t.Fatal("expected error for inconsistent grid")
	}
}

func TestRegistryCanLoadFile(t *testing.T) {
	r := NewImageLoaderRegistry()
	for _, name := range []string{"a.TIF", "b.tiff", "c.png", "d.jpg", "e.webp"} {
		if !r.CanLoadFile(name) {
			t.Errorf("CanLoadFile(%q) = false", name)
		}
	}
	for _, name := range []string{"notes.txt", "scan.cr3", "noext"} {
		if r.CanLoadFile(name) {
			t.Errorf("CanLoadFile(%q) = true", name)
		}
	}
}

// ellipsePolygon samples an axis-aligned ellipse with semi-axes a (x) and
// b (y) onto integer vertices
func ellipsePolygon(cx, cy, a, b float64) []image.Point {
	pts := make([]image.Point, 0, 360)
	for k := 0; k < 360; k++ {
		t := 2 * math.Pi * float64(k) / 360
		pts = append(pts, image.Point{
			X: int(math.Round(cx + a*math.Cos(t))),
			Y: int(math.Round(cy + b*math.Sin(t))),
		})
	}
	return pts
}

func TestTallerThanWideSubPixel(t *testing.T) {
	// 100.2 x 100.7 px: both axes truncate to 100
	tie := gocv.RotatedRect{Width: 100, Height: 100, Angle: 0}

	tall := ellipsePolygon(192, 192, 50.1, 50.35)
	if !tallerThanWide(tie, tall) {
		t.Fatal("ellipse 0.5 px taller than wide not detected")
	}

	wide := ellipsePolygon(192, 192, 50.35, 50.1)
	if tallerThanWide(tie, wide) {
		t.Fatal("wide ellipse reported as tall")
	}

	// at 90 degrees width runs along y
	quarter := gocv.RotatedRect{Width: 100, Height: 100, Angle: 90}
	if tallerThanWide(quarter, tall) {
		t.Fatal("axes not taken relative to the ellipse angle")
	}
}

func TestTallerThanWideUsesFittedAxes(t *testing.T) {
	circle := ellipsePolygon(50, 50, 20, 20)
	if !tallerThanWide(gocv.RotatedRect{Width: 40, Height: 41}, circle) {
		t.Fatal("distinct fitted axes should decide")
	}
	if tallerThanWide(gocv.RotatedRect{Width: 41, Height: 40}, circle) {
		t.Fatal("distinct fitted axes should decide")
	}
}

func TestAxisSpreadDegenerate(t *testing.T) {
	line := []image.Point{{0, 0}, {5, 0}, {10, 0}}
	if _, _, ok := axisSpread(line, 0); ok {
		t.Fatal("polygon without area should not report a spread")
	}
}
