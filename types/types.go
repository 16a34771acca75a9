package types

import "image"

// Grayscale is a row-major single channel 8-bit pixel grid
type Grayscale struct {
	Width  int
	Height int
	Pix    []byte
}

// Bounds returns the grid size as a point (X = width, Y = height)
func (g Grayscale) Bounds() image.Point {
	return image.Point{X: g.Width, Y: g.Height}
}

// SameSize reports whether both grids have identical dimensions
func (g Grayscale) SameSize(other Grayscale) bool {
	return g.Width == other.Width && g.Height == other.Height
}

// CanonicalImage is a query micrograph after centering, re-rendering,
// cropping and rotation normalization. It is never mutated after creation.
type CanonicalImage struct {
	Grayscale
	Source   string      `json:"source"`
	Shift    image.Point `json:"shift"`    // cyclic shift applied to center the pattern
	Rotation float64     `json:"rotation"` // degrees, counter-clockwise
}

// ReferenceEntry is one simulated pattern of the reference database
type ReferenceEntry struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Label      int    `json:"label"` // thickness in nm
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

// ScoredCandidate holds the similarity score of one reference entry.
// Lower scores are better, zero is a perfect affine match.
type ScoredCandidate struct {
	Entry ReferenceEntry
	Score float64
}

// MatchResult is the thickness estimate returned to the caller
type MatchResult struct {
	Best       ScoredCandidate
	Ties       []ScoredCandidate // candidates sharing the best score bucket, best included
	TiedLabels []int
	Thickness  int // nm
	Error      int // nm, plus or minus
	Scored     int // number of candidates scored
	Skipped    int // references skipped while listing or loading
}

// BestPath returns the file of the best matching reference
func (r MatchResult) BestPath() string {
	return r.Best.Entry.Path
}

// Acquisition holds the microscope parameters reported with a result
type Acquisition struct {
	Voltage          string `json:"voltage"`           // kV
	ZoneAxis         string `json:"zone_axis"`         // [hkl]
	ConvergenceAngle string `json:"convergence_angle"` // mrad
	Instrument       string `json:"instrument"`
}

// ReferenceRecord is a reference entry as stored in the index, together with
// its decoded canonical pixels
type ReferenceRecord struct {
	ReferenceEntry
	Directory string
	Pixels    Grayscale
}
