package matcher

import (
	"fmt"
	"image"
)

// EmptyDatabaseError is returned when a reference directory yields no usable
// entry. It is distinct from a poor match.
type EmptyDatabaseError struct {
	Directory string
	Skipped   int
}

func (e *EmptyDatabaseError) Error() string {
	if e.Skipped > 0 {
		return fmt.Sprintf("no usable reference images in %s (%d skipped)", e.Directory, e.Skipped)
	}
	return fmt.Sprintf("no usable reference images in %s", e.Directory)
}

// DimensionMismatchError is returned when a candidate grid differs in size
// from the query. It indicates a misconfigured database and is not retried.
type DimensionMismatchError struct {
	Path string
	Want image.Point
	Got  image.Point
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("reference %s is %dx%d, query is %dx%d",
		e.Path, e.Got.X, e.Got.Y, e.Want.X, e.Want.Y)
}
