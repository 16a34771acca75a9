package matcher

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

var labelPattern = regexp.MustCompile(`^(\d+)\s*nm`)

// LabelParseError reports a reference file whose name carries no thickness
type LabelParseError struct {
	Name string
}

func (e *LabelParseError) Error() string {
	return fmt.Sprintf("no thickness label in %q", e.Name)
}

// ParseLabel extracts the thickness in nm from a reference file name such as
// "42 nm.tif" or "42nm_0mrad.tif". Only the base name is examined.
func ParseLabel(name string) (int, error) {
	base := filepath.Base(name)
	m := labelPattern.FindStringSubmatch(base)
	if m == nil {
		return 0, &LabelParseError{Name: base}
	}
	label, err := strconv.Atoi(m[1])
	if err != nil {
		// only overflow gets here
		return 0, &LabelParseError{Name: base}
	}
	return label, nil
}
