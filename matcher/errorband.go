package matcher

// DefaultErrorCeiling caps the reported uncertainty in nm
const DefaultErrorCeiling = 2

// ErrorBand returns the uncertainty of best given the labels of all tied
// candidates. Ties carrying best's own label do not count. The result is the
// largest distance to another tied label, capped at ceiling, and the ceiling
// itself when no other label tied.
func ErrorBand(best int, tied []int, ceiling int) int {
	maxErr := -1
	for _, label := range tied {
		if label == best {
			continue
		}
		d := label - best
		if d < 0 {
			d = -d
		}
		maxErr = max(maxErr, d)
	}
	if maxErr < 0 {
		return ceiling
	}
	return min(maxErr, ceiling)
}
