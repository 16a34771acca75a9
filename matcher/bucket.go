package matcher

import "math"

// BucketKey is the coarse equivalence class of a score
type BucketKey struct {
	Ones   int
	Tenths int
}

// Bucketer maps a score to its bucket. Candidates sharing the best score's
// bucket are ties.
type Bucketer func(score float64) BucketKey

// TruncatedDigitBucket keys a score by its ones and tenths digits, both
// truncated. 0.141 and 0.149 share a bucket, 0.27 does not. Representation
// error near a digit boundary (0.1499999 vs 0.15) moves a score across
// buckets; that is kept for compatibility with existing results.
func TruncatedDigitBucket(score float64) BucketKey {
	return BucketKey{
		Ones:   int(math.Trunc(score)) % 10,
		Tenths: int(math.Trunc(score*10)) % 10,
	}
}
