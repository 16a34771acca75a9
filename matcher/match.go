// Package matcher scores a canonical query against the reference database
// and derives a thickness estimate with an uncertainty band.
package matcher

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"pacbedthickness/logging"
	"pacbedthickness/types"

	"github.com/sirupsen/logrus"
)

// Source lists and decodes reference entries. Implementations must be safe
// for concurrent Load calls.
type Source interface {
	// Directory names the database in errors and logs
	Directory() string

	// Entries returns the usable entries in a stable order together with the
	// number of files skipped while listing them
	Entries(ctx context.Context) ([]types.ReferenceEntry, int, error)

	// Load returns the canonical pixels of one entry
	Load(ctx context.Context, entry types.ReferenceEntry) (types.Grayscale, error)
}

// Options tune a match
type Options struct {
	ScoreScale   float64  // 0 uses DefaultScoreScale
	ErrorCeiling int      // <= 0 uses DefaultErrorCeiling
	Workers      int      // <= 0 uses all CPUs
	Bucket       Bucketer // nil uses TruncatedDigitBucket
}

// DefaultOptions returns the options the reference database was calibrated with
func DefaultOptions() Options {
	return Options{
		ScoreScale:   DefaultScoreScale,
		ErrorCeiling: DefaultErrorCeiling,
		Bucket:       TruncatedDigitBucket,
	}
}

type scoreResult struct {
	score   float64
	ok      bool
	skipped bool
}

// Match scores query against every entry of src and returns the best match.
// Unreadable candidates are skipped and logged. A candidate of the wrong size
// aborts the match with *DimensionMismatchError, and *EmptyDatabaseError is
// returned when nothing could be scored.
func Match(ctx context.Context, query types.CanonicalImage, src Source, opts Options) (types.MatchResult, error) {
	if opts.Bucket == nil {
		opts.Bucket = TruncatedDigitBucket
	}
	if opts.ScoreScale == 0 {
		opts.ScoreScale = DefaultScoreScale
	}
	if opts.ErrorCeiling <= 0 {
		opts.ErrorCeiling = DefaultErrorCeiling
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	entries, skipped, err := src.Entries(ctx)
	if err != nil {
		return types.MatchResult{}, err
	}
	if len(entries) == 0 {
		return types.MatchResult{}, &EmptyDatabaseError{Directory: src.Directory(), Skipped: skipped}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	q := intensities(query.Pix)
	results := make([]scoreResult, len(entries))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, workers)

	for i := range entries {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			entry := entries[i]
			pix, err := src.Load(ctx, entry)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logging.WithFields(logrus.Fields{
					"path":  entry.Path,
					"error": err,
				}).Warn("skipping unreadable reference")
				results[i].skipped = true
				return
			}

			if !pix.SameSize(query.Grayscale) || len(pix.Pix) != len(q) {
				cancel(&DimensionMismatchError{
					Path: entry.Path,
					Want: query.Bounds(),
					Got:  pix.Bounds(),
				})
				return
			}

			results[i] = scoreResult{
				score: Score(q, intensities(pix.Pix), opts.ScoreScale),
				ok:    true,
			}
		}(i)
	}
	wg.Wait()

	if cause := context.Cause(ctx); cause != nil {
		var mismatch *DimensionMismatchError
		if errors.As(cause, &mismatch) {
			return types.MatchResult{}, mismatch
		}
		return types.MatchResult{}, cause
	}

	return reduce(entries, results, skipped, src.Directory(), opts)
}

// reduce picks the minimum score, the first entry winning ties, and collects
// every candidate in the best score's bucket
func reduce(entries []types.ReferenceEntry, results []scoreResult, skipped int, dir string, opts Options) (types.MatchResult, error) {
	best := -1
	scored := 0
	for i, r := range results {
		if r.skipped {
			skipped++
		}
		if !r.ok {
			continue
		}
		scored++
		if best < 0 || r.score < results[best].score {
			best = i
		}
	}
	if best < 0 {
		return types.MatchResult{}, &EmptyDatabaseError{Directory: dir, Skipped: skipped}
	}

	bestKey := opts.Bucket(results[best].score)
	result := types.MatchResult{
		Best:    types.ScoredCandidate{Entry: entries[best], Score: results[best].score},
		Scored:  scored,
		Skipped: skipped,
	}
	for i, r := range results {
		if r.ok && opts.Bucket(r.score) == bestKey {
			result.Ties = append(result.Ties, types.ScoredCandidate{Entry: entries[i], Score: r.score})
			result.TiedLabels = append(result.TiedLabels, entries[i].Label)
		}
	}

	result.Thickness = entries[best].Label
	result.Error = ErrorBand(result.Thickness, result.TiedLabels, opts.ErrorCeiling)

	logging.WithFields(logrus.Fields{
		"best":      entries[best].Path,
		"score":     results[best].score,
		"ties":      len(result.Ties),
		"thickness": result.Thickness,
		"error":     result.Error,
	}).Debug("match reduced")

	return result, nil
}
