// Package scanner builds and serves the reference database: it prepares
// canonical references from raw simulated patterns, indexes them into
// SQLite and lists them for matching.
package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"pacbedthickness/database"
	"pacbedthickness/imageprocessor"
	"pacbedthickness/logging"
	"pacbedthickness/matcher"
	"pacbedthickness/types"
)

// IndexReferences decodes every labeled image of options.ReferenceDir and
// stores its pixels in db. Unchanged files are skipped unless ForceRewrite
// is set, and rows of files that no longer exist are pruned.
func IndexReferences(ctx context.Context, db *sql.DB, options ScanOptions) (*database.IndexStats, error) {
	src := NewReferenceSource(options.ReferenceDir, db)

	entries, skipped, err := src.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		fmt.Printf("Skipping %d files without a thickness label\n", skipped)
	}

	byPath := make(map[string]types.ReferenceEntry, len(entries))
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		byPath[e.Path] = e
		paths = append(paths, e.Path)
	}

	fileStats := countFiles(paths)
	PrintStartupInfo("reference indexing", fileStats, options)

	resultsChan := make(chan ProcessImageResult, 100)
	progressTracker := NewProgressTracker(fileStats, resultsChan)

	startTime := time.Now()
	err = walkAndProcessFiles(ctx, paths, options.MaxWorkers, resultsChan, func(path string) ProcessImageResult {
		return indexReference(db, src, byPath[path], options)
	})
	close(resultsChan)
	progressTracker.Stop()

	PrintCompletionStats("Indexing", progressTracker, startTime, options)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(paths))
	for _, p := range paths {
		present[p] = true
	}
	if removed, err := database.PruneMissing(db, src.Directory(), present); err != nil {
		return nil, err
	} else if removed > 0 {
		fmt.Printf("Removed %d references that no longer exist.\n", removed)
	}

	return database.GetIndexStats(db, src.Directory())
}

func indexReference(db *sql.DB, src *ReferenceSource, entry types.ReferenceEntry, options ScanOptions) ProcessImageResult {
	isTif := imageprocessor.IsTiffFormat(entry.Path)

	if result := checkAndSkipIfUnchanged(db, entry, options); result != nil {
		result.IsTif = isTif
		return *result
	}

	pix, err := src.decode(entry.Path)
	if err != nil {
		return ProcessImageResult{Path: entry.Path, Error: err, IsTif: isTif}
	}

	rec := types.ReferenceRecord{
		ReferenceEntry: entry,
		Directory:      src.Directory(),
		Pixels:         pix,
	}
	if err := database.StoreReference(db, rec, true); err != nil {
		return ProcessImageResult{Path: entry.Path, Error: err, IsTif: isTif}
	}
	src.remember(entry.Path, entry.ModifiedAt, entry.Size, pix)

	return ProcessImageResult{Path: entry.Path, Success: true, IsTif: isTif}
}

// PrepareReferences canonicalizes every image of options.FolderPath into a
// TIFF of the same base name in options.ReferenceDir. Outputs newer than
// their source are kept unless ForceRewrite is set.
func PrepareReferences(ctx context.Context, canon *imageprocessor.Canonicalizer, options ScanOptions) error {
	registry := imageprocessor.NewImageLoaderRegistry()
	paths, err := listImageFiles(options.FolderPath, registry)
	if err != nil {
		return fmt.Errorf("cannot list %s: %w", options.FolderPath, err)
	}
	if err := os.MkdirAll(options.ReferenceDir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", options.ReferenceDir, err)
	}

	fileStats := countFiles(paths)
	PrintStartupInfo("reference preparation", fileStats, options)

	resultsChan := make(chan ProcessImageResult, 100)
	progressTracker := NewProgressTracker(fileStats, resultsChan)

	startTime := time.Now()
	err = walkAndProcessFiles(ctx, paths, options.MaxWorkers, resultsChan, func(path string) ProcessImageResult {
		return prepareReference(canon, path, options)
	})
	close(resultsChan)
	progressTracker.Stop()

	PrintCompletionStats("Preparation", progressTracker, startTime, options)
	return err
}

// PreparedPath returns where the canonical version of a raw pattern is written
func PreparedPath(referenceDir, rawPath string) string {
	base := filepath.Base(rawPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(referenceDir, stem+".tif")
}

func prepareReference(canon *imageprocessor.Canonicalizer, path string, options ScanOptions) ProcessImageResult {
	out := PreparedPath(options.ReferenceDir, path)
	result := ProcessImageResult{Path: path, IsTif: imageprocessor.IsTiffFormat(path)}

	if _, err := matcher.ParseLabel(path); err != nil {
		logging.LogWarning("%v; the prepared file will not be matched", err)
	}

	if !options.ForceRewrite && upToDate(out, path) {
		if options.DebugMode {
			logging.DebugLog("Skipping up to date reference: %s", out)
		}
		result.Success = true
		result.Unchanged = true
		return result
	}

	img, err := canon.Canonicalize(path)
	if err != nil {
		result.Error = err
		return result
	}
	if err := imageprocessor.WriteCanonical(out, img.Grayscale); err != nil {
		result.Error = err
		return result
	}

	result.Success = true
	return result
}

// upToDate reports whether out exists and is not older than src
func upToDate(out, src string) bool {
	outInfo, err := os.Stat(out)
	if err != nil {
		return false
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false
	}
	return !outInfo.ModTime().Before(srcInfo.ModTime())
}

// walkAndProcessFiles runs process over paths on a bounded pool of
// goroutines and sends every result to resultsChan. It stops handing out
// work once ctx is done and returns ctx's error in that case.
func walkAndProcessFiles(ctx context.Context, paths []string, workers int, resultsChan chan<- ProcessImageResult, process func(string) ProcessImageResult) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, workers)

	for _, path := range paths {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			defer func() { <-semaphore }() // Release semaphore when done

			resultsChan <- process(p)
		}(path)
	}

	wg.Wait()
	return ctx.Err()
}
