package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pacbedthickness/database"
	"pacbedthickness/imageprocessor"
	"pacbedthickness/logging"
	"pacbedthickness/matcher"
	"pacbedthickness/types"

	"github.com/sirupsen/logrus"
)

type memoEntry struct {
	modifiedAt string
	size       int64
	pixels     types.Grayscale
}

// ReferenceSource serves the canonical reference images of one directory.
// Decoded pixels are memoized per path and dropped when the file changes.
// When a database is attached, decoded pixels are also cached there so
// later runs skip decoding.
type ReferenceSource struct {
	dir      string
	db       *sql.DB
	registry *imageprocessor.ImageLoaderRegistry

	mu   sync.RWMutex
	memo map[string]memoEntry
}

// NewReferenceSource creates a source over dir. db may be nil.
func NewReferenceSource(dir string, db *sql.DB) *ReferenceSource {
	return &ReferenceSource{
		dir:      filepath.Clean(dir),
		db:       db,
		registry: imageprocessor.NewImageLoaderRegistry(),
		memo:     make(map[string]memoEntry),
	}
}

// Directory returns the reference directory
func (s *ReferenceSource) Directory() string {
	return s.dir
}

// Entries lists the labeled reference images in name order. Files without a
// thickness label are logged and counted as skipped.
func (s *ReferenceSource) Entries(ctx context.Context) ([]types.ReferenceEntry, int, error) {
	paths, err := listImageFiles(s.dir, s.registry)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot list references in %s: %w", s.dir, err)
	}

	var entries []types.ReferenceEntry
	skipped := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		label, err := matcher.ParseLabel(path)
		if err != nil {
			logging.WithFields(logrus.Fields{"path": path}).Warnf("skipping reference: %v", err)
			skipped++
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			logging.LogWarning("Skipping reference %s: %v", path, err)
			skipped++
			continue
		}
		modifiedAt, size := fileVersion(info)

		entries = append(entries, types.ReferenceEntry{
			Path:       path,
			Name:       filepath.Base(path),
			Label:      label,
			Size:       size,
			ModifiedAt: modifiedAt,
		})
	}

	// forget files that disappeared
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Path] = true
	}
	s.mu.Lock()
	for path := range s.memo {
		if !present[path] {
			delete(s.memo, path)
		}
	}
	s.mu.Unlock()

	logging.DebugLog("Listed %d references in %s (%d skipped)", len(entries), s.dir, skipped)
	return entries, skipped, nil
}

// Load returns the pixels of entry, from memory, the database cache or the
// file in that order. A file that changed since it was listed is re-read.
func (s *ReferenceSource) Load(ctx context.Context, entry types.ReferenceEntry) (types.Grayscale, error) {
	if err := ctx.Err(); err != nil {
		return types.Grayscale{}, err
	}

	info, err := os.Stat(entry.Path)
	if err != nil {
		return types.Grayscale{}, &imageprocessor.ImageReadError{Path: entry.Path, Err: err}
	}
	modifiedAt, size := fileVersion(info)

	s.mu.RLock()
	cached, ok := s.memo[entry.Path]
	s.mu.RUnlock()
	if ok && cached.modifiedAt == modifiedAt && cached.size == size {
		return cached.pixels, nil
	}

	if s.db != nil {
		pix, ok, err := database.LoadPixels(s.db, entry.Path, modifiedAt, size)
		if err != nil {
			logging.LogWarning("Pixel cache lookup failed for %s: %v", entry.Path, err)
		} else if ok {
			s.remember(entry.Path, modifiedAt, size, pix)
			return pix, nil
		}
	}

	pix, err := s.decode(entry.Path)
	if err != nil {
		return types.Grayscale{}, err
	}
	s.remember(entry.Path, modifiedAt, size, pix)

	if s.db != nil {
		rec := types.ReferenceRecord{
			ReferenceEntry: entry,
			Directory:      s.dir,
			Pixels:         pix,
		}
		rec.ModifiedAt, rec.Size = modifiedAt, size
		if err := database.StoreReference(s.db, rec, true); err != nil {
			logging.LogWarning("Cannot cache pixels for %s: %v", entry.Path, err)
		}
	}
	return pix, nil
}

func (s *ReferenceSource) decode(path string) (types.Grayscale, error) {
	img, err := s.registry.LoadImage(path)
	if err != nil {
		return types.Grayscale{}, err
	}
	defer img.Close()

	pix, err := imageprocessor.MatToGrayscale(img)
	if err != nil {
		return types.Grayscale{}, &imageprocessor.ImageReadError{Path: path, Err: err}
	}
	return pix, nil
}

func (s *ReferenceSource) remember(path, modifiedAt string, size int64, pix types.Grayscale) {
	s.mu.Lock()
	s.memo[path] = memoEntry{modifiedAt: modifiedAt, size: size, pixels: pix}
	s.mu.Unlock()
}

// Compile-time check
var _ matcher.Source = (*ReferenceSource)(nil)
