package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"pacbedthickness/imageprocessor"
)

// listImageFiles returns the loadable image files directly inside dir,
// sorted by name
func listImageFiles(dir string, registry *imageprocessor.ImageLoaderRegistry) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(dir, de.Name())
		if registry.CanLoadFile(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// countFiles classifies files before processing
func countFiles(paths []string) FileStats {
	stats := FileStats{totalFiles: len(paths)}
	for _, p := range paths {
		if imageprocessor.IsTiffFormat(p) {
			stats.tifFiles++
		}
	}
	return stats
}

// fileVersion identifies a file revision by modification time and size
func fileVersion(info os.FileInfo) (string, int64) {
	return info.ModTime().UTC().Format(time.RFC3339Nano), info.Size()
}
