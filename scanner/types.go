package scanner

import (
	"sync"
	"time"
)

// ScanOptions defines the options for indexing and preparing references
type ScanOptions struct {
	FolderPath   string // raw simulated patterns, prepare only
	ReferenceDir string
	ForceRewrite bool
	DebugMode    bool
	MaxWorkers   int
}

// ProcessImageResult holds the result of processing one reference file
type ProcessImageResult struct {
	Path      string
	Success   bool
	Unchanged bool
	Error     error
	IsTif     bool
}

// FileStats tracks information about files to be processed
type FileStats struct {
	totalFiles int
	tifFiles   int
}

// ProgressTracker tracks progress of the scan operation
type ProgressTracker struct {
	processed    int
	errors       int
	unchanged    int
	tifProcessed int
	ticker       *time.Ticker
	done         chan bool
	finished     chan struct{}
	mu           sync.Mutex
	totalFiles   int
	tifFiles     int
}
