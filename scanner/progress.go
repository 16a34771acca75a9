package scanner

import (
	"fmt"
	"time"

	"pacbedthickness/logging"
)

// NewProgressTracker initializes the progress tracker
func NewProgressTracker(stats FileStats, resultsChan chan ProcessImageResult) *ProgressTracker {
	tracker := &ProgressTracker{
		ticker:     time.NewTicker(500 * time.Millisecond),
		done:       make(chan bool),
		finished:   make(chan struct{}),
		totalFiles: stats.totalFiles,
		tifFiles:   stats.tifFiles,
	}

	// Start progress display goroutine
	go tracker.displayProgress()

	// Start result processor goroutine
	go tracker.processResults(resultsChan)

	return tracker
}

// displayProgress shows the progress periodically
func (p *ProgressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			if p.errors > 0 {
				fmt.Printf("\rProgress: %d/%d (Errors: %d, Unchanged: %d)",
					p.processed, p.totalFiles, p.errors, p.unchanged)
			} else {
				fmt.Printf("\rProgress: %d/%d (Unchanged: %d)",
					p.processed, p.totalFiles, p.unchanged)
			}
			p.mu.Unlock()
		}
	}
}

// processResults updates the tracker state based on processing results.
// It returns once resultsChan is closed.
func (p *ProgressTracker) processResults(resultsChan chan ProcessImageResult) {
	defer close(p.finished)
	for result := range resultsChan {
		p.mu.Lock()
		p.processed++

		if result.IsTif {
			p.tifProcessed++
		}
		if result.Unchanged {
			p.unchanged++
		}

		if !result.Success {
			p.errors++
			if result.Error != nil {
				logging.LogImageProcessed(result.Path, false, result.Error.Error())
			}
		} else if !result.Unchanged {
			logging.LogImageProcessed(result.Path, true, "")
		}

		p.mu.Unlock()
	}
}

// Stop ends the progress tracking. The results channel must be closed first.
func (p *ProgressTracker) Stop() {
	<-p.finished
	p.ticker.Stop()
	p.done <- true
}

// Counts returns processed, failed and unchanged totals
func (p *ProgressTracker) Counts() (processed, errors, unchanged int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.errors, p.unchanged
}

// PrintStartupInfo displays information about the run before starting
func PrintStartupInfo(action string, stats FileStats, options ScanOptions) {
	fmt.Printf("Starting %s...\nTotal image files to process: %d (including %d TIF files)\n",
		action, stats.totalFiles, stats.tifFiles)
	fmt.Printf("Force rewrite mode: %v\n", options.ForceRewrite)

	if options.DebugMode {
		fmt.Printf("Debug mode: enabled\n")
		logging.DebugLog("Found %d image files to process (%d TIF files)", stats.totalFiles, stats.tifFiles)
	}
}

// PrintCompletionStats displays statistics after completion
func PrintCompletionStats(action string, tracker *ProgressTracker, startTime time.Time, options ScanOptions) {
	elapsed := time.Since(startTime)
	processed, errors, unchanged := tracker.Counts()

	if options.DebugMode {
		logging.DebugLog("%s completed in %v. Processed: %d, Errors: %d, Unchanged: %d",
			action, elapsed, processed, errors, unchanged)
	}

	fmt.Printf("\n%s complete.\n", action)
	fmt.Printf("Processed %d images in %v.\n", processed, elapsed.Round(time.Second))

	if unchanged > 0 {
		fmt.Printf("Skipped %d unchanged images.\n", unchanged)
	}

	if errors > 0 {
		fmt.Printf("Encountered %d errors.\n", errors)
		fmt.Println("Check the log file for details.")
	}
}
