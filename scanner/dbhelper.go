package scanner

import (
	"database/sql"
	"fmt"

	"pacbedthickness/database"
	"pacbedthickness/logging"
	"pacbedthickness/types"
)

// checkAndSkipIfUnchanged returns a result when entry is already indexed at
// its current version and need not be decoded again
func checkAndSkipIfUnchanged(db *sql.DB, entry types.ReferenceEntry, options ScanOptions) *ProcessImageResult {
	if options.ForceRewrite {
		return nil
	}

	exists, storedModTime, storedSize, err := database.CheckReferenceExists(db, entry.Path)
	if err != nil {
		return &ProcessImageResult{
			Path:    entry.Path,
			Success: false,
			Error:   fmt.Errorf("database error for %s: %v", entry.Path, err),
		}
	}

	if exists && storedModTime == entry.ModifiedAt && storedSize == entry.Size {
		if options.DebugMode {
			logging.DebugLog("Skipping unchanged reference: %s", entry.Path)
		}
		return &ProcessImageResult{
			Path:      entry.Path,
			Success:   true,
			Unchanged: true,
		}
	}

	return nil
}
