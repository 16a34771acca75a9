package database

import (
	"database/sql"
	"fmt"
	"time"

	"pacbedthickness/logging"
	"pacbedthickness/types"

	_ "github.com/mattn/go-sqlite3"
)

// InitDatabase initializes and returns a database connection
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// workers write pixel rows concurrently, sqlite takes one writer at a time
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS reference_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		directory TEXT NOT NULL,
		label INTEGER NOT NULL,
		width INTEGER,
		height INTEGER,
		modified_at TEXT,
		size INTEGER,
		pixels BLOB,
		indexed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_directory ON reference_images(directory);
	CREATE INDEX IF NOT EXISTS idx_label ON reference_images(label);`

	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, err
	}

	// Databases indexed before pixels were cached lack the blob column
	var hasPixelsColumn bool
	err = db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('reference_images') WHERE name='pixels'").Scan(&hasPixelsColumn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error checking for pixels column: %v", err)
	}

	if !hasPixelsColumn {
		if _, err = db.Exec("ALTER TABLE reference_images ADD COLUMN pixels BLOB;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("error adding pixels column: %v", err)
		}
		logging.DebugLog("Added 'pixels' column to existing database schema")
	}

	return db, nil
}

// CheckReferenceExists reports whether path is indexed and returns the file
// modification time and size recorded with it
func CheckReferenceExists(db *sql.DB, path string) (bool, string, int64, error) {
	var modifiedAt string
	var size int64
	err := db.QueryRow("SELECT modified_at, size FROM reference_images WHERE path = ?", path).Scan(&modifiedAt, &size)
	if err == sql.ErrNoRows {
		return false, "", 0, nil
	}
	if err != nil {
		return false, "", 0, fmt.Errorf("database error for %s: %v", path, err)
	}
	return true, modifiedAt, size, nil
}

// StoreReference stores a reference entry and its canonical pixels. Without
// forceRewrite an existing row for the same path is kept.
func StoreReference(db *sql.DB, rec types.ReferenceRecord, forceRewrite bool) error {
	now := time.Now().Format(time.RFC3339)

	verb := "INSERT OR IGNORE"
	if forceRewrite {
		verb = "INSERT OR REPLACE"
	}
	stmt, err := db.Prepare(verb + ` INTO reference_images (
			path, directory, label, width, height, modified_at, size, pixels, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cannot prepare statement for %s: %v", rec.Path, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		rec.Path,
		rec.Directory,
		rec.Label,
		rec.Pixels.Width,
		rec.Pixels.Height,
		rec.ModifiedAt,
		rec.Size,
		rec.Pixels.Pix,
		now,
	)
	if err != nil {
		return fmt.Errorf("cannot insert data for %s: %v", rec.Path, err)
	}
	return nil
}

// LoadPixels returns the cached pixels of path. ok is false when the row is
// missing, has no pixels, or was recorded for a different file version.
func LoadPixels(db *sql.DB, path, modifiedAt string, size int64) (types.Grayscale, bool, error) {
	var (
		g          types.Grayscale
		storedMod  string
		storedSize int64
	)
	err := db.QueryRow(
		"SELECT width, height, modified_at, size, pixels FROM reference_images WHERE path = ?", path,
	).Scan(&g.Width, &g.Height, &storedMod, &storedSize, &g.Pix)
	if err == sql.ErrNoRows {
		return types.Grayscale{}, false, nil
	}
	if err != nil {
		return types.Grayscale{}, false, fmt.Errorf("cannot load pixels for %s: %v", path, err)
	}

	if storedMod != modifiedAt || storedSize != size || len(g.Pix) != g.Width*g.Height || len(g.Pix) == 0 {
		return types.Grayscale{}, false, nil
	}
	return g, true, nil
}

// ListReferences returns the indexed entries of a directory ordered by path
func ListReferences(db *sql.DB, directory string) ([]types.ReferenceEntry, error) {
	rows, err := db.Query(
		"SELECT path, label, size, modified_at FROM reference_images WHERE directory = ? ORDER BY path", directory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.ReferenceEntry
	for rows.Next() {
		var e types.ReferenceEntry
		if err := rows.Scan(&e.Path, &e.Label, &e.Size, &e.ModifiedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneMissing deletes rows of directory whose path is not in present and
// returns how many were removed
func PruneMissing(db *sql.DB, directory string, present map[string]bool) (int, error) {
	entries, err := ListReferences(db, directory)
	if err != nil {
		return 0, err
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if present[e.Path] {
			continue
		}
		if _, err := tx.Exec("DELETE FROM reference_images WHERE path = ?", e.Path); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("cannot delete %s: %v", e.Path, err)
		}
		removed++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if removed > 0 {
		logging.DebugLog("Pruned %d missing references from %s", removed, directory)
	}
	return removed, nil
}

// IndexStats contains statistics about an indexed reference directory
type IndexStats struct {
	TotalReferences int
	DistinctLabels  int
	MinLabel        int
	MaxLabel        int
}

// GetIndexStats retrieves statistics about the indexed references of directory
func GetIndexStats(db *sql.DB, directory string) (*IndexStats, error) {
	var stats IndexStats
	var minLabel, maxLabel sql.NullInt64

	err := db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT label), MIN(label), MAX(label)
		FROM reference_images WHERE directory = ?`, directory,
	).Scan(&stats.TotalReferences, &stats.DistinctLabels, &minLabel, &maxLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to get index stats: %v", err)
	}

	stats.MinLabel = int(minLabel.Int64)
	stats.MaxLabel = int(maxLabel.Int64)
	return &stats, nil
}
