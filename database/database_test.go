package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"pacbedthickness/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDatabase(filepath.Join(t.TempDir(), "references.db"))
	if err != nil {
		t.Fatalf("InitDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func record(path string, label int, pix ...byte) types.ReferenceRecord {
	return types.ReferenceRecord{
		ReferenceEntry: types.ReferenceEntry{
			Path:       path,
			Name:       filepath.Base(path),
			Label:      label,
			Size:       100,
			ModifiedAt: "2024-01-02T03:04:05Z",
		},
		Directory: filepath.Dir(path),
		Pixels:    types.Grayscale{Width: len(pix), Height: 1, Pix: pix},
	}
}

func TestInitDatabaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "references.db")
	for i := 0; i < 2; i++ {
		db, err := InitDatabase(path)
		if err != nil {
			t.Fatalf("InitDatabase run %d: %v", i, err)
		}
		db.Close()
	}
}

func TestStoreAndLoadPixels(t *testing.T) {
	db := openTestDB(t)
	rec := record("/refs/42 nm.tif", 42, 1, 2, 3)

	if err := StoreReference(db, rec, false); err != nil {
		t.Fatalf("StoreReference: %v", err)
	}

	exists, mod, size, err := CheckReferenceExists(db, rec.Path)
	if err != nil || !exists {
		t.Fatalf("CheckReferenceExists = %v, %v", exists, err)
	}
	if mod != rec.ModifiedAt || size != rec.Size {
		t.Fatalf("stored version = %q/%d", mod, size)
	}

	g, ok, err := LoadPixels(db, rec.Path, rec.ModifiedAt, rec.Size)
	if err != nil || !ok {
		t.Fatalf("LoadPixels = %v, %v", ok, err)
	}
	if g.Width != 3 || g.Height != 1 || string(g.Pix) != "\x01\x02\x03" {
		t.Fatalf("pixels = %+v", g)
	}

	if _, ok, _ := LoadPixels(db, rec.Path, "2025-01-01T00:00:00Z", rec.Size); ok {
		t.Fatal("stale modification time should miss")
	}
	if _, ok, _ := LoadPixels(db, rec.Path, rec.ModifiedAt, 7); ok {
		t.Fatal("stale size should miss")
	}
	if _, ok, _ := LoadPixels(db, "/refs/none.tif", "", 0); ok {
		t.Fatal("unknown path should miss")
	}
}

func TestStoreReferenceForceRewrite(t *testing.T) {
	db := openTestDB(t)
	first := record("/refs/7 nm.tif", 7, 9)
	if err := StoreReference(db, first, false); err != nil {
		t.Fatal(err)
	}

	second := record("/refs/7 nm.tif", 7, 4, 4)
	second.ModifiedAt = "2024-02-02T00:00:00Z"
	if err := StoreReference(db, second, false); err != nil {
		t.Fatal(err)
	}
	if _, mod, _, _ := CheckReferenceExists(db, first.Path); mod != first.ModifiedAt {
		t.Fatalf("row replaced without force: %q", mod)
	}

	if err := StoreReference(db, second, true); err != nil {
		t.Fatal(err)
	}
	if _, mod, _, _ := CheckReferenceExists(db, first.Path); mod != second.ModifiedAt {
		t.Fatalf("row not replaced with force: %q", mod)
	}
}

func TestListPruneAndStats(t *testing.T) {
	db := openTestDB(t)
	for _, rec := range []types.ReferenceRecord{
		record("/refs/44 nm.tif", 44, 1),
		record("/refs/40 nm.tif", 40, 1),
		record("/refs/42 nm.tif", 42, 1),
		record("/other/1 nm.tif", 1, 1),
	} {
		if err := StoreReference(db, rec, false); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ListReferences(db, "/refs")
	if err != nil {
		t.Fatalf("ListReferences: %v", err)
	}
	if len(entries) != 3 || entries[0].Label != 40 || entries[2].Label != 44 {
		t.Fatalf("entries = %+v", entries)
	}

	removed, err := PruneMissing(db, "/refs", map[string]bool{"/refs/40 nm.tif": true, "/refs/42 nm.tif": true})
	if err != nil || removed != 1 {
		t.Fatalf("PruneMissing = %d, %v", removed, err)
	}

	stats, err := GetIndexStats(db, "/refs")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalReferences != 2 || stats.DistinctLabels != 2 || stats.MinLabel != 40 || stats.MaxLabel != 42 {
		t.Fatalf("stats = %+v", stats)
	}

	empty, err := GetIndexStats(db, "/nowhere")
	if err != nil || empty.TotalReferences != 0 {
		t.Fatalf("empty stats = %+v, %v", empty, err)
	}
}
