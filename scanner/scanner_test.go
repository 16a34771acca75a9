package scanner

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pacbedthickness/config"
	"pacbedthickness/database"
	"pacbedthickness/imageprocessor"
	"pacbedthickness/types"
)

func writeReference(t *testing.T, dir, name string, w, h int, value byte) string {
	t.Helper()
	pix := make([]byte, w*h)
	for i := range pix {
		pix[i] = value + byte(i%7)
	}
	path := filepath.Join(dir, name)
	if err := imageprocessor.WriteCanonical(path, types.Grayscale{Width: w, Height: h, Pix: pix}); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestEntriesSkipsUnlabeled(t *testing.T) {
	dir := t.TempDir()
	writeReference(t, dir, "44 nm.tif", 4, 4, 10)
	writeReference(t, dir, "40 nm.tif", 4, 4, 20)
	writeReference(t, dir, "thumbnail.tif", 4, 4, 30)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewReferenceSource(dir, nil)
	entries, skipped, err := src.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	if len(entries) != 2 || entries[0].Label != 40 || entries[1].Label != 44 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestLoadMemoInvalidatedOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeReference(t, dir, "42 nm.tif", 4, 4, 10)

	src := NewReferenceSource(dir, nil)
	ctx := context.Background()
	entries, _, err := src.Entries(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Entries = %v, %v", entries, err)
	}

	first, err := src.Load(ctx, entries[0])
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if first.Width != 4 {
		t.Fatalf("width = %d", first.Width)
	}

	writeReference(t, dir, "42 nm.tif", 6, 6, 10)
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	second, err := src.Load(ctx, entries[0])
	if err != nil {
		t.Fatalf("Load after change: %v", err)
	}
	if second.Width != 6 {
		t.Fatalf("stale memo served: width = %d", second.Width)
	}
}

func TestLoadMissingFile(t *testing.T) {
	src := NewReferenceSource(t.TempDir(), nil)
	_, err := src.Load(context.Background(), types.ReferenceEntry{Path: filepath.Join(t.TempDir(), "1 nm.tif")})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIndexReferences(t *testing.T) {
	dir := t.TempDir()
	writeReference(t, dir, "40 nm.tif", 4, 4, 10)
	writeReference(t, dir, "42 nm.tif", 4, 4, 20)
	gone := writeReference(t, dir, "44 nm.tif", 4, 4, 30)

	db, err := database.InitDatabase(filepath.Join(t.TempDir(), "references.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	opts := ScanOptions{ReferenceDir: dir, MaxWorkers: 2}
	stats, err := IndexReferences(ctx, db, opts)
	if err != nil {
		t.Fatalf("IndexReferences: %v", err)
	}
	if stats.TotalReferences != 3 || stats.MinLabel != 40 || stats.MaxLabel != 44 {
		t.Fatalf("stats = %+v", stats)
	}

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	stats, err = IndexReferences(ctx, db, opts)
	if err != nil {
		t.Fatalf("second IndexReferences: %v", err)
	}
	if stats.TotalReferences != 2 || stats.MaxLabel != 42 {
		t.Fatalf("missing file not pruned: %+v", stats)
	}

	// a fresh source reads the cached pixels
	src := NewReferenceSource(dir, db)
	entries, _, err := src.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	pix, ok, err := database.LoadPixels(db, entries[0].Path, entries[0].ModifiedAt, entries[0].Size)
	if err != nil || !ok {
		t.Fatalf("LoadPixels = %v, %v", ok, err)
	}
	loaded, err := src.Load(ctx, entries[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(loaded.Pix) != string(pix.Pix) {
		t.Fatal("source did not serve cached pixels")
	}
}

func TestIndexReferencesCanceled(t *testing.T) {
	dir := t.TempDir()
	writeReference(t, dir, "40 nm.tif", 4, 4, 10)

	db, err := database.InitDatabase(filepath.Join(t.TempDir(), "references.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := IndexReferences(ctx, db, ScanOptions{ReferenceDir: dir}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestPrepareReferences(t *testing.T) {
	raw := t.TempDir()
	out := filepath.Join(t.TempDir(), "refs")

	img := image.NewGray(image.Rect(0, 0, 90, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 90; x++ {
			if (x-45)*(x-45)+(y-45)*(y-45) <= 20*20 {
				img.SetGray(x, y, color.Gray{Y: 200})
			}
		}
	}
	f, err := os.Create(filepath.Join(raw, "42 nm_0mrad.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	canon := imageprocessor.NewCanonicalizer(config.Default().Canonical)
	opts := ScanOptions{FolderPath: raw, ReferenceDir: out, MaxWorkers: 1}
	if err := PrepareReferences(context.Background(), canon, opts); err != nil {
		t.Fatalf("PrepareReferences: %v", err)
	}

	prepared := PreparedPath(out, filepath.Join(raw, "42 nm_0mrad.png"))
	if filepath.Base(prepared) != "42 nm_0mrad.tif" {
		t.Fatalf("prepared path = %s", prepared)
	}

	src := NewReferenceSource(out, nil)
	entries, _, err := src.Entries(context.Background())
	if err != nil || len(entries) != 1 || entries[0].Label != 42 {
		t.Fatalf("entries = %+v, %v", entries, err)
	}
	pix, err := src.Load(context.Background(), entries[0])
	if err != nil {
		t.Fatal(err)
	}
	if pix.Width != 384 || pix.Height != 384 {
		t.Fatalf("prepared size = %dx%d", pix.Width, pix.Height)
	}

	if !upToDate(prepared, filepath.Join(raw, "42 nm_0mrad.png")) {
		t.Fatal("fresh output should be up to date")
	}
}
