package scanner

import (
	"bytes"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"imagesim/database"
	"imagesim/engine"
	"imagesim/extractor"
	"imagesim/imageprocessor"
	"imagesim/types"
)

// meanColorModel embeds an image as its mean RGB value.
type meanColorModel struct{}

func (meanColorModel) Forward(t imageprocessor.Tensor) ([]float32, error) {
	out := make([]float32, 3)
	n := float32(t.Height * t.Width)
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			for c := 0; c < 3; c++ {
				out[c] += t.At(y, x, c) / n
			}
		}
	}
	return out, nil
}

func (meanColorModel) Close() error { return nil }

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := imageprocessor.DefaultConfig()
	cfg.InputSize = 4
	cfg.ChannelOrder = imageprocessor.OrderRGB
	cfg.Mean = [3]float32{}
	pre, err := imageprocessor.NewPreprocessor(cfg)
	if err != nil {
		t.Fatalf("failed to build preprocessor: %v", err)
	}
	ext := extractor.New(func() (extractor.Model, error) { return meanColorModel{}, nil }, pre.Shape(), 3, zap.NewNop())
	eng, err := engine.New(ext, pre, engine.WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.InitDatabase(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("failed to init database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writePNG(t *testing.T, path string, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write png: %v", err)
	}
}

var (
	red       = color.NRGBA{R: 255, A: 255}
	mostlyRed = color.NRGBA{R: 200, G: 50, A: 255}
	blue      = color.NRGBA{B: 255, A: 255}
)

func buildFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "red.png"), red)
	writePNG(t, filepath.Join(dir, "mostly_red.png"), mostlyRed)
	writePNG(t, filepath.Join(dir, "nested", "blue.png"), blue)
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestCollectImageFiles(t *testing.T) {
	dir := buildFolder(t)
	files, err := collectImageFiles(dir)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("expected 4 image files, got %v", files)
	}
	for _, f := range files {
		if strings.HasSuffix(f, ".txt") {
			t.Fatalf("non-image file collected: %s", f)
		}
	}

	if _, err := collectImageFiles(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing folder")
	}
}

func TestScanAndStoreFolder(t *testing.T) {
	db := openTestDB(t)
	eng := newTestEngine(t)
	dir := buildFolder(t)

	var out bytes.Buffer
	summary, err := ScanAndStoreFolder(db, eng, ScanOptions{FolderPath: dir, SourcePrefix: "disk1", MaxWorkers: 2, Output: &out})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if summary.Total != 4 || summary.Indexed != 3 || summary.Failed != 1 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !strings.Contains(out.String(), "Indexing complete.") {
		t.Fatalf("missing completion output: %q", out.String())
	}

	rows, err := database.QueryEmbeddings(db, "disk1")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 indexed rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Format != "png" || row.Width != 12 || row.Height != 10 || len(row.Embedding) != 3 {
			t.Fatalf("unexpected row %+v", row)
		}
	}

	// unchanged files are skipped on the next scan
	summary, err = ScanAndStoreFolder(db, eng, ScanOptions{FolderPath: dir, SourcePrefix: "disk1"})
	if err != nil {
		t.Fatalf("rescan failed: %v", err)
	}
	if summary.Skipped != 3 || summary.Indexed != 0 || summary.Failed != 1 {
		t.Fatalf("unexpected rescan summary %+v", summary)
	}

	summary, err = ScanAndStoreFolder(db, eng, ScanOptions{FolderPath: dir, SourcePrefix: "disk1", ForceRewrite: true})
	if err != nil {
		t.Fatalf("forced scan failed: %v", err)
	}
	if summary.Indexed != 3 || summary.Skipped != 0 {
		t.Fatalf("unexpected forced summary %+v", summary)
	}
}

func TestScanMissingFolder(t *testing.T) {
	_, err := ScanAndStoreFolder(openTestDB(t), newTestEngine(t), ScanOptions{FolderPath: filepath.Join(t.TempDir(), "nope")})
	if err == nil {
		t.Fatal("expected error for missing folder")
	}
}

func TestFindSimilarImages(t *testing.T) {
	db := openTestDB(t)
	eng := newTestEngine(t)
	dir := buildFolder(t)
	if _, err := ScanAndStoreFolder(db, eng, ScanOptions{FolderPath: dir, SourcePrefix: "disk1"}); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	// a row from a different model is ignored
	if err := database.StoreEmbedding(db, types.IndexedImage{Path: "/other.png", SourcePrefix: "disk1", Embedding: types.Embedding{1, 0}}, false); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	query := filepath.Join(dir, "red.png")
	matches, err := FindSimilarImages(db, eng, SearchOptions{QueryPath: query, Threshold: 0.5})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %+v", matches)
	}
	if matches[0].Path != query || matches[0].Score != 100 || matches[0].Level != types.VeryHigh {
		t.Fatalf("unexpected best match %+v", matches[0])
	}
	if matches[1].Path != filepath.Join(dir, "mostly_red.png") || matches[1].RawScore >= matches[0].RawScore {
		t.Fatalf("unexpected second match %+v", matches[1])
	}

	limited, err := FindSimilarImages(db, eng, SearchOptions{QueryPath: query, Limit: 1})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(limited) != 1 || limited[0].Path != query {
		t.Fatalf("unexpected limited matches %+v", limited)
	}

	none, err := FindSimilarImages(db, eng, SearchOptions{QueryPath: query, SourcePrefix: "disk2"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches for other prefix, got %+v", none)
	}

	if _, err := FindSimilarImages(db, eng, SearchOptions{QueryPath: filepath.Join(dir, "broken.png")}); err == nil {
		t.Fatal("expected error for undecodable query")
	}
}

type fakeMetadata map[string]string

func (f fakeMetadata) CaptureTime(path string) (string, error) {
	return f[filepath.Base(path)], nil
}

func (fakeMetadata) Close() error { return nil }

func TestScanRecordsCaptureTime(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "red.png"), red)

	meta := fakeMetadata{"red.png": "2024:05:01 10:00:00"}
	if _, err := ScanAndStoreFolder(db, newTestEngine(t), ScanOptions{FolderPath: dir, Metadata: meta}); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	rows, err := database.QueryEmbeddings(db, "")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 1 || rows[0].CapturedAt != "2024:05:01 10:00:00" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestFirstTag(t *testing.T) {
	fields := map[string]interface{}{"CreateDate": "2020:01:01 00:00:00", "DateTimeOriginal": ""}
	if got := firstTag(fields, captureTags); got != "2020:01:01 00:00:00" {
		t.Fatalf("firstTag() = %q", got)
	}
	if got := firstTag(nil, captureTags); got != "" {
		t.Fatalf("firstTag(nil) = %q", got)
	}
}
