package dataset

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/storage/object"
)

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func testStore(t *testing.T) *Store {
	t.Helper()
	fs, err := object.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	return NewStore(fs, "processed_data/", nil, nil)
}

func TestStore_Key(t *testing.T) {
	s := testStore(t)
	d := core.Date{Year: 2025, Month: time.March, Day: 2}
	if got := s.Key(d); got != "processed_data/final_aligned_data_20250302.json.gz" {
		t.Errorf("Key = %s", got)
	}
}

func TestStore_PublishAndLoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	ds := testDataset(t)

	key, err := s.Publish(ctx, ds)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if key != s.Key(ds.TargetDate) {
		t.Errorf("key = %s", key)
	}
	if ds.ContentHash == "" {
		t.Error("Publish did not fill in the content hash")
	}

	back, err := s.LoadFor(ctx, ds.TargetDate)
	if err != nil {
		t.Fatalf("LoadFor: %v", err)
	}
	if back.ContentHash != ds.ContentHash {
		t.Errorf("hash mismatch after reload")
	}
	if len(back.Rows) != len(ds.Rows) {
		t.Errorf("got %d rows, want %d", len(back.Rows), len(ds.Rows))
	}
}

func TestStore_RepublishSameHash(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ds := testDataset(t)
	if _, err := s.Publish(ctx, ds); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	first := ds.ContentHash

	again := testDataset(t)
	if _, err := s.Publish(ctx, again); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if again.ContentHash != first {
		t.Errorf("republishing identical rows changed the hash: %s vs %s", again.ContentHash, first)
	}

	dates, err := s.PublishedDates(ctx)
	if err != nil {
		t.Fatalf("PublishedDates: %v", err)
	}
	if len(dates) != 1 {
		t.Errorf("got %d published dates, want 1 after replace", len(dates))
	}
}

func TestStore_LoadLatest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, day := range []int{3, 1, 2} {
		ds := testDataset(t)
		ds.TargetDate = core.Date{Year: 2025, Month: time.March, Day: day}
		if _, err := s.Publish(ctx, ds); err != nil {
			t.Fatalf("publish day %d: %v", day, err)
		}
	}

	latest, err := s.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if latest.TargetDate.Day != 3 {
		t.Errorf("latest = %s, want 2025-03-03", latest.TargetDate)
	}
}

func TestStore_LoadForMissing(t *testing.T) {
	s := testStore(t)
	_, err := s.LoadFor(context.Background(), core.Date{Year: 2025, Month: time.March, Day: 9})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestStore_LoadLatestEmpty(t *testing.T) {
	s := testStore(t)
	_, err := s.LoadLatest(context.Background())
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}
