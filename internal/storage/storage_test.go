package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

type testRecord struct {
	Base    string  `json:"base"`
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity"`
}

func TestStorage_PutAndGet(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/data")
	ctx := context.Background()

	rec := testRecord{Base: "osm", Visible: true, Opacity: 0.7}

	if err := s.Put(ctx, []string{"state", "control"}, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Verify file exists
	if ok, _ := afero.Exists(fs, "/data/state/control.json"); !ok {
		t.Fatal("File was not created")
	}

	var got testRecord
	if err := s.Get(ctx, []string{"state", "control"}, &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != rec {
		t.Errorf("Data mismatch: got %+v, want %+v", got, rec)
	}
}

func TestStorage_GetNotFound(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")

	var got testRecord
	err := s.Get(context.Background(), []string{"state", "missing"}, &got)
	if err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStorage_Overwrite(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	first := testRecord{Base: "osm", Opacity: 1.0}
	second := testRecord{Base: "satellite", Opacity: 0.5}

	if err := s.Put(ctx, []string{"state", "control"}, first); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, []string{"state", "control"}, second); err != nil {
		t.Fatalf("Second Put failed: %v", err)
	}

	var got testRecord
	if err := s.Get(ctx, []string{"state", "control"}, &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != second {
		t.Errorf("Expected overwritten value %+v, got %+v", second, got)
	}
}

func TestStorage_Delete(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	rec := testRecord{Base: "osm"}

	if err := s.Put(ctx, []string{"state", "toDelete"}, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, []string{"state", "toDelete"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var got testRecord
	if err := s.Get(ctx, []string{"state", "toDelete"}, &got); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}
}

func TestStorage_DeleteNonexistent(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")

	// Deleting a missing key should not error
	if err := s.Delete(context.Background(), []string{"state", "missing"}); err != nil {
		t.Errorf("Delete of nonexistent item should not error: %v", err)
	}
}

func TestStorage_Exists(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	if s.Exists(ctx, []string{"state", "control"}) {
		t.Error("Item should not exist")
	}

	if err := s.Put(ctx, []string{"state", "control"}, testRecord{Base: "osm"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if !s.Exists(ctx, []string{"state", "control"}) {
		t.Error("Item should exist")
	}
}

func TestStorage_ConcurrentAccess(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")
	ctx := context.Background()

	// Concurrent writes to the same key
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			rec := testRecord{Base: "osm", Opacity: float64(val) / 10}
			if err := s.Put(ctx, []string{"state", "concurrent"}, rec); err != nil {
				t.Errorf("Concurrent Put failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	var got testRecord
	if err := s.Get(ctx, []string{"state", "concurrent"}, &got); err != nil {
		t.Fatalf("Get after concurrent writes failed: %v", err)
	}
}

func TestStorage_AtomicWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/data")

	if err := s.Put(context.Background(), []string{"state", "atomic"}, testRecord{Base: "osm"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// No temp file left behind after a successful write
	if ok, _ := afero.Exists(fs, "/data/state/atomic.json.tmp"); ok {
		t.Error("Temp file should not exist after successful write")
	}
}
