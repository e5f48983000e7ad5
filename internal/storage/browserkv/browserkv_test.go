package browserkv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/redstring/core/internal/kv"
)

func newTestAdapter(t *testing.T, maxEntries int) *Adapter {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "browserkv.db"))
	if err != nil {
		t.Fatalf("kv.Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, maxEntries)
}

func TestWriteThenRead(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t, 3)
	ctx := context.Background()

	if err := a.Write(ctx, "universe-1", "document text"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got, err := a.Read(ctx, "universe-1")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if got != "document text" {
		t.Errorf("Read() = %q", got)
	}
}

func TestReadMissingKey(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t, 3)
	if _, err := a.Read(context.Background(), "nope"); err == nil {
		t.Error("Read() on a missing key should error")
	}
}

func TestWriteEvictsOldestWhenAtCapacity(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t, 2)
	ctx := context.Background()

	if err := a.Write(ctx, "u1", "a"); err != nil {
		t.Fatalf("Write(u1) error: %v", err)
	}
	if err := a.Write(ctx, "u2", "b"); err != nil {
		t.Fatalf("Write(u2) error: %v", err)
	}
	if err := a.Write(ctx, "u3", "c"); err != nil {
		t.Fatalf("Write(u3) error: %v", err)
	}

	if _, err := a.Read(ctx, "u1"); err == nil {
		t.Error("u1 should have been evicted to make room for u3")
	}
	if _, err := a.Read(ctx, "u3"); err != nil {
		t.Errorf("u3 should be readable after eviction: %v", err)
	}
}

func TestWriteUpdatingExistingKeyDoesNotEvict(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t, 2)
	ctx := context.Background()

	a.Write(ctx, "u1", "a")
	a.Write(ctx, "u2", "b")
	if err := a.Write(ctx, "u1", "a-updated"); err != nil {
		t.Fatalf("Write(u1 update) error: %v", err)
	}

	got, err := a.Read(ctx, "u1")
	if err != nil {
		t.Fatalf("Read(u1) error: %v", err)
	}
	if got != "a-updated" {
		t.Errorf("Read(u1) = %q, want a-updated", got)
	}
	if _, err := a.Read(ctx, "u2"); err != nil {
		t.Errorf("u2 should still be present: %v", err)
	}
}
