package blob

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestStoresRoundTrip(t *testing.T) {
	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "slots.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer sqliteStore.Close()

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.Get(ctx, "guest/x/reports"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound for missing key, got %v", err)
			}

			if err := store.Put(ctx, "guest/x/reports", []byte(`[1]`)); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := store.Put(ctx, "guest/x/reports", []byte(`[1,2]`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			data, err := store.Get(ctx, "guest/x/reports")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(data) != `[1,2]` {
				t.Fatalf("expected overwritten value, got %s", data)
			}

			if err := store.Delete(ctx, "guest/x/reports"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.Get(ctx, "guest/x/reports"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			if err := store.Delete(ctx, "guest/x/reports"); err != nil {
				t.Fatalf("deleting a missing key must succeed, got %v", err)
			}
		})
	}
}

func TestMemoryStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	buf := []byte("abc")
	_ = store.Put(ctx, "k", buf)
	buf[0] = 'z'

	got, _ := store.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("store must not alias caller buffer, got %s", got)
	}
}
