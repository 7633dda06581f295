package idempotency

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	hash := HashRequest("POST", "/api/v1/escrows", []byte(`{"a":1}`))

	if rec, _ := store.Get(ctx, "missing", hash); rec != nil {
		t.Fatalf("expected nil for missing key")
	}

	record := Record{
		RequestHash: hash,
		StatusCode:  201,
		Response:    []byte("ok"),
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(time.Minute),
	}
	if err := store.Save(ctx, "abc", record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, _ := store.Get(ctx, "abc", hash)
	if got == nil || string(got.Response) != "ok" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemoryStoreDetectsRequestMismatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	hash := HashRequest("POST", "/api/v1/escrows", []byte(`{"a":1}`))

	record := Record{
		RequestHash: hash,
		StatusCode:  201,
		Response:    []byte("ok"),
		ExpiresAt:   time.Now().Add(time.Minute),
	}
	if err := store.Save(ctx, "abc", record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	other := HashRequest("POST", "/api/v1/escrows", []byte(`{"a":2}`))
	if _, err := store.Get(ctx, "abc", other); !errors.Is(err, ErrRequestMismatch) {
		t.Fatalf("expected ErrRequestMismatch, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	hash := HashRequest("POST", "/p", nil)

	record := Record{
		RequestHash: hash,
		StatusCode:  200,
		Response:    []byte("old"),
		ExpiresAt:   time.Now().Add(-time.Second),
	}
	_ = store.Save(ctx, "stale", record)
	if rec, err := store.Get(ctx, "stale", hash); rec != nil || err != nil {
		t.Fatalf("expected expired record to be invisible, got %+v, %v", rec, err)
	}
}

func TestFileStorePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idem.json")
	hash := HashRequest("POST", "/api/v1/escrows", []byte("body"))

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	ctx := context.Background()
	record := Record{
		RequestHash: hash,
		StatusCode:  201,
		Response:    []byte("resp"),
		CreatedAt:   time.Unix(0, 0),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if err := store.Save(ctx, "key", record); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	store2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("re-open store: %v", err)
	}

	got, _ := store2.Get(ctx, "key", hash)
	if got == nil || string(got.Response) != "resp" {
		t.Fatalf("unexpected record: %+v", got)
	}
}
