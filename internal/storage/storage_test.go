package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if err := store.Put(ctx, "state", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	value, err := store.Get(ctx, "state")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(value) != `[{"id":"a"}]` {
		t.Errorf("unexpected value: %s", value)
	}

	if err := store.Put(ctx, "state", []byte(`[]`)); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	value, err = store.Get(ctx, "state")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(value) != `[]` {
		t.Errorf("expected overwrite, got %s", value)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Delete(ctx, "absent"); err != nil {
		t.Fatalf("deleting absent key returned error: %v", err)
	}

	if err := store.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	input := []byte("original")
	if err := store.Put(ctx, "k", input); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	input[0] = 'X'

	value, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(value) != "original" {
		t.Errorf("stored value was mutated through the caller's slice: %s", value)
	}
}
