package session

import (
	"context"
	"testing"
	"time"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, "k", payload{Name: "a", Count: 2}, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	var got payload
	ok, err := store.Get(ctx, "k", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("key missing after put")
	}
	if got.Name != "a" || got.Count != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore()
	var got payload
	ok, err := store.Get(context.Background(), "nope", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Put(ctx, "k", payload{Name: "a"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	store.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	var got payload
	ok, err := store.Get(ctx, "k", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expired key still readable")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Put(ctx, "k", payload{}, 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var got payload
	ok, _ := store.Get(ctx, "k", &got)
	if ok {
		t.Fatal("deleted key still readable")
	}
}
