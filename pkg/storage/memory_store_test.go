package storage

import (
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := OverlayKey("abc")
	if key != "overlays/abc.png" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, found, err := s.Get(ctx, key); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
	data := []byte{1, 2, 3}
	if err := s.Put(ctx, key, data, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data[0] = 9
	got, found, err := s.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if got[0] != 1 {
		t.Fatalf("stored bytes must not alias the caller's slice")
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Get(ctx, key); found {
		t.Fatalf("expected miss after delete")
	}
	if s.Puts() != 1 {
		t.Fatalf("expected 1 put, got %d", s.Puts())
	}
}
