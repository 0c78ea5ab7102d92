package store

import (
	"context"
	"testing"
)

func TestMemoryKVGetPutRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss for unset key, got ok=%v err=%v", ok, err)
	}

	if err := kv.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("expected v1, got %q ok=%v err=%v", v, ok, err)
	}

	if err := kv.Remove(ctx, "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "k"); ok {
		t.Error("expected key gone after remove")
	}
}

func TestMemoryKVGetReturnsACopyNotAnAlias(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	original := []byte("hello")
	if err := kv.Put(ctx, "k", original); err != nil {
		t.Fatalf("put: %v", err)
	}
	original[0] = 'X'

	v, _, _ := kv.Get(ctx, "k")
	if string(v) != "hello" {
		t.Errorf("expected stored value unaffected by caller mutation, got %q", v)
	}

	v[0] = 'Y'
	v2, _, _ := kv.Get(ctx, "k")
	if string(v2) != "hello" {
		t.Errorf("expected second Get unaffected by mutation of first Get's result, got %q", v2)
	}
}

func TestMemoryKVBatchWriteAppliesPutsAndRemovesTogether(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	if err := kv.Put(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	err := kv.BatchWrite(ctx, []WriteOp{
		Put("b", []byte("2")),
		Delete("a"),
		Put("c", []byte("3")),
	})
	if err != nil {
		t.Fatalf("batch write: %v", err)
	}

	if _, ok, _ := kv.Get(ctx, "a"); ok {
		t.Error("expected a removed by batch")
	}
	if v, ok, _ := kv.Get(ctx, "b"); !ok || string(v) != "2" {
		t.Errorf("expected b=2, got %q ok=%v", v, ok)
	}
	if v, ok, _ := kv.Get(ctx, "c"); !ok || string(v) != "3" {
		t.Errorf("expected c=3, got %q ok=%v", v, ok)
	}
}

func TestMemoryKVScanReturnsPrefixedKeysInAscendingOrder(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	for _, k := range []string{"1_D_3", "1_D_1", "1_D_2", "2_D_1"} {
		if err := kv.Put(ctx, k, []byte("x")); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	entries, err := kv.Scan(ctx, "1_D_")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d (%+v)", len(entries), entries)
	}
	want := []string{"1_D_1", "1_D_2", "1_D_3"}
	for i, e := range entries {
		if e.Key != want[i] {
			t.Errorf("entry %d: expected key %q, got %q", i, want[i], e.Key)
		}
	}
}

func TestMemoryKVScanWithNoMatchesReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	kv.Put(ctx, "foo", []byte("x"))

	entries, err := kv.Scan(ctx, "bar")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %+v", entries)
	}
}

func TestMemoryKVContains(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	if ok, _ := kv.Contains(ctx, "k"); ok {
		t.Error("expected Contains=false before Put")
	}
	kv.Put(ctx, "k", []byte("v"))
	if ok, _ := kv.Contains(ctx, "k"); !ok {
		t.Error("expected Contains=true after Put")
	}
}

func TestMemoryKVCloseIsANoop(t *testing.T) {
	kv := NewMemoryKV()
	if err := kv.Close(); err != nil {
		t.Errorf("expected nil error from Close, got %v", err)
	}
}
