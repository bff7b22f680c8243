package kv

import (
	"errors"
	"testing"

	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/clustererr"
)

func TestSetGetRoundTrip(t *testing.T) {
	s := New(clusterid.Range{Start: 0, End: clusterid.SlotCount})
	if err := s.Set("foo", StringValue([]byte("bar"))); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get("foo")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v.Str) != "bar" {
		t.Fatalf("got %q, want bar", v.Str)
	}
}

func TestOutOfRangeReturnsMoved(t *testing.T) {
	// foo hashes to slot 12182 per the spec's worked example.
	s := New(clusterid.Range{Start: 0, End: 8000})
	_, _, err := s.Get("foo")
	var me *clustererr.MovedError
	if !errors.As(err, &me) {
		t.Fatalf("expected MovedError, got %v", err)
	}
	if me.Slot != 12182 {
		t.Fatalf("expected slot 12182, got %d", me.Slot)
	}
}

func TestRemove(t *testing.T) {
	s := New(clusterid.Range{Start: 0, End: clusterid.SlotCount})
	_ = s.Set("k", StringValue([]byte("v")))
	existed, err := s.Remove("k")
	if err != nil || !existed {
		t.Fatalf("remove: existed=%v err=%v", existed, err)
	}
	_, ok, _ := s.Get("k")
	if ok {
		t.Fatalf("expected key removed")
	}
}

func TestIterOrder(t *testing.T) {
	s := New(clusterid.Range{Start: 0, End: clusterid.SlotCount})
	_ = s.Set("b", StringValue([]byte("2")))
	_ = s.Set("a", StringValue([]byte("1")))
	var keys []string
	s.Iter(func(key string, _ Value) { keys = append(keys, key) })
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected order: %v", keys)
	}
}
