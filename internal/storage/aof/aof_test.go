package aof

import (
	"path/filepath"
	"testing"
)

func TestAppendReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appendonly.aof")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Append([]string{"SET", "foo", "bar"}, []int{1, 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append([]string{"DEL", "foo"}, []int{1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lookup := func(name string) ([]int, bool) {
		switch name {
		case "SET":
			return []int{1, 2}, true
		case "DEL":
			return []int{1}, true
		}
		return nil, false
	}

	var replayed [][]string
	if err := Replay(path, nil, lookup, func(tokens []string) error {
		cp := append([]string(nil), tokens...)
		replayed = append(replayed, cp)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(replayed) != 2 {
		t.Fatalf("expected 2 replayed commands, got %d", len(replayed))
	}
	if replayed[0][0] != "SET" || replayed[0][1] != "foo" || replayed[0][2] != "bar" {
		t.Fatalf("unexpected first command: %v", replayed[0])
	}
	if replayed[1][0] != "DEL" || replayed[1][1] != "foo" {
		t.Fatalf("unexpected second command: %v", replayed[1])
	}
}

func TestTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appendonly.aof")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()
	if err := l.Append([]string{"SET", "k", "v"}, []int{1, 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	var count int
	lookup := func(string) ([]int, bool) { return nil, false }
	if err := Replay(path, nil, lookup, func([]string) error { count++; return nil }); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 replayed commands after truncate, got %d", count)
	}
}
