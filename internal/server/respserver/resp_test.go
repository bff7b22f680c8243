package respserver

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/tokmesh/cluster/internal/core/clustererr"
	"github.com/tokmesh/cluster/internal/executor"
)

func TestReadCommandArray(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple PING", "*1\r\n$4\r\nPING\r\n", []string{"PING"}},
		{"GET command", "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n", []string{"GET", "foo"}},
		{"SET command", "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n", []string{"SET", "foo", "bar"}},
		{"empty array", "*0\r\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			got, err := ReadCommand(r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if string(got[i]) != tt.want[i] {
					t.Fatalf("token %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWriteReplySimpleString(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := writeReply(bw, executor.SimpleString("OK"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bw.Flush()
	if buf.String() != "+OK\r\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestWriteReplyMovedWithResolver(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	resolver := func(slot uint16) (string, bool) {
		return "10.0.0.1:7000", slot == 12182
	}
	err := writeReply(bw, &clustererr.MovedError{Slot: 12182}, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bw.Flush()
	if buf.String() != "-MOVED 12182 10.0.0.1:7000\r\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestWriteReplyArrayRecurses(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	reply := []any{executor.SimpleString("subscribe"), []byte("news"), int64(1)}
	if err := writeReply(bw, reply, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bw.Flush()
	want := "*3\r\n+subscribe\r\n$4\r\nnews\r\n:1\r\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}
