package clusterconfig

import "testing"

func TestParserUnmarshalSkipsCommentsAndBlankLines(t *testing.T) {
	src := "# comment\nip=127.0.0.1\n\nport=6380\n"
	m, err := Parser().Unmarshal([]byte(src))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["ip"] != "127.0.0.1" || m["port"] != "6380" {
		t.Fatalf("unexpected map: %v", m)
	}
}

func TestParserUnmarshalRejectsMissingEquals(t *testing.T) {
	_, err := Parser().Unmarshal([]byte("not_a_kv_line\n"))
	if err == nil {
		t.Fatalf("expected error for line without '='")
	}
}
