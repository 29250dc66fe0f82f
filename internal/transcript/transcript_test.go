package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRecorderWritesHeaderAndEvents(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)

	if err := r.Begin("127.0.0.1:5000"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := r.Inbound([]byte(`{"type":1,"name":"greet"}`)); err != nil {
		t.Fatalf("Inbound: %v", err)
	}
	if err := r.Outbound([]byte(`{"type":1,"code":"x"}`)); err != nil {
		t.Fatalf("Outbound: %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	var lines [][]byte
	for scanner.Scan() {
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var header Header
	if err := json.Unmarshal(lines[0], &header); err != nil {
		t.Fatalf("header: %v", err)
	}
	if header.Version != 1 || header.RemoteAddr != "127.0.0.1:5000" {
		t.Errorf("unexpected header: %+v", header)
	}

	var in, out Event
	if err := json.Unmarshal(lines[1], &in); err != nil {
		t.Fatalf("inbound event: %v", err)
	}
	if err := json.Unmarshal(lines[2], &out); err != nil {
		t.Fatalf("outbound event: %v", err)
	}
	if in.Direction != "i" || in.Data != `{"type":1,"name":"greet"}` {
		t.Errorf("unexpected inbound event: %+v", in)
	}
	if out.Direction != "o" || out.TimeOffset < in.TimeOffset {
		t.Errorf("unexpected outbound event: %+v", out)
	}
}

func TestEventUnmarshalRejectsBadShape(t *testing.T) {
	cases := []string{`[1, "i"]`, `["x", "i", "d"]`, `[1, 2, "d"]`, `[1, "i", 3]`, `{}`}
	for _, c := range cases {
		var e Event
		if err := json.Unmarshal([]byte(c), &e); err == nil {
			t.Errorf("expected error for %s", c)
		}
	}
}

func TestOpenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wire.jsonl")

	for i := 0; i < 2; i++ {
		r, err := Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := r.Begin(""); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := r.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := bytes.Count(data, []byte("\n")); n != 2 {
		t.Errorf("expected 2 header lines, got %d", n)
	}
}
