package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "warn", "json").Info("dropped")
	newLogger(&buf, "warn", "json").Warn("kept", "address", "0xabc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if entry["msg"] != "kept" || entry["address"] != "0xabc" {
		t.Fatalf("unexpected entry %v", entry)
	}

	buf.Reset()
	newLogger(&buf, "bogus", "text").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output at default info level, got %q", buf.String())
	}
}
