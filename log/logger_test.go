package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_RejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLogger_EmitsJSONLines(t *testing.T) {
	logger, err := New("debug")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	var buf bytes.Buffer
	logger = logger.WithOutput(&buf)
	logger.Info("job started", map[string]any{"identifier": "0x1F3"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["message"] != "job started" {
		t.Errorf("message = %v, want %q", entry["message"], "job started")
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["identifier"] != "0x1F3" {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_WithJobStampsContext(t *testing.T) {
	logger, err := New("info")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	var buf bytes.Buffer
	logger = logger.WithOutput(&buf).WithJob("job-42", 0x1F3)
	logger.Warn("worker killed", nil)

	out := buf.String()
	if !strings.Contains(out, `"job_id":"job-42"`) {
		t.Errorf("missing job_id field: %s", out)
	}
	if !strings.Contains(out, `"identifier":"0x1F3"`) {
		t.Errorf("missing identifier field: %s", out)
	}
}

func TestNop_DiscardsEverything(t *testing.T) {
	logger := Nop()
	logger.Error("ignored", nil)
	logger.Sugar().Errorf("ignored %d", 1)
}
