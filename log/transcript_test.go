package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTranscriptLifecycle(t *testing.T) {
	dir := t.TempDir()

	tl, err := NewTranscriptLogger(dir, NoOpLogger{})
	if err != nil {
		t.Fatalf("NewTranscriptLogger failed: %v", err)
	}
	defer tl.Close()

	tl.Open("sess-1")
	tl.Line("sess-1", "echo hello")
	tl.Output("sess-1", "hello\n")
	tl.Event("sess-1", "done")
	tl.CloseSession("sess-1")

	data, err := os.ReadFile(filepath.Join(dir, "sess-1.log"))
	if err != nil {
		t.Fatalf("transcript file missing: %v", err)
	}

	content := string(data)
	for _, want := range []string{"session sess-1", "$ echo hello", "hello\n", "done"} {
		if !strings.Contains(content, want) {
			t.Errorf("transcript missing %q:\n%s", want, content)
		}
	}
}

func TestTranscriptWriteWithoutOpen(t *testing.T) {
	dir := t.TempDir()

	tl, err := NewTranscriptLogger(dir, NoOpLogger{})
	if err != nil {
		t.Fatalf("NewTranscriptLogger failed: %v", err)
	}
	defer tl.Close()

	// Writes for unknown sessions are silently dropped.
	tl.Line("ghost", "ls")

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no transcript files, found %d", len(entries))
	}
}

func TestMemoryLogger(t *testing.T) {
	m := NewMemoryLogger()
	m.Info("session %s started", "abc")
	m.Warn("dropped subscriber")

	if !m.Contains("session abc started") {
		t.Error("missing info message")
	}

	msgs := m.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[1].Level != "WARN" {
		t.Errorf("level = %q, want WARN", msgs[1].Level)
	}

	m.Reset()
	if len(m.Messages()) != 0 {
		t.Error("Reset did not clear messages")
	}
}
