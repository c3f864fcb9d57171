package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TranscriptLogger writes per-session transcript files. Each session
// gets one file named <session-id>.log under the configured directory,
// recording submitted lines, output chunks and terminal events with
// timestamps.
//
// Transcripts are an operator aid; each failure to write is reported
// through the library logger and never fails the session.
type TranscriptLogger struct {
	dir    string
	logger LibraryLogger
	mu     sync.Mutex
	files  map[string]*os.File
}

// NewTranscriptLogger creates a transcript logger rooted at dir,
// creating the directory if needed.
func NewTranscriptLogger(dir string, logger LibraryLogger) (*TranscriptLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	if logger == nil {
		logger = NoOpLogger{}
	}
	return &TranscriptLogger{
		dir:    dir,
		logger: logger,
		files:  make(map[string]*os.File),
	}, nil
}

// Open starts a transcript for the given session, writing a header.
// Opening an already open session is a no-op.
func (t *TranscriptLogger) Open(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.files[sessionID]; ok {
		return
	}

	f, err := os.Create(filepath.Join(t.dir, sessionID+".log"))
	if err != nil {
		t.logger.Warn("transcript open failed for %s: %v", sessionID, err)
		return
	}

	fmt.Fprintf(f, "session %s - %s\n", sessionID, time.Now().Format(time.RFC3339))
	fmt.Fprintf(f, "%s\n\n", strings.Repeat("=", 70))
	t.files[sessionID] = f
}

// Line records a submitted command line.
func (t *TranscriptLogger) Line(sessionID, line string) {
	t.write(sessionID, "$ "+line+"\n")
}

// Output records an output chunk verbatim.
func (t *TranscriptLogger) Output(sessionID, chunk string) {
	t.write(sessionID, chunk)
}

// Event records a lifecycle event (done, cancelled, crashed, error).
func (t *TranscriptLogger) Event(sessionID, event string) {
	t.write(sessionID, fmt.Sprintf("[%s] %s\n", time.Now().Format("15:04:05"), event))
}

func (t *TranscriptLogger) write(sessionID, s string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[sessionID]
	if !ok {
		return
	}
	if _, err := f.WriteString(s); err != nil {
		t.logger.Warn("transcript write failed for %s: %v", sessionID, err)
	}
}

// CloseSession ends the transcript for one session.
func (t *TranscriptLogger) CloseSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.files[sessionID]; ok {
		f.Close()
		delete(t.files, sessionID)
	}
}

// Close ends all open transcripts.
func (t *TranscriptLogger) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, f := range t.files {
		f.Close()
		delete(t.files, id)
	}
}
