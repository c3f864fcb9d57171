// Package telemetry defines the hook interface the session server
// calls at lifecycle points. Consumers implement Emitter to feed
// metrics or audit sinks; the shell itself ships a no-op and a
// logger-backed emitter.
package telemetry

import (
	"time"

	"github.com/agentjido/jido-shell/log"
)

// Emitter receives lifecycle notifications. Implementations must be
// safe for concurrent use and must not block: they are called from the
// session server's hot path.
type Emitter interface {
	SessionStarted(sessionID, workspaceID string)
	SessionStopped(sessionID string)
	CommandStarted(sessionID, line string)
	CommandFinished(sessionID, line, status string, elapsed time.Duration)
	PolicyDenied(sessionID, line string)
}

// NopEmitter discards all notifications.
type NopEmitter struct{}

func (NopEmitter) SessionStarted(sessionID, workspaceID string) {}

func (NopEmitter) SessionStopped(sessionID string) {}

func (NopEmitter) CommandStarted(sessionID, line string) {}

func (NopEmitter) CommandFinished(sessionID, line, status string, elapsed time.Duration) {}

func (NopEmitter) PolicyDenied(sessionID, line string) {}

// LogEmitter reports lifecycle events through a LibraryLogger.
type LogEmitter struct {
	Logger log.LibraryLogger
}

func (e LogEmitter) SessionStarted(sessionID, workspaceID string) {
	e.Logger.Info("session %s started (workspace %s)", sessionID, workspaceID)
}

func (e LogEmitter) SessionStopped(sessionID string) {
	e.Logger.Info("session %s stopped", sessionID)
}

func (e LogEmitter) CommandStarted(sessionID, line string) {
	e.Logger.Debug("session %s: command started: %s", sessionID, line)
}

func (e LogEmitter) CommandFinished(sessionID, line, status string, elapsed time.Duration) {
	e.Logger.Debug("session %s: command %s after %s: %s", sessionID, status, elapsed, line)
}

func (e LogEmitter) PolicyDenied(sessionID, line string) {
	e.Logger.Warn("session %s: network policy denied: %s", sessionID, line)
}
