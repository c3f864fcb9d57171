// Package session implements the per-session state machine at the
// heart of the shell runtime: one server per session, serialising
// command execution, multicasting an ordered event stream to
// subscribers, and enforcing cancellation, timeouts and output limits.
//
// Concurrency model: the server's record is guarded by one mutex and
// mutated in one place; each accepted line runs on its own worker
// goroutine. At most one command is in flight per session. Event
// publication happens under the same mutex, so every subscriber
// observes the same total order. Subscriber delivery is non-blocking;
// a target that cannot accept an event is dropped from the set.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentjido/jido-shell/backend"
	"github.com/agentjido/jido-shell/command"
	"github.com/agentjido/jido-shell/log"
	"github.com/agentjido/jido-shell/parser"
	"github.com/agentjido/jido-shell/sandbox"
	"github.com/agentjido/jido-shell/shellerr"
	"github.com/agentjido/jido-shell/telemetry"
	"github.com/agentjido/jido-shell/vfs"
)

// Status is the server's execution state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusCancelling Status = "cancelling"
)

// Default limits applied when Options leaves them zero.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultHistoryLimit = 1000
)

// Options configure a new session server.
type Options struct {
	ID          string // generated when empty
	WorkspaceID string
	Cwd         string            // default "/"
	Env         map[string]string // initial environment
	Meta        map[string]string // transport-level tags

	Timeout      time.Duration // per-command; default 60s
	OutputLimit  int64         // cumulative bytes per command; 0 = unlimited
	HistoryLimit int           // default 1000

	Backend   backend.Backend // required
	FS        *vfs.Workspace  // required
	Policy    *sandbox.Policy // optional network policy
	Logger    log.LibraryLogger
	Telemetry telemetry.Emitter
}

// Server is one session's state machine.
type Server struct {
	mu    sync.Mutex
	state State

	status  Status
	stopped bool

	backend backend.Backend
	fs      *vfs.Workspace
	policy  *sandbox.Policy

	timeout      time.Duration
	outputLimit  int64
	historyLimit int

	subs map[string]Subscriber

	// per-command bookkeeping, reset by each Run
	runSeq       int
	cancelWorker context.CancelFunc
	timer        *time.Timer
	outputBytes  int64
	limitHit     bool

	logger    log.LibraryLogger
	telemetry telemetry.Emitter
	onStop    func(id string)
}

// New creates a session server in the idle state.
func New(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, errors.New("session: backend is required")
	}
	if opts.FS == nil {
		return nil, errors.New("session: workspace filesystem is required")
	}

	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.Cwd == "" {
		opts.Cwd = "/"
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = log.NoOpLogger{}
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NopEmitter{}
	}

	env := make(map[string]string, len(opts.Env))
	for k, v := range opts.Env {
		env[k] = v
	}
	meta := make(map[string]string, len(opts.Meta))
	for k, v := range opts.Meta {
		meta[k] = v
	}

	srv := &Server{
		state: State{
			ID:          opts.ID,
			WorkspaceID: opts.WorkspaceID,
			Cwd:         opts.Cwd,
			Env:         env,
			Meta:        meta,
		},
		status:       StatusIdle,
		backend:      opts.Backend,
		fs:           opts.FS,
		policy:       opts.Policy,
		timeout:      opts.Timeout,
		outputLimit:  opts.OutputLimit,
		historyLimit: opts.HistoryLimit,
		subs:         make(map[string]Subscriber),
		logger:       opts.Logger,
		telemetry:    opts.Telemetry,
	}

	srv.telemetry.SessionStarted(opts.ID, opts.WorkspaceID)
	return srv, nil
}

// ID returns the session identifier.
func (s *Server) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ID
}

// Status returns the current execution state.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// GetState returns a deep snapshot of the session record.
func (s *Server) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe adds a delivery target under the given handle. Only future
// events are delivered; there is no replay.
func (s *Server) Subscribe(handle string, sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[handle] = sub
}

// Unsubscribe removes a delivery target. Unknown handles are ignored.
func (s *Server) Unsubscribe(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, handle)
}

// publishLocked delivers ev to every subscriber, in the total order
// established by the caller holding s.mu. Subscribers whose Deliver
// fails are removed; delivery never blocks the server.
func (s *Server) publishLocked(ev Event) {
	ev.Stream = Stream
	ev.SessionID = s.state.ID

	for handle, sub := range s.subs {
		if err := sub.Deliver(ev); err != nil {
			delete(s.subs, handle)
			s.logger.Warn("session %s: dropped subscriber %s: %v", s.state.ID, handle, err)
		}
	}
}

func (s *Server) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(ev)
}

// Run accepts a command line. In the idle state the line is accepted,
// command_started is published and a worker goroutine takes over; in
// any other state Run fails with {shell, busy}.
func (s *Server) Run(line string) error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return shellerr.Newf(shellerr.SessionNotFound, "session %s is stopped", s.state.ID).
			WithContext("session_id", s.state.ID)
	}
	if s.status != StatusIdle {
		s.mu.Unlock()
		return shellerr.New(shellerr.ShellBusy, "a command is already running").
			WithContext("line", line)
	}

	ctx, cancel := context.WithCancel(context.Background())
	started := time.Now()

	s.status = StatusRunning
	s.cancelWorker = cancel
	s.outputBytes = 0
	s.limitHit = false
	s.runSeq++
	seq := s.runSeq

	s.state.Current = &CurrentCommand{Line: line, StartedAt: started}
	s.state.pushHistory(line, s.historyLimit)

	st := command.State{
		Cwd:     s.state.Cwd,
		Env:     cloneEnv(s.state.Env),
		History: append([]string(nil), s.state.History...),
		FS:      s.fs,
	}

	s.publishLocked(Event{Kind: EventCommandStarted, Line: line})

	s.timer = time.AfterFunc(s.timeout, func() { s.onTimeout(seq) })
	s.mu.Unlock()

	s.telemetry.CommandStarted(s.state.ID, line)

	go s.worker(ctx, seq, line, st, started)
	return nil
}

// Cancel asks the in-flight worker to stop. A no-op when idle,
// idempotent while cancelling.
func (s *Server) Cancel() {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return
	}
	s.status = StatusCancelling
	cancel := s.cancelWorker
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := s.backend.Cancel(); err != nil {
		s.logger.Warn("session %s: backend cancel: %v", s.state.ID, err)
	}
}

// onTimeout fires when the command identified by seq outlives its
// window: publish the timeout error, then cancel like a client would.
func (s *Server) onTimeout(seq int) {
	s.mu.Lock()
	if s.runSeq != seq || s.status == StatusIdle {
		s.mu.Unlock()
		return
	}
	s.publishLocked(Event{
		Kind: EventError,
		Err: shellerr.Newf(shellerr.CommandTimeout, "command timed out after %s", s.timeout).
			WithContext("timeout", s.timeout.String()),
	})
	s.status = StatusCancelling
	cancel := s.cancelWorker
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := s.backend.Cancel(); err != nil {
		s.logger.Warn("session %s: backend cancel: %v", s.state.ID, err)
	}
}

// emitOutput is the emit closure handed to backends: publish the chunk
// and account it against the output limit, cancelling on overflow.
func (s *Server) emitOutput(chunk string) {
	s.mu.Lock()
	if s.limitHit {
		s.mu.Unlock()
		return
	}

	s.outputBytes += int64(len(chunk))
	s.publishLocked(Event{Kind: EventOutput, Chunk: chunk})

	exceeded := s.outputLimit > 0 && s.outputBytes > s.outputLimit
	if exceeded {
		s.limitHit = true
		s.publishLocked(Event{
			Kind: EventError,
			Err: shellerr.Newf(shellerr.CommandOutputLimit, "output limit of %d bytes exceeded", s.outputLimit).
				WithContext("limit", fmt.Sprintf("%d", s.outputLimit)),
		})
		if s.status == StatusRunning {
			s.status = StatusCancelling
		}
	}
	cancel := s.cancelWorker
	s.mu.Unlock()

	if exceeded {
		if cancel != nil {
			cancel()
		}
		if err := s.backend.Cancel(); err != nil {
			s.logger.Warn("session %s: backend cancel: %v", s.state.ID, err)
		}
	}
}

// worker executes one accepted line: parse, then iterate statements
// honouring chaining, policy, cancellation and state updates. Exactly
// one terminal event is produced, in finish.
func (s *Server) worker(ctx context.Context, seq int, line string, st command.State, started time.Time) {
	term := EventCommandDone
	reason := ""

	defer func() {
		if r := recover(); r != nil {
			term = EventCommandCrashed
			reason = fmt.Sprintf("%v", r)
		}
		// A statement may finish without observing the cancellation
		// that a timeout or the output cap triggered on its final
		// emit; the run is still a cancelled one.
		if term == EventCommandDone && ctx.Err() != nil {
			term = EventCommandCancelled
		}
		s.finish(seq, term, reason, line, started)
	}()

	program, err := parser.Parse(line)
	if err != nil {
		s.publish(Event{Kind: EventError, Err: asError(err)})
		return
	}

	prevOK := true
	for _, stmt := range program {
		if ctx.Err() != nil {
			term = EventCommandCancelled
			return
		}
		if stmt.Operator == parser.OpAndIf && !prevOK {
			continue
		}

		if s.policy != nil {
			if err := s.policy.CheckLine(stmt.Line()); err != nil {
				s.telemetry.PolicyDenied(s.state.ID, stmt.Line())
				s.publish(Event{Kind: EventError, Err: asError(err)})
				prevOK = false
				continue
			}
		}

		res, err := s.backend.Execute(ctx, st, stmt, s.emitOutput)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				term = EventCommandCancelled
				return
			}
			s.publish(Event{Kind: EventError, Err: asError(err)})
			prevOK = false
			continue
		}

		st = s.applyUpdate(st, res.Update)
		prevOK = true
	}
}

// applyUpdate folds a statement's state update into both the worker's
// local state and the session record, publishing cwd_changed when the
// working directory actually moved.
func (s *Server) applyUpdate(st command.State, update *command.StateUpdate) command.State {
	if update == nil {
		return st
	}

	cwdChanged := update.Cwd != "" && update.Cwd != st.Cwd
	st = sandbox.ApplyUpdate(st, update)

	s.mu.Lock()
	if update.Cwd != "" {
		s.state.Cwd = update.Cwd
	}
	for k, v := range update.Env {
		s.state.Env[k] = v
	}
	if cwdChanged {
		s.publishLocked(Event{Kind: EventCwdChanged, Path: update.Cwd})
	}
	s.mu.Unlock()

	return st
}

// finish closes out one command: exactly one terminal event, timer
// teardown, back to idle.
func (s *Server) finish(seq int, term EventKind, reason, line string, started time.Time) {
	s.mu.Lock()
	if s.runSeq != seq {
		s.mu.Unlock()
		return
	}
	// The timeout handler may have moved the session to cancelling
	// between the worker's last ctx check and this lock; the terminal
	// must reflect it.
	if term == EventCommandDone && (s.status == StatusCancelling || s.limitHit) {
		term = EventCommandCancelled
	}
	// Invalidate the timeout for this run.
	s.runSeq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancelWorker != nil {
		s.cancelWorker()
		s.cancelWorker = nil
	}
	s.status = StatusIdle
	s.state.Current = nil

	ev := Event{Kind: term}
	if term == EventCommandCrashed {
		ev.Reason = reason
		s.logger.Error("session %s: worker crashed: %s", s.state.ID, reason)
	}
	s.publishLocked(ev)
	s.mu.Unlock()

	s.telemetry.CommandFinished(s.state.ID, line, string(term), time.Since(started))
}

// Stop terminates the session: the in-flight worker (if any) is
// cancelled, the session deregisters, and further Run calls fail.
// Safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.status == StatusRunning {
		s.status = StatusCancelling
	}
	cancel := s.cancelWorker
	id := s.state.ID
	onStop := s.onStop
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := s.backend.Cancel(); err != nil {
		s.logger.Warn("session %s: backend cancel: %v", id, err)
	}
	if err := s.backend.Terminate(); err != nil {
		s.logger.Warn("session %s: backend terminate: %v", id, err)
	}

	s.telemetry.SessionStopped(id)
	if onStop != nil {
		onStop(id)
	}
}

func cloneEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// asError coerces err into the structured form events carry. Errors
// outside the taxonomy count as crashes.
func asError(err error) *shellerr.Error {
	var se *shellerr.Error
	if errors.As(err, &se) {
		return se
	}
	return shellerr.Wrap(shellerr.CommandCrashed, err).WithContext("reason", err.Error())
}
