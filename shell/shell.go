// Package shell is the embedding façade: it owns the shared resources
// of one shell runtime (mount table, session registry, network policy,
// transcripts) and wires them together from configuration.
//
// Usage:
//
//	cfg, _ := config.Load("/etc/jido-shell.ini", "")
//	sh, err := shell.New(cfg, log.StdoutLogger{})
//	if err != nil {
//	    ...
//	}
//	defer sh.Close()
//
//	srv, _ := sh.CreateSession()
//	srv.Subscribe("app", mySubscriber)
//	srv.Run("echo hello")
package shell

import (
	"fmt"
	"sync"

	"github.com/agentjido/jido-shell/backend"
	"github.com/agentjido/jido-shell/command"
	"github.com/agentjido/jido-shell/config"
	"github.com/agentjido/jido-shell/log"
	"github.com/agentjido/jido-shell/sandbox"
	"github.com/agentjido/jido-shell/session"
	"github.com/agentjido/jido-shell/telemetry"
	"github.com/agentjido/jido-shell/vfs"

	"github.com/agentjido/jido-shell/backend/localexec"
	_ "github.com/agentjido/jido-shell/backend/sshexec"
	_ "github.com/agentjido/jido-shell/vfs/boltfs"
	_ "github.com/agentjido/jido-shell/vfs/memfs"
)

// Shell coordinates the shared subsystems of one runtime instance.
type Shell struct {
	cfg       *config.Config
	logger    log.LibraryLogger
	telemetry telemetry.Emitter

	table       *vfs.Table
	registry    *session.Registry
	policy      *sandbox.Policy
	transcripts *log.TranscriptLogger

	mu     sync.Mutex
	closed bool
}

// New builds a shell from configuration: loads the network policy,
// mounts the configured workspace and prepares the session registry.
// The caller must Close the shell to release resources.
func New(cfg *config.Config, logger log.LibraryLogger) (*Shell, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if logger == nil {
		logger = log.NoOpLogger{}
	}

	sh := &Shell{
		cfg:       cfg,
		logger:    logger,
		telemetry: telemetry.LogEmitter{Logger: logger},
	}

	if cfg.PolicyFile != "" {
		policy, err := sandbox.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		sh.policy = policy
	}

	sh.table = vfs.NewTable(logger)
	for _, spec := range cfg.Mounts {
		opts := vfs.MountOptions{Managed: spec.Managed, Config: spec.Options}
		if _, err := sh.table.MountAdapter(cfg.Workspace, spec.Path, spec.Adapter, opts); err != nil {
			sh.table.UnmountWorkspace(cfg.Workspace, false)
			return nil, fmt.Errorf("mount %s: %w", spec.Path, err)
		}
	}

	if cfg.TranscriptDir != "" {
		transcripts, err := log.NewTranscriptLogger(cfg.TranscriptDir, logger)
		if err != nil {
			sh.table.UnmountWorkspace(cfg.Workspace, false)
			return nil, err
		}
		sh.transcripts = transcripts
	}

	sh.registry = session.NewRegistry(logger)
	return sh, nil
}

// Workspace returns the façade over the configured workspace's mounts.
func (sh *Shell) Workspace() *vfs.Workspace {
	return vfs.NewWorkspace(sh.table, sh.cfg.Workspace)
}

// Table exposes the mount table for mount management.
func (sh *Shell) Table() *vfs.Table {
	return sh.table
}

// Policy returns the loaded network policy, nil when none configured.
func (sh *Shell) Policy() *sandbox.Policy {
	return sh.policy
}

// newBackend builds and initialises the configured backend for one
// session.
func (sh *Shell) newBackend() (backend.Backend, error) {
	b, err := backend.New(sh.cfg.Backend)
	if err != nil {
		return nil, err
	}

	// The local backend runs the builtin registry with bash wired
	// through the sandbox executor and this shell's policy.
	if lb, ok := b.(*localexec.Backend); ok {
		runner := command.NewRunner(command.Builtins())
		sandbox.RegisterBash(runner.Registry(), sandbox.NewExecutor(runner, sh.policy))
		lb.SetRunner(runner)
	}

	cfg := backend.Config{Settings: sh.cfg.BackendSettings, Logger: sh.logger}
	if err := b.Init(cfg); err != nil {
		return nil, err
	}

	if sh.policy != nil {
		if npc, ok := b.(backend.NetworkPolicyConfigurer); ok {
			if err := npc.ConfigureNetwork(sh.policy); err != nil {
				b.Terminate()
				return nil, err
			}
		}
	}
	return b, nil
}

// CreateSession starts a new session against the configured workspace.
func (sh *Shell) CreateSession() (*session.Server, error) {
	sh.mu.Lock()
	if sh.closed {
		sh.mu.Unlock()
		return nil, fmt.Errorf("shell is closed")
	}
	sh.mu.Unlock()

	b, err := sh.newBackend()
	if err != nil {
		return nil, err
	}

	srv, err := sh.registry.Create(session.Options{
		WorkspaceID:  sh.cfg.Workspace,
		Timeout:      sh.cfg.Timeout,
		OutputLimit:  sh.cfg.OutputLimit,
		HistoryLimit: sh.cfg.HistoryLimit,
		Backend:      b,
		FS:           sh.Workspace(),
		Policy:       sh.policy,
		Logger:       sh.logger,
		Telemetry:    sh.telemetry,
	})
	if err != nil {
		b.Terminate()
		return nil, err
	}

	if sh.transcripts != nil {
		sh.transcripts.Open(srv.ID())
		srv.Subscribe("transcript", &transcriptSubscriber{
			transcripts: sh.transcripts,
			sessionID:   srv.ID(),
		})
	}
	return srv, nil
}

// Session looks up a live session by id.
func (sh *Shell) Session(id string) (*session.Server, error) {
	return sh.registry.Get(id)
}

// Sessions returns the ids of all live sessions.
func (sh *Shell) Sessions() []string {
	return sh.registry.List()
}

// Close stops all sessions and tears down the workspace mounts.
// Safe to call more than once.
func (sh *Shell) Close() error {
	sh.mu.Lock()
	if sh.closed {
		sh.mu.Unlock()
		return nil
	}
	sh.closed = true
	sh.mu.Unlock()

	sh.registry.Shutdown()

	err := sh.table.UnmountWorkspace(sh.cfg.Workspace, false)

	if sh.transcripts != nil {
		sh.transcripts.Close()
	}
	return err
}

// transcriptSubscriber records the event stream into the session's
// transcript file.
type transcriptSubscriber struct {
	transcripts *log.TranscriptLogger
	sessionID   string
}

func (t *transcriptSubscriber) Deliver(ev session.Event) error {
	switch ev.Kind {
	case session.EventCommandStarted:
		t.transcripts.Line(t.sessionID, ev.Line)
	case session.EventOutput:
		t.transcripts.Output(t.sessionID, ev.Chunk)
	case session.EventError:
		t.transcripts.Event(t.sessionID, "error: "+ev.Err.Message)
	case session.EventCommandCrashed:
		t.transcripts.Event(t.sessionID, "crashed: "+ev.Reason)
	case session.EventCommandDone, session.EventCommandCancelled:
		t.transcripts.Event(t.sessionID, string(ev.Kind))
	}
	return nil
}
