// Package localexec is the default backend: statements run in-process
// against the command registry, so the session's own state (cwd, env,
// VFS) is the execution environment.
package localexec

import (
	"context"
	"sync"

	"github.com/agentjido/jido-shell/backend"
	"github.com/agentjido/jido-shell/command"
	"github.com/agentjido/jido-shell/parser"
	"github.com/agentjido/jido-shell/sandbox"
)

// BackendName is the registry key for this backend.
const BackendName = "local"

func init() {
	backend.Register(BackendName, func() backend.Backend { return &Backend{} })
}

// Backend runs statements through a command runner. The runner is
// injected by the embedding application via SetRunner before Init;
// commands, not host binaries, are the vocabulary.
type Backend struct {
	mu     sync.Mutex
	runner *command.Runner
	cwd    string
	cancel context.CancelFunc // in-flight execute, nil when idle
}

// NewWithRunner builds a local backend over an explicit runner.
// Preferred over the registry path when the caller already has one.
func NewWithRunner(runner *command.Runner) *Backend {
	return &Backend{runner: runner}
}

// SetRunner injects the command runner. Must be called before Init
// when the backend was created through the registry.
func (b *Backend) SetRunner(runner *command.Runner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runner = runner
}

// Init prepares the backend. With no runner injected, the full
// builtin set is used.
func (b *Backend) Init(cfg backend.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.runner == nil {
		runner := command.NewRunner(command.Builtins())
		sandbox.RegisterBash(runner.Registry(), sandbox.NewExecutor(runner, nil))
		b.runner = runner
	}
	b.cwd = "/"
	return nil
}

// Execute runs one statement in-process. The session state carries
// the cwd and env; this backend has no state of its own beyond the
// mirror kept for Cwd.
func (b *Backend) Execute(ctx context.Context, st command.State, stmt parser.Statement, emit command.Emit) (backend.Result, error) {
	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	runner := b.runner
	b.cancel = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.cancel = nil
		b.mu.Unlock()
	}()

	res, err := runner.RunStatement(execCtx, st, stmt, emit)
	if err != nil {
		return backend.Result{}, err
	}

	if res.Update != nil && res.Update.Cwd != "" {
		b.mu.Lock()
		b.cwd = res.Update.Cwd
		b.mu.Unlock()
	}

	return backend.Result{Update: res.Update}, nil
}

// Cancel aborts the in-flight statement, if any.
func (b *Backend) Cancel() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

// Cwd reports the working directory of the last executed cd.
func (b *Backend) Cwd() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cwd, nil
}

// Cd updates the backend's cwd mirror.
func (b *Backend) Cd(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cwd = path
	return nil
}

// Terminate releases nothing; the local backend owns no resources.
func (b *Backend) Terminate() error {
	return nil
}
