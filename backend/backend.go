// Package backend abstracts command executors behind a small
// capability interface so session servers can run statements against
// the in-process registry, a remote SSH host, or a containerised
// executor without knowing which.
//
// Backends are registered by name from init() functions in backend
// packages:
//
//	func init() {
//	    backend.Register("local", func() backend.Backend { return &Backend{} })
//	}
//
// Lifecycle:
//  1. Create via New()
//  2. Init() once with backend configuration
//  3. Execute() per statement (serialised by the session server)
//  4. Terminate() exactly-once semantics, but safe to call again
//
// Execute is synchronous and must honour ctx cancellation at every
// suspension point. Cancel exists for backends whose blocking I/O
// cannot watch a context directly (an SSH channel read): it is called
// from the server thread while the worker is inside Execute and must
// unblock it.
package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentjido/jido-shell/command"
	"github.com/agentjido/jido-shell/log"
	"github.com/agentjido/jido-shell/parser"
	"github.com/agentjido/jido-shell/sandbox"
)

// Config is the provider-specific backend configuration, passed
// through from the application (never from process environment).
type Config struct {
	Settings map[string]string
	Logger   log.LibraryLogger
}

// Result is the outcome of a successfully-executed statement. A
// non-nil Update is folded into session state by the server.
type Result struct {
	ExitCode int
	Update   *command.StateUpdate
}

// Backend executes statements on behalf of a session.
type Backend interface {
	// Init prepares the backend. Called once before any Execute.
	Init(cfg Config) error

	// Execute runs one statement. Output chunks stream through emit;
	// the call returns when the statement completes, fails, or is
	// cancelled via ctx or Cancel.
	Execute(ctx context.Context, st command.State, stmt parser.Statement, emit command.Emit) (Result, error)

	// Cancel aborts the in-flight Execute, if any. Safe to call from
	// another goroutine while Execute blocks.
	Cancel() error

	// Cwd reports the backend's working directory.
	Cwd() (string, error)

	// Cd changes the backend's working directory.
	Cd(path string) error

	// Terminate releases backend resources. Idempotent.
	Terminate() error
}

// NetworkPolicyConfigurer is implemented by backends that can push the
// network policy down to their executor (e.g. a remote container).
type NetworkPolicyConfigurer interface {
	ConfigureNetwork(policy *sandbox.Policy) error
}

// NewBackendFunc is a constructor for Backend implementations.
type NewBackendFunc func() Backend

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]NewBackendFunc)
)

// Register registers a backend constructor under name.
// Panics if name is already registered (programming error).
func Register(name string, fn NewBackendFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[name]; exists {
		panic(fmt.Sprintf("backend already registered: %s", name))
	}
	backends[name] = fn
}

// New creates a backend instance for the given name.
func New(name string) (Backend, error) {
	backendsMu.RLock()
	fn, ok := backends[name]
	backendsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	return fn(), nil
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
