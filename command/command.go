// Package command defines the shell's command vocabulary: static
// command descriptors, the name registry, the argument schema layer
// and the single-statement runner.
//
// A command is a value, not a type: {Name, Summary, Usage, Schema,
// Run}. The registry maps names to these values and is the
// authoritative vocabulary of the shell; nothing is discovered by
// reflection.
package command

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentjido/jido-shell/shellerr"
	"github.com/agentjido/jido-shell/vfs"
)

// State is the execution context a command sees. It is a value: a
// command never mutates it directly, state changes travel back as a
// StateUpdate in the Result.
type State struct {
	Cwd     string
	Env     map[string]string
	History []string // newest first
	FS      *vfs.Workspace
}

// EnvValue looks up name in the state's environment.
func (s State) EnvValue(name string) (string, bool) {
	v, ok := s.Env[name]
	return v, ok
}

// Emit streams an output chunk to the session server.
type Emit func(chunk string)

// StateUpdate is a partial change to session state returned by a
// command. Zero fields mean "unchanged".
type StateUpdate struct {
	Cwd string            // new working directory when non-empty
	Env map[string]string // entries merged into the environment
}

// Result is a successful command outcome.
type Result struct {
	Value  string       // optional result value for programmatic callers
	Update *StateUpdate // nil when the command changed no state
}

// RunFunc executes a command over validated arguments. Long-running
// commands must observe ctx at every suspension point.
type RunFunc func(ctx context.Context, st State, args Args, emit Emit) (Result, error)

// Command is a static descriptor registered in the registry.
type Command struct {
	Name    string
	Summary string
	Usage   string
	Schema  Schema
	Run     RunFunc
}

// Registry maps command names to descriptors.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds cmd to the registry.
// Panics if the name is already registered (programming error).
func (r *Registry) Register(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[cmd.Name]; exists {
		panic(fmt.Sprintf("command already registered: %s", cmd.Name))
	}
	r.commands[cmd.Name] = cmd
}

// Lookup finds a command by name.
func (r *Registry) Lookup(name string) (*Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[name]
	if !ok {
		return nil, shellerr.Newf(shellerr.ShellUnknownCommand, "unknown command: %s", name).
			WithContext("command", name)
	}
	return cmd, nil
}

// Names returns all registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
