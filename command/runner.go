package command

import (
	"context"
	"fmt"

	"github.com/agentjido/jido-shell/parser"
	"github.com/agentjido/jido-shell/shellerr"
)

// Runner resolves, validates and invokes single statements against a
// registry. Chaining is the caller's job (the session worker and the
// sandbox executor); a chained line here is an error.
type Runner struct {
	registry *Registry
}

// NewRunner creates a runner over the given registry.
func NewRunner(registry *Registry) *Runner {
	return &Runner{registry: registry}
}

// Registry returns the underlying registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run executes one statement line. The emit closure receives output
// chunks only; control events are the session server's responsibility.
// A panic inside the command surfaces as {command, crashed}.
func (r *Runner) Run(ctx context.Context, st State, line string, emit Emit) (Result, error) {
	program, err := parser.Parse(line)
	if err != nil {
		return Result{}, err
	}
	if len(program) > 1 {
		return Result{}, shellerr.New(shellerr.ShellChainedCommand, "chained commands are not allowed here").
			WithContext("line", line)
	}

	return r.RunStatement(ctx, st, program[0], emit)
}

// RunStatement executes an already-parsed statement.
func (r *Runner) RunStatement(ctx context.Context, st State, stmt parser.Statement, emit Emit) (result Result, err error) {
	cmd, err := r.registry.Lookup(stmt.Command)
	if err != nil {
		return Result{}, err
	}

	args, err := cmd.Schema.Validate(stmt.Args)
	if err != nil {
		return Result{}, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = Result{}
			err = shellerr.Newf(shellerr.CommandCrashed, "command %s crashed", cmd.Name).
				WithContext("command", cmd.Name).
				WithContext("reason", fmt.Sprintf("%v", rec))
		}
	}()

	return cmd.Run(ctx, st, args, emit)
}
