// Package sandbox provides restricted script execution over the
// command registry plus the network-access policy applied to
// recognised networking tools.
//
// Scripts are not bash: they are sequences of registry commands
// separated by newlines or ";", with "#" comments. Every statement is
// checked against the network policy (when one is configured) before
// it runs, and state updates (cd, env) thread through the script so
// later statements see earlier changes.
package sandbox

import (
	"context"
	"strings"

	"github.com/agentjido/jido-shell/command"
)

// Executor runs scripts statement by statement through a command
// runner, threading state between statements.
type Executor struct {
	runner *command.Runner
	policy *Policy // nil disables network checks
}

// NewExecutor creates an executor over runner. policy may be nil.
func NewExecutor(runner *command.Runner, policy *Policy) *Executor {
	return &Executor{runner: runner, policy: policy}
}

// splitScript breaks a script into statement lines: split on newlines
// and ";", trim whitespace, drop blanks and "#" comments.
func splitScript(script string) []string {
	var lines []string
	for _, raw := range strings.FieldsFunc(script, func(r rune) bool {
		return r == '\n' || r == ';'
	}) {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Execute runs script against st. Statements are always-chained: each
// runs regardless of position, but the first error aborts the rest.
// The returned state reflects every update applied before the abort.
func (e *Executor) Execute(ctx context.Context, st command.State, script string, emit command.Emit) (command.State, error) {
	for _, line := range splitScript(script) {
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		default:
		}

		if e.policy != nil {
			if err := e.policy.CheckLine(line); err != nil {
				return st, err
			}
		}

		res, err := e.runner.Run(ctx, st, line, emit)
		if err != nil {
			return st, err
		}
		st = ApplyUpdate(st, res.Update)
	}
	return st, nil
}

// ApplyUpdate folds a state update into st, returning the new state.
// The env map is copied on first change so callers' states stay
// untouched.
func ApplyUpdate(st command.State, update *command.StateUpdate) command.State {
	if update == nil {
		return st
	}

	if update.Cwd != "" {
		st.Cwd = update.Cwd
	}
	if len(update.Env) > 0 {
		merged := make(map[string]string, len(st.Env)+len(update.Env))
		for k, v := range st.Env {
			merged[k] = v
		}
		for k, v := range update.Env {
			merged[k] = v
		}
		st.Env = merged
	}
	return st
}
