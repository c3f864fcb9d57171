package sandbox

import (
	"context"

	"github.com/agentjido/jido-shell/command"
)

// BashCommand builds the bash builtin over exec. It lives here rather
// than in the command package because it needs the script executor.
func BashCommand(exec *Executor) *command.Command {
	return &command.Command{
		Name:    "bash",
		Summary: "run a script of shell commands",
		Usage:   "bash <script>",
		Schema: command.Schema{Args: []command.Arg{
			{Name: "script", Required: true},
		}},
		Run: func(ctx context.Context, st command.State, args command.Args, emit command.Emit) (command.Result, error) {
			final, err := exec.Execute(ctx, st, args.Get("script"), emit)
			if err != nil {
				return command.Result{}, err
			}
			return command.Result{Update: diffState(st, final)}, nil
		},
	}
}

// RegisterBash adds the bash builtin to reg.
func RegisterBash(reg *command.Registry, exec *Executor) {
	reg.Register(BashCommand(exec))
}

// diffState reduces the before/after states of a script to the update
// the session server folds back in. Returns nil when nothing changed.
func diffState(before, after command.State) *command.StateUpdate {
	update := &command.StateUpdate{}
	changed := false

	if after.Cwd != before.Cwd {
		update.Cwd = after.Cwd
		changed = true
	}

	for k, v := range after.Env {
		if old, ok := before.Env[k]; !ok || old != v {
			if update.Env == nil {
				update.Env = make(map[string]string)
			}
			update.Env[k] = v
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return update
}
