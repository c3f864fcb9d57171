package command

import (
	"context"
	"testing"

	"github.com/agentjido/jido-shell/shellerr"
)

func TestRunnerUnknownCommand(t *testing.T) {
	_, _, err := run(t, testState(t), "frobnicate")
	if !shellerr.HasCode(err, shellerr.ShellUnknownCommand) {
		t.Errorf("err = %v, want unknown_command", err)
	}
	if got := shellerr.ContextValue(err, "command"); got != "frobnicate" {
		t.Errorf("context.command = %q", got)
	}
}

func TestRunnerRejectsChained(t *testing.T) {
	_, _, err := run(t, testState(t), "echo a; echo b")
	if !shellerr.HasCode(err, shellerr.ShellChainedCommand) {
		t.Errorf("err = %v, want chained_command", err)
	}
}

func TestRunnerEmptyLine(t *testing.T) {
	_, _, err := run(t, testState(t), "   ")
	if !shellerr.HasCode(err, shellerr.ShellEmptyCommand) {
		t.Errorf("err = %v, want empty_command", err)
	}
}

func TestRunnerRecoversPanic(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Command{
		Name:    "boom",
		Summary: "panics",
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			panic("kaboom")
		},
	})

	_, err := NewRunner(reg).Run(context.Background(), State{}, "boom", func(string) {})
	if !shellerr.HasCode(err, shellerr.CommandCrashed) {
		t.Fatalf("err = %v, want crashed", err)
	}
	if got := shellerr.ContextValue(err, "reason"); got != "kaboom" {
		t.Errorf("context.reason = %q, want kaboom", got)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()

	reg := NewRegistry()
	cmd := &Command{Name: "dup", Summary: "x"}
	reg.Register(cmd)
	reg.Register(cmd)
}
