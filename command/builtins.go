package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agentjido/jido-shell/pathutil"
	"github.com/agentjido/jido-shell/shellerr"
)

// sleepTick is the cancellation granularity of the sleep builtin.
const sleepTick = 50 * time.Millisecond

// Builtins returns a registry populated with the standard command set.
// The bash builtin is wired separately by the sandbox package because
// it needs the script executor.
func Builtins() *Registry {
	r := NewRegistry()
	for _, cmd := range []*Command{
		echoCommand(),
		pwdCommand(),
		cdCommand(),
		lsCommand(),
		catCommand(),
		mkdirCommand(),
		rmCommand(),
		cpCommand(),
		writeCommand(),
		envCommand(),
		helpCommand(r),
		historyCommand(),
		sleepCommand(),
		seqCommand(),
	} {
		r.Register(cmd)
	}
	return r
}

func echoCommand() *Command {
	return &Command{
		Name:    "echo",
		Summary: "print arguments",
		Usage:   "echo [text...]",
		Schema:  Schema{Args: []Arg{{Name: "text", Variadic: true}}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			emit(strings.Join(args.Rest(), " ") + "\n")
			return Result{}, nil
		},
	}
}

func pwdCommand() *Command {
	return &Command{
		Name:    "pwd",
		Summary: "print the working directory",
		Usage:   "pwd",
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			emit(st.Cwd + "\n")
			return Result{}, nil
		},
	}
}

func cdCommand() *Command {
	return &Command{
		Name:    "cd",
		Summary: "change the working directory",
		Usage:   "cd [path]",
		Schema:  Schema{Args: []Arg{{Name: "path", Default: "/"}}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			target := pathutil.Join(st.Cwd, args.Get("path"))

			info, err := st.FS.Stat(target)
			if err != nil {
				return Result{}, err
			}
			if !info.Dir {
				return Result{}, shellerr.Newf(shellerr.VFSNotADirectory, "not a directory: %s", target).
					WithContext("path", target)
			}

			return Result{Update: &StateUpdate{Cwd: target}}, nil
		},
	}
}

func lsCommand() *Command {
	return &Command{
		Name:    "ls",
		Summary: "list directory contents",
		Usage:   "ls [path]",
		Schema:  Schema{Args: []Arg{{Name: "path"}}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			target := st.Cwd
			if args.Has("path") {
				target = pathutil.Join(st.Cwd, args.Get("path"))
			}

			entries, err := st.FS.List(target)
			if err != nil {
				return Result{}, err
			}

			for _, e := range entries {
				name := e.Name
				if e.Dir {
					name += "/"
				}
				emit(name + "\n")
			}
			return Result{}, nil
		},
	}
}

func catCommand() *Command {
	return &Command{
		Name:    "cat",
		Summary: "print file contents",
		Usage:   "cat <path>",
		Schema:  Schema{Args: []Arg{{Name: "path", Required: true}}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			data, err := st.FS.Read(pathutil.Join(st.Cwd, args.Get("path")))
			if err != nil {
				return Result{}, err
			}
			emit(string(data))
			return Result{}, nil
		},
	}
}

func mkdirCommand() *Command {
	return &Command{
		Name:    "mkdir",
		Summary: "create a directory",
		Usage:   "mkdir <path>",
		Schema:  Schema{Args: []Arg{{Name: "path", Required: true}}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			target := pathutil.Join(st.Cwd, args.Get("path"))
			if err := st.FS.Mkdir(target); err != nil {
				return Result{}, err
			}
			emit("created: " + target + "\n")
			return Result{}, nil
		},
	}
}

func rmCommand() *Command {
	return &Command{
		Name:    "rm",
		Summary: "remove a file or directory",
		Usage:   "rm <path>",
		Schema:  Schema{Args: []Arg{{Name: "path", Required: true}}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			return Result{}, st.FS.Remove(pathutil.Join(st.Cwd, args.Get("path")))
		},
	}
}

func cpCommand() *Command {
	return &Command{
		Name:    "cp",
		Summary: "copy a file",
		Usage:   "cp <src> <dst>",
		Schema: Schema{Args: []Arg{
			{Name: "src", Required: true},
			{Name: "dst", Required: true},
		}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			src := pathutil.Join(st.Cwd, args.Get("src"))
			dst := pathutil.Join(st.Cwd, args.Get("dst"))
			return Result{}, st.FS.Copy(src, dst)
		},
	}
}

func writeCommand() *Command {
	return &Command{
		Name:    "write",
		Summary: "write text to a file",
		Usage:   "write <path> [text...]",
		Schema: Schema{Args: []Arg{
			{Name: "path", Required: true},
			{Name: "text", Variadic: true},
		}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			target := pathutil.Join(st.Cwd, args.Get("path"))
			data := []byte(strings.Join(args.Rest(), " "))
			return Result{}, st.FS.Write(target, data)
		},
	}
}

func envCommand() *Command {
	return &Command{
		Name:    "env",
		Summary: "list, read or set environment variables",
		Usage:   "env [NAME | NAME=VALUE]",
		Schema:  Schema{Args: []Arg{{Name: "expr"}}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			if !args.Has("expr") {
				keys := make([]string, 0, len(st.Env))
				for k := range st.Env {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					emit(k + "=" + st.Env[k] + "\n")
				}
				return Result{}, nil
			}

			expr := args.Get("expr")
			if name, value, ok := strings.Cut(expr, "="); ok {
				if name == "" {
					return Result{}, shellerr.New(shellerr.ShellValidation, "empty variable name").
						WithContext("expr", expr)
				}
				return Result{Update: &StateUpdate{Env: map[string]string{name: value}}}, nil
			}

			if value, ok := st.EnvValue(expr); ok {
				emit(value + "\n")
			} else {
				emit("(not set)\n")
			}
			return Result{}, nil
		},
	}
}

func helpCommand(r *Registry) *Command {
	return &Command{
		Name:    "help",
		Summary: "list commands or show usage for one",
		Usage:   "help [command]",
		Schema:  Schema{Args: []Arg{{Name: "command"}}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			if args.Has("command") {
				cmd, err := r.Lookup(args.Get("command"))
				if err != nil {
					return Result{}, err
				}
				emit(cmd.Usage + "\n" + cmd.Summary + "\n")
				return Result{}, nil
			}

			for _, name := range r.Names() {
				cmd, _ := r.Lookup(name)
				emit(fmt.Sprintf("%-10s %s\n", name, cmd.Summary))
			}
			return Result{}, nil
		},
	}
}

func historyCommand() *Command {
	return &Command{
		Name:    "history",
		Summary: "print the session's command history",
		Usage:   "history",
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			// History is stored newest first; print oldest first.
			for i := len(st.History) - 1; i >= 0; i-- {
				emit(fmt.Sprintf("%4d  %s\n", len(st.History)-i, st.History[i]))
			}
			return Result{}, nil
		},
	}
}

func positiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("expected a non-negative integer, got %q", value)
	}
	return nil
}

func sleepCommand() *Command {
	return &Command{
		Name:    "sleep",
		Summary: "pause for a number of seconds",
		Usage:   "sleep <seconds>",
		Schema:  Schema{Args: []Arg{{Name: "seconds", Required: true, Check: positiveInt}}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			seconds, _ := strconv.Atoi(args.Get("seconds"))
			emit(fmt.Sprintf("Sleeping for %d seconds...\n", seconds))

			deadline := time.Now().Add(time.Duration(seconds) * time.Second)
			ticker := time.NewTicker(sleepTick)
			defer ticker.Stop()

			for time.Now().Before(deadline) {
				select {
				case <-ctx.Done():
					return Result{}, ctx.Err()
				case <-ticker.C:
				}
			}
			return Result{}, nil
		},
	}
}

func seqCommand() *Command {
	return &Command{
		Name:    "seq",
		Summary: "print a sequence of numbers",
		Usage:   "seq <last> | seq <first> <last>",
		Schema: Schema{Args: []Arg{
			{Name: "first", Required: true, Check: positiveInt},
			{Name: "last", Check: positiveInt},
		}},
		Run: func(ctx context.Context, st State, args Args, emit Emit) (Result, error) {
			first, last := 1, 0
			if args.Has("last") {
				first, _ = strconv.Atoi(args.Get("first"))
				last, _ = strconv.Atoi(args.Get("last"))
			} else {
				last, _ = strconv.Atoi(args.Get("first"))
			}

			for n := first; n <= last; n++ {
				select {
				case <-ctx.Done():
					return Result{}, ctx.Err()
				default:
				}
				emit(strconv.Itoa(n) + "\n")
			}
			return Result{}, nil
		},
	}
}
