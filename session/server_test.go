package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/agentjido/jido-shell/backend"
	"github.com/agentjido/jido-shell/backend/localexec"
	"github.com/agentjido/jido-shell/command"
	"github.com/agentjido/jido-shell/log"
	"github.com/agentjido/jido-shell/parser"
	"github.com/agentjido/jido-shell/sandbox"
	"github.com/agentjido/jido-shell/shellerr"
	"github.com/agentjido/jido-shell/vfs"
	_ "github.com/agentjido/jido-shell/vfs/memfs"
)

// newTestServer builds a session over a fresh single-mount memfs
// workspace and the local backend.
func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()

	table := vfs.NewTable(log.NoOpLogger{})
	if _, err := table.MountAdapter("ws", "/", "mem", vfs.MountOptions{}); err != nil {
		t.Fatalf("mount failed: %v", err)
	}

	b := &localexec.Backend{}
	if err := b.Init(backend.Config{}); err != nil {
		t.Fatalf("backend init failed: %v", err)
	}

	opts.WorkspaceID = "ws"
	opts.FS = vfs.NewWorkspace(table, "ws")
	opts.Backend = b

	srv, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

// collect drains events until a terminal event or a timeout.
func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()

	var events []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if ev.Kind.Terminal() {
				return events
			}
		case <-deadline:
			t.Fatalf("no terminal event; got %v", kinds(events))
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func runLine(t *testing.T, srv *Server, line string) []Event {
	t.Helper()

	sub := NewChannelSubscriber(256)
	srv.Subscribe("test", sub)
	defer srv.Unsubscribe("test")

	if err := srv.Run(line); err != nil {
		t.Fatalf("Run(%q) failed: %v", line, err)
	}
	return collect(t, sub.C)
}

func output(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Kind == EventOutput {
			b.WriteString(ev.Chunk)
		}
	}
	return b.String()
}

func TestEchoScenario(t *testing.T) {
	srv := newTestServer(t, Options{})

	events := runLine(t, srv, "echo hello world")

	want := []EventKind{EventCommandStarted, EventOutput, EventCommandDone}
	got := kinds(events)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	if events[0].Line != "echo hello world" {
		t.Errorf("started line = %q", events[0].Line)
	}
	if events[1].Chunk != "hello world\n" {
		t.Errorf("chunk = %q", events[1].Chunk)
	}
	if cwd := srv.GetState().Cwd; cwd != "/" {
		t.Errorf("post-cwd = %q, want /", cwd)
	}
}

func TestChainScenario(t *testing.T) {
	srv := newTestServer(t, Options{})

	events := runLine(t, srv, "mkdir /a; cd /a && pwd")

	want := []EventKind{EventCommandStarted, EventOutput, EventCwdChanged, EventOutput, EventCommandDone}
	if fmt.Sprint(kinds(events)) != fmt.Sprint(want) {
		t.Fatalf("kinds = %v, want %v", kinds(events), want)
	}
	if events[1].Chunk != "created: /a\n" {
		t.Errorf("mkdir chunk = %q", events[1].Chunk)
	}
	if events[2].Path != "/a" {
		t.Errorf("cwd_changed path = %q", events[2].Path)
	}
	if events[3].Chunk != "/a\n" {
		t.Errorf("pwd chunk = %q", events[3].Chunk)
	}
	if cwd := srv.GetState().Cwd; cwd != "/a" {
		t.Errorf("post-cwd = %q, want /a", cwd)
	}
}

func TestAndIfGateScenario(t *testing.T) {
	srv := newTestServer(t, Options{})

	events := runLine(t, srv, "cd /does-not-exist && pwd")

	want := []EventKind{EventCommandStarted, EventError, EventCommandDone}
	if fmt.Sprint(kinds(events)) != fmt.Sprint(want) {
		t.Fatalf("kinds = %v, want %v", kinds(events), want)
	}
	if events[1].Err == nil || events[1].Err.Code != shellerr.VFSNotFound {
		t.Errorf("error = %v, want not_found", events[1].Err)
	}
	if out := output(events); out != "" {
		t.Errorf("pwd ran despite the gate: %q", out)
	}
	if cwd := srv.GetState().Cwd; cwd != "/" {
		t.Errorf("post-cwd = %q, want unchanged /", cwd)
	}
}

func TestSemicolonRunsPastError(t *testing.T) {
	srv := newTestServer(t, Options{})

	events := runLine(t, srv, "cd /missing; echo still here")

	if out := output(events); out != "still here\n" {
		t.Errorf("output = %q", out)
	}
	if events[len(events)-1].Kind != EventCommandDone {
		t.Errorf("terminal = %v, want command_done", events[len(events)-1].Kind)
	}
}

func TestCancelScenario(t *testing.T) {
	srv := newTestServer(t, Options{})

	sub := NewChannelSubscriber(256)
	srv.Subscribe("test", sub)

	if err := srv.Run("sleep 5"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	cancelled := time.Now()
	srv.Cancel()

	events := collect(t, sub.C)
	if grace := time.Since(cancelled); grace > 2*time.Second {
		t.Errorf("cancellation took %s", grace)
	}

	got := kinds(events)
	if got[len(got)-1] != EventCommandCancelled {
		t.Fatalf("terminal = %v, want command_cancelled (%v)", got[len(got)-1], got)
	}
	if out := output(events); !strings.Contains(out, "Sleeping for 5 seconds...") {
		t.Errorf("output = %q", out)
	}
	if st := srv.Status(); st != StatusIdle {
		t.Errorf("status after cancel = %v, want idle", st)
	}
}

func TestCancelIdleIsNoOp(t *testing.T) {
	srv := newTestServer(t, Options{})
	srv.Cancel()
	if st := srv.Status(); st != StatusIdle {
		t.Errorf("status = %v, want idle", st)
	}
}

func TestNetworkPolicyScenario(t *testing.T) {
	policy := sandbox.NewPolicy()
	policy.AllowDomains["example.com"] = true
	srv := newTestServer(t, Options{Policy: policy})

	events := runLine(t, srv, "curl https://evil.example")

	want := []EventKind{EventCommandStarted, EventError, EventCommandDone}
	if fmt.Sprint(kinds(events)) != fmt.Sprint(want) {
		t.Fatalf("kinds = %v, want %v", kinds(events), want)
	}
	if events[1].Err.Code != shellerr.ShellNetworkBlocked {
		t.Errorf("error code = %v", events[1].Err.Code)
	}
	if got := events[1].Err.Context["domain"]; got != "evil.example" {
		t.Errorf("context.domain = %q", got)
	}
}

func TestBusyWhileRunning(t *testing.T) {
	srv := newTestServer(t, Options{})

	sub := NewChannelSubscriber(256)
	srv.Subscribe("test", sub)

	if err := srv.Run("sleep 5"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	err := srv.Run("echo nope")
	if !shellerr.HasCode(err, shellerr.ShellBusy) {
		t.Errorf("second Run err = %v, want busy", err)
	}

	srv.Cancel()
	collect(t, sub.C)

	// Idle again: accepted.
	if err := srv.Run("echo ok"); err != nil {
		t.Errorf("Run after terminal failed: %v", err)
	}
	collect(t, sub.C)
}

func TestEventSandwich(t *testing.T) {
	srv := newTestServer(t, Options{})

	lines := []string{
		"echo one",
		"cd /missing",
		"definitely-not-a-command",
		`echo "unclosed`,
		"seq 3",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			events := runLine(t, srv, line)

			var starts, terminals int
			for _, ev := range events {
				switch {
				case ev.Kind == EventCommandStarted:
					starts++
				case ev.Kind.Terminal():
					terminals++
				}
			}
			if starts != 1 || terminals != 1 {
				t.Errorf("starts = %d, terminals = %d (%v)", starts, terminals, kinds(events))
			}
			if !events[len(events)-1].Kind.Terminal() {
				t.Error("terminal not last")
			}
		})
	}
}

func TestParseErrorStillDone(t *testing.T) {
	srv := newTestServer(t, Options{})

	events := runLine(t, srv, `echo "unclosed`)

	want := []EventKind{EventCommandStarted, EventError, EventCommandDone}
	if fmt.Sprint(kinds(events)) != fmt.Sprint(want) {
		t.Fatalf("kinds = %v, want %v", kinds(events), want)
	}
	if events[1].Err.Code != shellerr.ShellUnclosedQuote {
		t.Errorf("error code = %v", events[1].Err.Code)
	}
}

func TestTimeout(t *testing.T) {
	srv := newTestServer(t, Options{Timeout: 200 * time.Millisecond})

	events := runLine(t, srv, "sleep 60")

	got := kinds(events)
	if got[len(got)-1] != EventCommandCancelled {
		t.Fatalf("terminal = %v, want command_cancelled (%v)", got[len(got)-1], got)
	}

	var sawTimeout bool
	for _, ev := range events {
		if ev.Kind == EventError && ev.Err.Code == shellerr.CommandTimeout {
			sawTimeout = true
		}
	}
	if !sawTimeout {
		t.Errorf("no timeout error event in %v", kinds(events))
	}
}

func TestOutputLimit(t *testing.T) {
	srv := newTestServer(t, Options{OutputLimit: 16})

	events := runLine(t, srv, "seq 100000")

	got := kinds(events)
	if got[len(got)-1] != EventCommandCancelled {
		t.Fatalf("terminal = %v, want command_cancelled (%v)", got[len(got)-1], got)
	}

	var sawLimit bool
	for _, ev := range events {
		if ev.Kind == EventError && ev.Err.Code == shellerr.CommandOutputLimit {
			sawLimit = true
		}
	}
	if !sawLimit {
		t.Error("no output_limit_exceeded error event")
	}
}

func TestOutputLimitSingleChunk(t *testing.T) {
	srv := newTestServer(t, Options{OutputLimit: 8})

	// echo emits once and returns without another suspension point;
	// the cap must still end the line with command_cancelled.
	events := runLine(t, srv, "echo this line is far longer than eight bytes")

	got := kinds(events)
	if got[len(got)-1] != EventCommandCancelled {
		t.Fatalf("terminal = %v, want command_cancelled (%v)", got[len(got)-1], got)
	}

	var sawLimit bool
	for _, ev := range events {
		if ev.Kind == EventError && ev.Err.Code == shellerr.CommandOutputLimit {
			sawLimit = true
		}
	}
	if !sawLimit {
		t.Error("no output_limit_exceeded error event")
	}

	if st := srv.Status(); st != StatusIdle {
		t.Errorf("status = %v, want idle", st)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	srv := newTestServer(t, Options{})

	runLine(t, srv, "echo one")
	runLine(t, srv, "echo two")

	hist := srv.GetState().History
	if len(hist) != 2 || hist[0] != "echo two" || hist[1] != "echo one" {
		t.Errorf("history = %v", hist)
	}
}

func TestHistoryLimit(t *testing.T) {
	srv := newTestServer(t, Options{HistoryLimit: 2})

	for i := 0; i < 4; i++ {
		runLine(t, srv, fmt.Sprintf("echo %d", i))
	}

	hist := srv.GetState().History
	if len(hist) != 2 || hist[0] != "echo 3" {
		t.Errorf("history = %v", hist)
	}
}

func TestEnvUpdatePersists(t *testing.T) {
	srv := newTestServer(t, Options{})

	runLine(t, srv, "env NAME=value")
	events := runLine(t, srv, "env NAME")

	if out := output(events); out != "value\n" {
		t.Errorf("output = %q", out)
	}
	if got := srv.GetState().Env["NAME"]; got != "value" {
		t.Errorf("state env = %q", got)
	}
}

func TestCurrentCommandWindow(t *testing.T) {
	srv := newTestServer(t, Options{})

	if srv.GetState().Current != nil {
		t.Error("current set while idle")
	}

	sub := NewChannelSubscriber(256)
	srv.Subscribe("test", sub)
	if err := srv.Run("sleep 5"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	cur := srv.GetState().Current
	if cur == nil || cur.Line != "sleep 5" {
		t.Errorf("current = %+v", cur)
	}

	srv.Cancel()
	collect(t, sub.C)

	if srv.GetState().Current != nil {
		t.Error("current still set after terminal")
	}
}

func TestMultipleSubscribersSameOrder(t *testing.T) {
	srv := newTestServer(t, Options{})

	a := NewChannelSubscriber(256)
	b := NewChannelSubscriber(256)
	srv.Subscribe("a", a)
	srv.Subscribe("b", b)

	if err := srv.Run("mkdir /x; cd /x && pwd"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	evA := collect(t, a.C)
	evB := collect(t, b.C)

	if fmt.Sprint(kinds(evA)) != fmt.Sprint(kinds(evB)) {
		t.Errorf("subscriber orders differ: %v vs %v", kinds(evA), kinds(evB))
	}
}

// failingSubscriber always rejects delivery.
type failingSubscriber struct{}

func (failingSubscriber) Deliver(Event) error { return errors.New("gone") }

func TestDeadSubscriberRemoved(t *testing.T) {
	srv := newTestServer(t, Options{})

	good := NewChannelSubscriber(256)
	srv.Subscribe("good", good)
	srv.Subscribe("dead", failingSubscriber{})

	if err := srv.Run("echo hi"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	events := collect(t, good.C)

	if out := output(events); out != "hi\n" {
		t.Errorf("live subscriber output = %q", out)
	}

	// The dead subscriber is gone; the next line is unaffected.
	events = runLine(t, srv, "echo again")
	if out := output(events); out != "again\n" {
		t.Errorf("output = %q", out)
	}
}

// panicBackend blows up inside Execute to exercise worker supervision.
type panicBackend struct {
	backend.Backend
}

func (panicBackend) Execute(ctx context.Context, st command.State, stmt parser.Statement, emit command.Emit) (backend.Result, error) {
	panic("backend exploded")
}

func (panicBackend) Cancel() error    { return nil }
func (panicBackend) Terminate() error { return nil }

func TestWorkerCrashProducesCrashedTerminal(t *testing.T) {
	table := vfs.NewTable(log.NoOpLogger{})
	if _, err := table.MountAdapter("ws", "/", "mem", vfs.MountOptions{}); err != nil {
		t.Fatalf("mount failed: %v", err)
	}

	srv, err := New(Options{
		WorkspaceID: "ws",
		FS:          vfs.NewWorkspace(table, "ws"),
		Backend:     panicBackend{},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(srv.Stop)

	events := runLine(t, srv, "echo boom")

	last := events[len(events)-1]
	if last.Kind != EventCommandCrashed {
		t.Fatalf("terminal = %v, want command_crashed (%v)", last.Kind, kinds(events))
	}
	if !strings.Contains(last.Reason, "backend exploded") {
		t.Errorf("reason = %q", last.Reason)
	}

	// The session recovers: the next command is accepted.
	if st := srv.Status(); st != StatusIdle {
		t.Errorf("status after crash = %v, want idle", st)
	}
}

func TestStopRejectsFurtherRuns(t *testing.T) {
	srv := newTestServer(t, Options{})

	srv.Stop()

	err := srv.Run("echo hi")
	if !shellerr.HasCode(err, shellerr.SessionNotFound) {
		t.Errorf("Run after Stop err = %v, want session not_found", err)
	}
}

func TestSubscribeNoReplay(t *testing.T) {
	srv := newTestServer(t, Options{})

	runLine(t, srv, "echo first")

	late := NewChannelSubscriber(256)
	srv.Subscribe("late", late)

	select {
	case ev := <-late.C:
		t.Errorf("late subscriber replayed %v", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}
