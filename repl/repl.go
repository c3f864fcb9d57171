package repl

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/agentjido/jido-shell/session"
	"github.com/agentjido/jido-shell/shell"
)

// Options configure a REPL run.
type Options struct {
	SessionID  string // attach instead of creating when set
	UI         UI     // defaults to NewStdoutUI()
	Fullscreen bool   // use the terminal UI when no UI was injected
}

// terminalGrace bounds the wait for a terminal event after the event
// channel closes unexpectedly.
const terminalGrace = 100 * time.Millisecond

// Run drives an interactive session until exit, quit or EOF.
func Run(sh *shell.Shell, opts Options) error {
	var srv *session.Server
	var err error

	if opts.SessionID != "" {
		srv, err = sh.Session(opts.SessionID)
	} else {
		srv, err = sh.CreateSession()
	}
	if err != nil {
		return err
	}

	ui := opts.UI
	if ui == nil {
		if opts.Fullscreen {
			ui = NewScreenUI()
		} else {
			ui = NewStdoutUI()
		}
	}

	if err := ui.Start(); err != nil {
		return err
	}
	defer ui.Stop()

	sub := session.NewChannelSubscriber(1024)
	srv.Subscribe("repl", sub)
	defer srv.Unsubscribe("repl")

	// Ctrl-C cancels the running command rather than killing the REPL.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	defer func() {
		signal.Stop(sigc)
		close(sigc)
	}()
	go func() {
		for range sigc {
			srv.Cancel()
		}
	}()

	for {
		line, err := ui.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := srv.Run(line); err != nil {
			ui.PrintError(err)
			continue
		}

		drainUntilTerminal(ui, sub.C)
	}
}

// drainUntilTerminal renders events for the line just submitted, up to
// and including its terminal event.
func drainUntilTerminal(ui UI, ch <-chan session.Event) {
	for ev := range ch {
		ui.PrintEvent(ev)
		if ev.Kind.Terminal() {
			return
		}
	}
	// Channel closed without a terminal; give up after a beat.
	time.Sleep(terminalGrace)
}
