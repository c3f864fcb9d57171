// Package repl is the line transport: an interactive loop that feeds
// lines to a session server and renders its event stream.
//
// The front-end is abstracted behind the UI interface so the same loop
// drives the plain stdout REPL and the full-screen terminal UI.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentjido/jido-shell/session"
)

// UI is the front-end contract for the REPL loop.
type UI interface {
	// Start initialises the front-end (e.g. set up the screen).
	Start() error

	// Stop restores the terminal. Must be safe after a failed Start.
	Stop()

	// ReadLine blocks for the next input line. io.EOF ends the REPL.
	ReadLine() (string, error)

	// PrintEvent renders one session event.
	PrintEvent(ev session.Event)

	// PrintError renders a submission error (e.g. shell busy).
	PrintError(err error)
}

// StdoutUI is the plain line-oriented front-end: a prompt on stdout,
// lines from stdin.
type StdoutUI struct {
	Prompt string
	in     *bufio.Scanner
	out    io.Writer
}

// NewStdoutUI creates the default front-end over stdin/stdout.
func NewStdoutUI() *StdoutUI {
	return &StdoutUI{
		Prompt: "jido> ",
		in:     bufio.NewScanner(os.Stdin),
		out:    os.Stdout,
	}
}

func (u *StdoutUI) Start() error { return nil }
func (u *StdoutUI) Stop()        {}

func (u *StdoutUI) ReadLine() (string, error) {
	fmt.Fprint(u.out, u.Prompt)
	if !u.in.Scan() {
		if err := u.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return u.in.Text(), nil
}

func (u *StdoutUI) PrintEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventOutput:
		fmt.Fprint(u.out, ev.Chunk)
	case session.EventError:
		fmt.Fprintf(u.out, "error: %s\n", ev.Err.Message)
	case session.EventCommandCancelled:
		fmt.Fprintln(u.out, "Cancelled")
	case session.EventCommandCrashed:
		fmt.Fprintf(u.out, "Crashed: %s\n", ev.Reason)
	case session.EventCwdChanged:
		// The next pwd shows it; no spontaneous output.
	}
}

func (u *StdoutUI) PrintError(err error) {
	fmt.Fprintf(u.out, "error: %s\n", errMessage(err))
}

// errMessage strips the structured prefix for terminal display.
func errMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx > 0 && !strings.Contains(msg[:idx], " ") {
		return msg[idx+2:]
	}
	return msg
}
