package repl

import (
	"fmt"
	"io"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/agentjido/jido-shell/session"
)

// ScreenUI implements UI with a tview/tcell full-screen front-end: an
// output pane on top, an input field at the bottom.
type ScreenUI struct {
	app    *tview.Application
	output *tview.TextView
	input  *tview.InputField
	layout *tview.Flex

	mu      sync.Mutex
	lines   chan string
	stopped bool
}

// NewScreenUI creates the full-screen front-end.
func NewScreenUI() *ScreenUI {
	return &ScreenUI{lines: make(chan string)}
}

// Start sets up the screen and runs the application loop in the
// background; ReadLine then consumes submitted lines.
func (ui *ScreenUI) Start() error {
	ui.app = tview.NewApplication()

	ui.output = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			ui.app.Draw()
		})
	ui.output.SetBorder(true).SetTitle(" Session ").SetTitleAlign(tview.AlignLeft)

	ui.input = tview.NewInputField().
		SetLabel("jido> ").
		SetFieldBackgroundColor(tcell.ColorDefault)
	ui.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := ui.input.GetText()
		ui.input.SetText("")
		ui.lines <- line
	})

	ui.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.output, 0, 1, false).
		AddItem(ui.input, 3, 0, true)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlD {
			ui.closeInput()
			ui.app.Stop()
			return nil
		}
		return event
	})

	started := make(chan error, 1)
	go func() {
		err := ui.app.SetRoot(ui.layout, true).SetFocus(ui.input).Run()
		started <- err
		ui.closeInput()
	}()

	select {
	case err := <-started:
		return err
	default:
		return nil
	}
}

func (ui *ScreenUI) closeInput() {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if !ui.stopped {
		ui.stopped = true
		close(ui.lines)
	}
}

// Stop tears the screen down.
func (ui *ScreenUI) Stop() {
	if ui.app != nil {
		ui.app.Stop()
	}
	ui.closeInput()
}

// ReadLine returns the next submitted line, io.EOF once the screen is
// gone.
func (ui *ScreenUI) ReadLine() (string, error) {
	line, ok := <-ui.lines
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (ui *ScreenUI) PrintEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventCommandStarted:
		fmt.Fprintf(ui.output, "[yellow]$ %s[white]\n", tview.Escape(ev.Line))
	case session.EventOutput:
		fmt.Fprint(ui.output, tview.Escape(ev.Chunk))
	case session.EventError:
		fmt.Fprintf(ui.output, "[red]error: %s[white]\n", tview.Escape(ev.Err.Message))
	case session.EventCommandCancelled:
		fmt.Fprintln(ui.output, "[gray]Cancelled[white]")
	case session.EventCommandCrashed:
		fmt.Fprintf(ui.output, "[red]Crashed: %s[white]\n", tview.Escape(ev.Reason))
	}
	ui.output.ScrollToEnd()
}

func (ui *ScreenUI) PrintError(err error) {
	fmt.Fprintf(ui.output, "[red]error: %s[white]\n", tview.Escape(errMessage(err)))
}
