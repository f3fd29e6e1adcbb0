// internal/tui/app.go
//
// Progress view for a pipeline run. Workers publish pipeline events through
// an observer; the bubbletea model consumes them from a channel and redraws
// one row per record.

package tui

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/helix/internal/pipeline"
)

const maxErrorLines = 5

// EventMsg carries one pipeline event into the model.
type EventMsg pipeline.Event

// DoneMsg is delivered once the run returned.
type DoneMsg struct{}

// App is the progress model.
type App struct {
	title   string
	records []string
	modules []string
	states  map[string]map[string]pipeline.State
	done    map[string]bool
	errs    []string

	spinner    spinner.Model
	cancel     context.CancelFunc
	cancelling bool
	finished   bool
	width      int

	events   chan pipeline.Event
	stopped  chan struct{}
	complete chan struct{}
	once     sync.Once
	report   pipeline.Report
	err      error
}

// New builds the model for the given records and module IDs (in plan order).
// cancel is invoked when the user asks to stop.
func New(title string, records, modules []string, cancel context.CancelFunc) *App {
	states := make(map[string]map[string]pipeline.State, len(records))
	for _, id := range records {
		row := make(map[string]pipeline.State, len(modules))
		for _, mod := range modules {
			row[mod] = pipeline.StatePending
		}
		states[id] = row
	}
	return &App{
		title:    title,
		records:  append([]string(nil), records...),
		modules:  append([]string(nil), modules...),
		states:   states,
		done:     map[string]bool{},
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		cancel:   cancel,
		events:   make(chan pipeline.Event, 64),
		stopped:  make(chan struct{}),
		complete: make(chan struct{}),
	}
}

// Observer returns the pipeline observer feeding this model. Once the
// program has exited, events are dropped.
func (a *App) Observer() pipeline.Observer {
	return func(ev pipeline.Event) {
		select {
		case a.events <- ev:
		case <-a.stopped:
		}
	}
}

// Finish records the run's outcome and wakes the model.
func (a *App) Finish(report pipeline.Report, err error) {
	a.once.Do(func() {
		a.report = report
		a.err = err
		close(a.complete)
	})
}

// Init starts the spinner and the event listeners.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.waitForEvent(), a.waitForDone())
}

func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-a.events:
			return EventMsg(ev)
		case <-a.complete:
			return nil
		}
	}
}

func (a *App) waitForDone() tea.Cmd {
	return func() tea.Msg {
		<-a.complete
		return DoneMsg{}
	}
}

// Update handles events, keys and spinner ticks.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case EventMsg:
		a.apply(pipeline.Event(msg))
		return a, a.waitForEvent()

	case DoneMsg:
		a.drain()
		a.finished = true
		return a, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !a.cancelling && a.cancel != nil {
				a.cancel()
			}
			a.cancelling = true
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

// drain applies events still buffered when the run finished.
func (a *App) drain() {
	for {
		select {
		case ev := <-a.events:
			a.apply(ev)
		default:
			return
		}
	}
}

func (a *App) apply(ev pipeline.Event) {
	row, ok := a.states[ev.RecordID]
	if !ok {
		row = map[string]pipeline.State{}
		a.states[ev.RecordID] = row
		a.records = append(a.records, ev.RecordID)
	}
	if ev.RecordDone {
		a.done[ev.RecordID] = true
	} else if ev.ModuleID != "" {
		row[ev.ModuleID] = ev.State
	}
	if ev.Err != nil && ev.ModuleID != "" {
		a.errs = append(a.errs, fmt.Sprintf("%s/%s: %v", ev.RecordID, ev.ModuleID, ev.Err))
		if len(a.errs) > maxErrorLines {
			a.errs = a.errs[len(a.errs)-maxErrorLines:]
		}
	}
}

// Run shows the progress view while work executes and returns its result.
// Quitting the view cancels the context handed to work; Run still waits for
// work to return so nothing is left running.
func Run(ctx context.Context, title string, records, modules []string, work func(context.Context, pipeline.Observer) (pipeline.Report, error), opts ...tea.ProgramOption) (pipeline.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app := New(title, records, modules, cancel)
	go func() {
		report, err := work(ctx, app.Observer())
		app.Finish(report, err)
	}()

	_, runErr := tea.NewProgram(app, opts...).Run()
	close(app.stopped)
	if runErr != nil {
		cancel()
	}
	<-app.complete
	if runErr != nil && app.err == nil {
		return app.report, fmt.Errorf("tui: %w", runErr)
	}
	return app.report, app.err
}
