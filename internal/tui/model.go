package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/apkdrop/internal/app"
)

// Poster accepts events for the state machine. *app.Dispatcher implements it.
type Poster interface {
	Post(ev app.Event)
}

// stateMsg carries a fresh snapshot from the dispatcher.
type stateMsg struct {
	state app.State
}

// feedClosedMsg means the dispatcher has stopped.
type feedClosedMsg struct{}

// Model renders the latest snapshot and turns key presses into inputs. It
// never changes application state itself.
type Model struct {
	poster Poster
	states <-chan app.State

	state app.State

	Width  int
	Height int

	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model
}

// New creates a model reading snapshots from states and posting inputs to p.
func New(p Poster, states <-chan app.State) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return Model{
		poster:   p,
		states:   states,
		Width:    80,
		Height:   24,
		keys:     defaultKeyMap(),
		help:     help.New(),
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

// State returns the snapshot currently shown.
func (m Model) State() app.State {
	return m.state
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForState(m.states), m.spinner.Tick)
}

func waitForState(states <-chan app.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-states
		if !ok {
			return feedClosedMsg{}
		}
		return stateMsg{state: s}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.help.Width = msg.Width
		m.progress.Width = progressWidth(msg.Width)
		return m, nil

	case stateMsg:
		m.state = msg.state
		return m, waitForState(m.states)

	case feedClosedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		// Quit is posted like any other input; the program exits once the
		// dispatcher closes the feed.
		if in, ok := m.keys.inputFor(msg); ok {
			m.poster.Post(app.InputEvent{Input: in})
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func progressWidth(termWidth int) int {
	w := termWidth - 16
	if w > 80 {
		w = 80
	}
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) View() string {
	content := m.renderScreen()
	footer := m.help.View(m.keys.forScreen(m.state.Screen))
	return RenderApplicationContainer(m.state.Repository, content, footer, m.Width, m.Height)
}
