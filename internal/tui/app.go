// internal/tui/app.go
//
// Terminal chat interface for the deliberation engine, following The Elm
// Architecture: the App model holds all state, Update folds messages into a
// new model, View renders it. One deliberation turn runs as a tea.Cmd so the
// UI stays responsive while the council works.

package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quorumworks/conclave/internal/council"
	"github.com/quorumworks/conclave/internal/store"
)

// Runner is the slice of the engine the TUI needs.
type Runner interface {
	RunTurn(ctx context.Context, query string) (*council.Turn, error)
}

// Recorder persists finished turns; nil disables persistence.
type Recorder interface {
	AppendTurn(id string, turn *council.Turn) (store.Conversation, error)
}

// appState represents which "screen" we're on.
type appState int

const (
	stateInput        appState = iota // waiting for the user to type a query
	stateDeliberating                 // a turn is in flight
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	queryStyle    = lipgloss.NewStyle().Bold(true)
	answerStyle   = lipgloss.NewStyle().PaddingLeft(2)
	metaStyle     = lipgloss.NewStyle().Faint(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dividerStyle  = lipgloss.NewStyle().Faint(true)
	maxShownTurns = 4
)

type turnDoneMsg struct {
	turn *council.Turn
	err  error
}

type exchange struct {
	query string
	turn  *council.Turn
	err   error
}

// App is the main application model.
type App struct {
	state          appState
	runner         Runner
	recorder       Recorder
	conversationID string

	input   textinput.Model
	spinner spinner.Model
	history []exchange
	width   int
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithRecorder enables conversation persistence.
func WithRecorder(recorder Recorder) AppOption {
	return func(a *App) {
		a.recorder = recorder
	}
}

// NewApp builds the chat model over a deliberation runner.
func NewApp(runner Runner, opts ...AppOption) *App {
	input := textinput.New()
	input.Placeholder = "Ask the council anything"
	input.Focus()
	input.CharLimit = 4000

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	app := &App{
		state:   stateInput,
		runner:  runner,
		input:   input,
		spinner: spin,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.input.Width = msg.Width - 4
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return a, tea.Quit
		case "enter":
			if a.state != stateInput {
				return a, nil
			}
			query := strings.TrimSpace(a.input.Value())
			if query == "" {
				return a, nil
			}
			a.history = append(a.history, exchange{query: query})
			a.input.Reset()
			a.state = stateDeliberating
			return a, tea.Batch(a.spinner.Tick, a.runTurn(query))
		}

	case turnDoneMsg:
		if len(a.history) > 0 {
			last := &a.history[len(a.history)-1]
			last.turn = msg.turn
			last.err = msg.err
		}
		if msg.turn != nil && a.recorder != nil {
			if conv, err := a.recorder.AppendTurn(a.conversationID, msg.turn); err == nil {
				a.conversationID = conv.ID
			}
		}
		a.state = stateInput
		return a, nil

	case spinner.TickMsg:
		if a.state != stateDeliberating {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) runTurn(query string) tea.Cmd {
	return func() tea.Msg {
		turn, err := a.runner.RunTurn(context.Background(), query)
		return turnDoneMsg{turn: turn, err: err}
	}
}

// View implements tea.Model.
func (a *App) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("conclave") + metaStyle.Render("  deliberate answers from a council of models") + "\n\n")

	start := 0
	if len(a.history) > maxShownTurns {
		start = len(a.history) - maxShownTurns
	}
	for _, ex := range a.history[start:] {
		sb.WriteString(queryStyle.Render("> "+ex.query) + "\n")
		sb.WriteString(a.renderExchange(ex))
		sb.WriteString(dividerStyle.Render(strings.Repeat("─", maxInt(20, a.width-2))) + "\n")
	}

	switch a.state {
	case stateDeliberating:
		sb.WriteString(a.spinner.View() + metaStyle.Render(" the council is deliberating...") + "\n")
	default:
		sb.WriteString(a.input.View() + "\n")
		sb.WriteString(metaStyle.Render("enter to ask · esc to quit") + "\n")
	}
	return sb.String()
}

func (a *App) renderExchange(ex exchange) string {
	if ex.err != nil {
		return errStyle.Render("  engine error: "+ex.err.Error()) + "\n"
	}
	if ex.turn == nil {
		return ""
	}
	turn := ex.turn
	if turn.Status == council.StatusFailed {
		return errStyle.Render("  every council member failed; no answer this turn") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(answerStyle.Render(turn.Answer()) + "\n")
	if turn.Stage3 != nil && turn.Stage3.UsedFallback {
		sb.WriteString(warnStyle.Render(fmt.Sprintf("  chairman unavailable; showing top-ranked answer from %s", turn.Stage3.Backend)) + "\n")
	}
	sb.WriteString(metaStyle.Render("  "+summarize(turn)) + "\n")
	return sb.String()
}

// summarize renders one compact audit line: per-backend stage-1 outcomes and
// the consensus order.
func summarize(turn *council.Turn) string {
	var parts []string
	for id, outcome := range turn.Stage1 {
		if outcome.OK() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", id, outcome.Failure.Kind))
	}
	sort.Strings(parts)
	status := "all answered"
	if len(parts) > 0 {
		status = strings.Join(parts, ", ")
	}

	var order []string
	for _, entry := range turn.Aggregate {
		origin := turn.Labels[entry.Label]
		order = append(order, fmt.Sprintf("%s(%d)", origin, entry.Score))
	}
	if len(order) == 0 {
		return status
	}
	return status + " · consensus " + strings.Join(order, " > ")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
