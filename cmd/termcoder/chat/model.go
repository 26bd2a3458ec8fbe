// Package chat implements the interactive terminal interface: a bubbletea
// program with a scrolling transcript, a multi-line input box and a status
// line fed by the orchestration graph.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// Response is what a handler returns for one input line.
type Response struct {
	Text     string
	Markdown bool
	Quit     bool
}

// Handler processes one line of user input.
type Handler func(ctx context.Context, line string) (Response, error)

// Config configures a Model.
type Config struct {
	Handler  Handler
	ThreadID string
	Model    string
	// Greeting is shown before the first request.
	Greeting string
}

// Role of a transcript entry.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
	RoleQuestion
	RoleError
)

// Entry is one transcript line.
type Entry struct {
	Role     Role
	Content  string
	Markdown bool
	Time     time.Time
}

// replyMsg carries a finished turn back into the update loop.
type replyMsg struct {
	resp Response
	err  error
}

// Layout
const (
	headerHeight = 1
	statusHeight = 1
	helpHeight   = 1
	inputHeight  = 5 // 3 lines + border
)

// Model is the bubbletea model for the chat interface.
type Model struct {
	ctx     context.Context
	cfg     Config
	styles  Styles
	history []Entry

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width, height int
	ready         bool

	busy       bool
	turnCancel context.CancelFunc
	pending    *askMsg
	status     string
	quitting   bool
}

// New creates the chat model. ctx bounds every turn.
func New(ctx context.Context, cfg Config) Model {
	styles := DefaultStyles()

	ta := textarea.New()
	ta.Placeholder = "Ask me anything... (Enter to send, Alt+Enter for a new line, Ctrl+C to exit)"
	ta.Focus()
	ta.Prompt = "│ "
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)

	m := Model{
		ctx:      ctx,
		cfg:      cfg,
		styles:   styles,
		textarea: ta,
		viewport: vp,
		spinner:  sp,
	}
	if cfg.Greeting != "" {
		m.history = append(m.history, Entry{Role: RoleAssistant, Content: cfg.Greeting, Markdown: true, Time: time.Now()})
	}
	return m
}

// History returns the transcript.
func (m Model) History() []Entry {
	return m.history
}

// Busy reports whether a turn is running.
func (m Model) Busy() bool {
	return m.busy
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			m.cancelTurn()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.busy {
				m.cancelTurn()
				m.status = "Cancelling..."
				return m, nil
			}
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case askMsg:
		m.pending = &msg
		m.append(Entry{Role: RoleQuestion, Content: msg.question})
		m.status = "Waiting for your answer"
		return m, nil

	case progressMsg:
		m.status = string(msg)
		return m, nil

	case replyMsg:
		m.busy = false
		m.pending = nil
		m.status = ""
		if m.turnCancel != nil {
			m.turnCancel()
			m.turnCancel = nil
		}
		text := strings.TrimSpace(msg.resp.Text)
		switch {
		case msg.err != nil && text == "":
			m.append(Entry{Role: RoleError, Content: msg.err.Error()})
		case msg.err != nil:
			m.append(Entry{Role: RoleError, Content: text})
		case text != "":
			m.append(Entry{Role: RoleAssistant, Content: text, Markdown: msg.resp.Markdown})
		}
		if msg.resp.Quit {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit sends the input box: an answer to a pending question, or a new turn.
func (m Model) submit() (tea.Model, tea.Cmd) {
	value := m.textarea.Value()
	line := strings.TrimSpace(value)

	if m.pending != nil {
		m.pending.reply <- value
		m.pending = nil
		m.append(Entry{Role: RoleUser, Content: value})
		m.textarea.Reset()
		m.status = "Working"
		return m, nil
	}
	if m.busy || line == "" {
		return m, nil
	}

	m.textarea.Reset()
	m.append(Entry{Role: RoleUser, Content: line})
	m.busy = true
	m.status = "Thinking"

	ctx, cancel := context.WithCancel(m.ctx)
	m.turnCancel = cancel
	handler := m.cfg.Handler
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		resp, err := handler(ctx, line)
		return replyMsg{resp: resp, err: err}
	})
}

func (m *Model) cancelTurn() {
	if m.turnCancel != nil {
		m.turnCancel()
	}
}

func (m *Model) append(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	m.history = append(m.history, e)
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	vpHeight := height - headerHeight - statusHeight - helpHeight - inputHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	inner := width - 4
	if inner < 1 {
		inner = 1
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.textarea.SetWidth(inner)

	m.renderer, _ = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(inner),
	)
	m.ready = true
	m.refresh()
}
