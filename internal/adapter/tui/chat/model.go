package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"helpdesk-ai/internal/adapter/tui/theme"
	"helpdesk-ai/internal/adapter/tui/uxerror"
	"helpdesk-ai/internal/usecase"
)

// Desk is what the chat needs from usecase.Desk.
type Desk interface {
	Ask(ctx context.Context, sessionID, userID, message string) (usecase.Reply, error)
	ResolveApproval(ctx context.Context, sessionID, approverID string, approve bool) (usecase.Reply, error)
	Feedback(ctx context.Context, sessionID, turnID string, positive bool) error
	Metrics() usecase.MetricsSnapshot
}

const helpText = `**Commands**

- /approve [approver], /deny: resolve the pending operation (an approver other than you)
- /good, /bad: rate the last answer
- /metrics: desk statistics
- /new: start a new conversation
- /clear: clear the screen
- /quit: exit

Ctrl+C cancels a running request, or exits when idle.`

type role int

const (
	roleUser role = iota
	roleDesk
	roleSystem
	roleError
)

type entry struct {
	role role
	text string // already rendered
}

// Model is the root Bubble Tea model for the terminal chat.
type Model struct {
	desk   Desk
	userID string

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	render   *Renderer

	entries   []entry
	sessionID string
	lastTurn  string
	pending   string // action awaiting approval

	waiting  bool
	gen      uint64
	cancelFn context.CancelFunc
	width    int
	height   int
	ready    bool
	quitting bool
}

// New creates the chat model for userID. sessionID may be empty.
func New(desk Desk, userID, sessionID string) Model {
	ta := textarea.New()
	ta.Placeholder = "Describe your IT issue..."
	ta.Prompt = theme.InputPrompt.Render("> ")
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.SetHeight(2)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	m := Model{
		desk:      desk,
		userID:    userID,
		sessionID: sessionID,
		input:     ta,
		spinner:   s,
		render:    NewRenderer(80),
		viewport:  viewport.New(80, 20),
	}
	m.addSystem(fmt.Sprintf("Signed in as **%s**. Type /help for commands.", userID))
	return m
}

// SessionID is the current conversation, empty before the first reply.
func (m Model) SessionID() string { return m.sessionID }

// Init starts the cursor blink and spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.waiting {
				m.cancelRequest()
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEsc:
			if m.waiting {
				m.cancelRequest()
			}
			return m, nil
		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			value := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if value == "" {
				return m, nil
			}
			return m.submit(value)
		}

	case ReplyMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.finishRequest()
		m.sessionID = msg.Reply.SessionID
		if msg.Reply.TurnID != "" {
			m.lastTurn = msg.Reply.TurnID
		}
		m.pending = ""
		if msg.Reply.RequiresApproval {
			m.pending = msg.Reply.ApprovalAction
		}
		m.add(roleDesk, m.render.Reply(msg.Reply))
		return m, nil

	case ErrMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.finishRequest()
		if !errors.Is(msg.Err, context.Canceled) {
			m.add(roleError, uxerror.Humanize(msg.Err).Render())
		}
		return m, nil

	case FeedbackMsg:
		if msg.Err != nil {
			m.add(roleError, uxerror.Humanize(msg.Err).Render())
		} else if msg.Positive {
			m.addSystem(theme.SymbolSuccess + " Thanks for the feedback.")
		} else {
			m.addSystem("Sorry that didn't help. Rephrase the question or type *talk to a human*.")
		}
		return m, nil

	case MetricsMsg:
		m.add(roleSystem, m.render.Metrics(msg.Snapshot))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.waiting {
		if _, isMouse := msg.(tea.MouseMsg); !isMouse {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) submit(value string) (tea.Model, tea.Cmd) {
	if strings.HasPrefix(value, "/") {
		return m.command(value)
	}
	m.add(roleUser, value)
	ctx := m.startRequest()
	return m, tea.Batch(askCmd(ctx, m.desk, m.sessionID, m.userID, value, m.gen), m.spinner.Tick)
}

func (m Model) command(value string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(value, " ")
	switch name {
	case "/help":
		m.addSystem(helpText)
	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit
	case "/clear":
		m.entries = nil
		m.refresh()
	case "/new":
		m.sessionID, m.lastTurn, m.pending = "", "", ""
		m.entries = nil
		m.addSystem("Started a new conversation.")
	case "/approve", "/deny":
		if m.sessionID == "" || m.pending == "" {
			m.addSystem("Nothing is waiting for approval.")
			return m, nil
		}
		approve := name == "/approve"
		approver := strings.TrimSpace(arg)
		if approver == "" {
			approver = m.userID
		}
		m.add(roleUser, value)
		ctx := m.startRequest()
		return m, tea.Batch(resolveCmd(ctx, m.desk, m.sessionID, approver, approve, m.gen), m.spinner.Tick)
	case "/good", "/bad":
		if m.lastTurn == "" {
			m.addSystem("There is no answer to rate yet.")
			return m, nil
		}
		return m, feedbackCmd(m.desk, m.sessionID, m.lastTurn, name == "/good")
	case "/metrics":
		return m, metricsCmd(m.desk)
	default:
		m.add(roleError, fmt.Sprintf("Unknown command %s. Type /help.", name))
	}
	return m, nil
}

func (m *Model) startRequest() context.Context {
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFn = cancel
	m.waiting = true
	m.input.Blur()
	return ctx
}

func (m *Model) finishRequest() {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.waiting = false
	m.input.Focus()
}

// cancelRequest abandons the in-flight request; its reply is dropped by
// the generation check.
func (m *Model) cancelRequest() {
	m.gen++
	m.finishRequest()
	m.addSystem("Request cancelled.")
}

func (m *Model) add(r role, text string) {
	m.entries = append(m.entries, entry{role: r, text: text})
	m.refresh()
}

func (m *Model) addSystem(md string) {
	m.add(roleSystem, m.render.Markdown(md))
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) transcript() string {
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.role {
		case roleUser:
			b.WriteString(theme.UserLabel.Render(theme.SymbolUser))
			b.WriteString("\n")
		case roleDesk:
			b.WriteString(theme.DeskLabel.Render(theme.SymbolDesk))
			b.WriteString("\n")
		case roleError:
			b.WriteString(theme.ErrorLabel.Render(theme.SymbolError + " "))
		}
		b.WriteString(e.text)
	}
	return b.String()
}

func (m *Model) layout() {
	const inputH, statusH, dividerH = 2, 1, 1
	contentH := m.height - inputH - statusH - dividerH
	if contentH < 5 {
		contentH = 5
	}
	m.viewport.Width = m.width
	m.viewport.Height = contentH
	m.input.SetWidth(m.width)
	if !m.ready || m.render.Width() != theme.Clamp(m.width-4, 20, theme.MaxContentWidth) {
		m.render = NewRenderer(m.width - 4)
		m.ready = true
	}
	m.refresh()
}

// View renders the chat.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	inputView := m.input.View()
	if m.waiting {
		inputView = theme.Dim.Render("> waiting for the desk...") + "\n" + m.spinner.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		theme.TextMuted.Render(strings.Repeat("─", max(m.width, 1))),
		inputView,
		m.statusLine(),
	)
}

func (m Model) statusLine() string {
	session := "new conversation"
	if m.sessionID != "" {
		session = "session " + m.sessionID
	}
	parts := []string{theme.StatusKey.Render(m.userID), session}
	if m.pending != "" {
		parts = append(parts, theme.TextWarning.Render(theme.SymbolWarning+" "+m.pending+" awaiting /approve"))
	}
	parts = append(parts, "Enter send", "Ctrl+C quit")
	return theme.StatusBar.Width(max(m.width, 1)).Render(strings.Join(parts, "  "+theme.SymbolBullet+"  "))
}
