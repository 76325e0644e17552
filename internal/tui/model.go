package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/chatlog"
	"ragchat/internal/domain"
	"ragchat/internal/extract"
	"ragchat/internal/service"
)

const (
	sidebarWidth  = 34
	uploadCommand = "/upload"
)

// SessionPort is the TUI-facing subset of the session manager.
type SessionPort interface {
	StartNewSession(ctx context.Context) (string, error)
	SwitchSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
	IngestDocuments(ctx context.Context, files []domain.RawFile) (service.IngestResult, error)
	Ask(ctx context.Context, query string) (string, error)
	View() service.View
}

type focus int

const (
	focusInput focus = iota
	focusSessions
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusWarn
	statusError
)

// actionDoneMsg carries the outcome of a background action.
type actionDoneMsg struct {
	view   service.View
	status string
	err    error
	upload *service.IngestResult
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	service  SessionPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	view       service.View
	status     string
	statusKind statusKind
	focus      focus
	cursor     int
	busy       bool
	pending    string
	upload     *service.IngestResult
	uploadGen  int
	width      int
	height     int
	ready      bool
}

// New creates a new TUI model instance.
func New(ctx context.Context, svc SessionPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /upload <path or glob> ..."
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	v := svc.View()
	return Model{
		ctx:       ctx,
		service:   svc,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		view:      v,
		uploadGen: v.UploaderGeneration,
		status:    "ctrl+n new session · tab sessions · /upload <paths> · enter ask",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and action events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshChat()
		return m, cmd

	case actionDoneMsg:
		m.applyResult(msg)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.busy {
			// one action at a time
			return m, nil
		}
		switch msg.String() {
		case "ctrl+n":
			return m.start("Creating session", func(ctx context.Context) actionDoneMsg {
				id, err := m.service.StartNewSession(ctx)
				return actionDoneMsg{status: "Started session " + id, err: err}
			})
		case "tab":
			m.toggleFocus()
			return m, nil
		}
		if m.focus == focusSessions {
			return m.updateSessions(msg)
		}
		switch msg.Type {
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) toggleFocus() {
	if m.focus == focusSessions {
		m.focus = focusInput
		m.input.Focus()
		return
	}
	m.focus = focusSessions
	m.input.Blur()
	m.cursor = 0
	for i, s := range m.view.Sessions {
		if s.Active {
			m.cursor = i
		}
	}
}

func (m Model) updateSessions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(m.view.Sessions)
	if n == 0 {
		return m, nil
	}
	switch msg.String() {
	case "up", "k":
		m.cursor = (m.cursor - 1 + n) % n
	case "down", "j":
		m.cursor = (m.cursor + 1) % n
	case "enter":
		id := m.view.Sessions[m.cursor].ID
		m.toggleFocus()
		return m.start("Loading session", func(ctx context.Context) actionDoneMsg {
			err := m.service.SwitchSession(ctx, id)
			return actionDoneMsg{status: "Switched to " + id, err: err}
		})
	case "ctrl+x", "delete":
		id := m.view.Sessions[m.cursor].ID
		return m.start("Deleting session", func(ctx context.Context) actionDoneMsg {
			err := m.service.DeleteSession(ctx, id)
			return actionDoneMsg{status: "Deleted " + id, err: err}
		})
	}
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.SetValue("")

	if text == uploadCommand || strings.HasPrefix(text, uploadCommand+" ") {
		patterns := strings.Fields(strings.TrimPrefix(text, uploadCommand))
		if len(patterns) == 0 {
			m.setStatus("Usage: /upload <path or glob> ...", statusWarn)
			return m, nil
		}
		return m.start("Processing documents", func(ctx context.Context) actionDoneMsg {
			return m.ingest(ctx, patterns)
		})
	}

	m.pending = text
	return m.start("Thinking", func(ctx context.Context) actionDoneMsg {
		_, err := m.service.Ask(ctx, text)
		return actionDoneMsg{status: "Answered", err: err}
	})
}

func (m Model) ingest(ctx context.Context, patterns []string) actionDoneMsg {
	files, unreadable := extract.ReadPaths(patterns)
	res, err := m.service.IngestDocuments(ctx, files)
	res.Skipped = append(unreadable, res.Skipped...)
	done := actionDoneMsg{upload: &res, err: err}
	if err == nil {
		verb := "Merged"
		if res.Created {
			verb = "Indexed"
		}
		done.status = fmt.Sprintf("%s %d document(s), %d in knowledge base", verb, len(res.Documents), res.Total)
		if len(res.Skipped) > 0 {
			done.status += fmt.Sprintf(", skipped %d", len(res.Skipped))
		}
	}
	return done
}

// start runs fn off the UI loop and marks the model busy until it reports back.
func (m Model) start(label string, fn func(context.Context) actionDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = true
	m.setStatus(label+"...", statusInfo)
	m.refreshChat()
	ctx, svc := m.ctx, m.service
	run := func() tea.Msg {
		done := fn(ctx)
		done.view = svc.View()
		return done
	}
	return m, tea.Batch(m.spinner.Tick, run)
}

func (m *Model) applyResult(msg actionDoneMsg) {
	m.busy = false
	m.pending = ""
	m.view = msg.view
	if m.view.UploaderGeneration != m.uploadGen {
		m.upload = nil
		m.uploadGen = m.view.UploaderGeneration
	}
	if msg.upload != nil {
		m.upload = msg.upload
	}
	if m.cursor >= len(m.view.Sessions) {
		m.cursor = max(0, len(m.view.Sessions)-1)
	}
	if msg.err != nil {
		m.setStatus(describeError(msg.err))
	} else {
		m.setStatus(msg.status, statusInfo)
	}
	m.refreshChat()
}

func describeError(err error) (string, statusKind) {
	switch {
	case errors.Is(err, domain.ErrNotReady):
		return "No documents yet: upload some with /upload <path or glob>", statusWarn
	case errors.Is(err, domain.ErrEmptyInput):
		return "Nothing to process: " + err.Error(), statusWarn
	case errors.Is(err, domain.ErrNotFound):
		return "Session not available: " + err.Error(), statusError
	case domain.IsUpstream(err):
		return "Upstream failure: " + err.Error(), statusError
	default:
		return "Error: " + err.Error(), statusError
	}
}

func (m *Model) setStatus(s string, kind statusKind) {
	m.status = s
	m.statusKind = kind
}

func (m *Model) layout() {
	_, ch := chatBoxStyle.GetFrameSize()
	_, ih := inputBoxStyle.GetFrameSize()
	reserved := 1 + ih + 1 + 1 // header, input line, status
	bodyH := max(3, m.height-reserved)
	cw, _ := chatBoxStyle.GetFrameSize()
	m.viewport.Width = max(20, m.width-sidebarWidth-cw)
	m.viewport.Height = max(3, bodyH-ch)
	m.input.Width = max(10, m.width-6)
	m.refreshChat()
}

func (m *Model) refreshChat() {
	m.viewport.SetContent(m.renderChat())
	m.viewport.GotoBottom()
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("RAG Chat") + "  " + dimStyle.Render(m.view.Title)
	chat := chatBoxStyle.Render(m.viewport.View())
	side := m.renderSidebar(lipgloss.Height(chat))
	body := lipgloss.JoinHorizontal(lipgloss.Top, side, chat)
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyles[m.statusKind].Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) renderChat() string {
	width := max(20, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	if len(m.view.Messages) == 0 && m.pending == "" {
		if m.view.Ready {
			return dimStyle.Render("Ask a question about your documents.")
		}
		return dimStyle.Render("Upload documents with /upload <path or glob> to start chatting.")
	}
	lastQuestion := ""
	for _, msg := range m.view.Messages {
		if msg.Role == chatlog.RoleUser {
			lastQuestion = msg.Content
			b.WriteString(userStyle.Render("You") + "\n" + wrap.Render(msg.Content) + "\n\n")
			continue
		}
		b.WriteString(assistantStyle.Render("Assistant") + "\n" + wrap.Render(highlightBestSentence(msg.Content, lastQuestion)) + "\n\n")
	}
	if m.pending != "" {
		b.WriteString(userStyle.Render("You") + "\n" + wrap.Render(m.pending) + "\n\n")
		b.WriteString(assistantStyle.Render("Assistant") + "\n" + m.spinner.View() + " thinking\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderSidebar(height int) string {
	inner := sidebarWidth - 4
	var b strings.Builder
	b.WriteString(headerStyle.Render("Sessions") + "\n")

	visible := max(1, height-12)
	first := 0
	if m.cursor >= visible {
		first = m.cursor - visible + 1
	}
	for i := first; i < len(m.view.Sessions) && i < first+visible; i++ {
		s := m.view.Sessions[i]
		marker := "  "
		if s.Active {
			marker = "● "
		}
		line := truncate(marker+s.Title, inner)
		if m.focus == focusSessions && i == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + headerStyle.Render("Knowledge base") + "\n")
	if m.view.Ready {
		b.WriteString(fmt.Sprintf("%d document(s), %d chunks\n", len(m.view.Documents), m.view.Chunks))
		for _, d := range m.view.Documents {
			b.WriteString(dimStyle.Render(truncate("· "+d, inner)) + "\n")
		}
	} else {
		b.WriteString(statusStyles[statusWarn].Render("not ready") + "\n")
	}
	if m.view.Summary != "" {
		b.WriteString("\n" + dimStyle.Width(inner).Render(truncate(m.view.Summary, inner*4)) + "\n")
	}
	if m.upload != nil && len(m.upload.Skipped) > 0 {
		b.WriteString("\n" + headerStyle.Render("Skipped") + "\n")
		for _, s := range m.upload.Skipped {
			b.WriteString(dimStyle.Render(truncate(s.String(), inner)) + "\n")
		}
	}
	return sidebarStyle.Width(sidebarWidth - 2).Height(max(1, height-2)).Render(strings.TrimRight(b.String(), "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

var (
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sidebarStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	selectedStyle  = lipgloss.NewStyle().Reverse(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	statusStyles   = map[statusKind]lipgloss.Style{
		statusInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		statusWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		statusError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)
