// Package tui is the terminal chat client. It renders a conversation log,
// submits utterances and follow-up parameters, and drives transfer sessions
// with slash commands.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/banktalk/internal/conversation"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/transfer"
	"github.com/Veraticus/banktalk/internal/tui/themes"
)

const commandHelp = "/set key=value  /account ID  /search TERM  /pick ID  /amount N [on DATE] [notes]  /confirm  /otp CODE  /back  /reset  /smart  /quit"

// Model holds the chat client state.
type Model struct {
	ctx         context.Context
	conv        Conversation
	lastError   error
	runner      *transferRunner
	updates     <-chan conversation.Update
	unsubscribe func()
	index       map[string]int
	sessions    map[string]*transfer.Session
	theme       themes.Theme
	keymap      KeyMap
	help        help.Model
	input       textinput.Model
	spinner     spinner.Model
	viewport    viewport.Model
	config      Config
	status      string
	active      string
	messages    []model.Message
	width       int
	height      int
	ready       bool
	closed      bool
	quitting    bool
}

// newModel subscribes to conv before reading its log so no update is lost.
func newModel(ctx context.Context, conv Conversation, cfg Config) Model {
	updates, unsubscribe := conv.Subscribe()

	in := textinput.New()
	in.Placeholder = "Ask about your accounts, or type /help"
	in.Prompt = "› "
	in.CharLimit = 500
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(cfg.Theme.Primary)

	h := help.New()
	h.ShowAll = cfg.ShowHelp

	m := Model{
		ctx:         ctx,
		conv:        conv,
		updates:     updates,
		unsubscribe: unsubscribe,
		index:       make(map[string]int),
		sessions:    make(map[string]*transfer.Session),
		theme:       cfg.Theme,
		keymap:      DefaultKeyMap(),
		help:        h,
		input:       in,
		spinner:     sp,
		config:      cfg,
		width:       cfg.Width,
		height:      cfg.Height,
	}
	if cfg.Flow != nil && cfg.Sessions != nil {
		m.runner = &transferRunner{flow: cfg.Flow, store: cfg.Sessions}
	}
	for _, msg := range conv.Messages() {
		m.apply(msg)
	}
	return m
}

// Init starts the subscription loop and loads known transfer sessions.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		waitForUpdate(m.updates),
	}
	if m.runner != nil {
		for id := range m.sessionIDs() {
			cmds = append(cmds, m.runner.load(m.ctx, id))
		}
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			cmd := m.quit()
			return m, cmd
		case key.Matches(msg, m.keymap.ToggleSmart):
			m.toggleSmart()
			return m, nil
		case key.Matches(msg, m.keymap.ToggleHelp):
			m.help.ShowAll = !m.help.ShowAll
			m.resize()
			return m, nil
		case key.Matches(msg, m.keymap.ClearScreen):
			return m, tea.ClearScreen
		case key.Matches(msg, m.keymap.PageUp, m.keymap.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case key.Matches(msg, m.keymap.Send):
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			cmd := m.handleInput(text)
			return m, cmd
		}

	case updateMsg:
		m.apply(msg.update.Message)
		cmds = append(cmds, waitForUpdate(m.updates))
		if id := msg.update.Message.TransferSessionID; id != "" && m.runner != nil {
			if _, known := m.sessions[id]; !known {
				cmds = append(cmds, m.runner.load(m.ctx, id))
			}
		}
		m.refresh()
		return m, tea.Batch(cmds...)

	case streamClosedMsg:
		m.closed = true
		m.status = "Conversation closed"
		return m, nil

	case submittedMsg:
		m.lastError = nil
		return m, nil

	case sessionMsg:
		if msg.session != nil {
			m.sessions[msg.id] = msg.session
		}
		m.lastError = sessionError(msg.err, msg.session)
		m.refresh()
		return m, nil

	case errorMsg:
		m.lastError = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loading() {
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return m.theme.StatusPending.Render("Connecting...")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderFooter(),
	)
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	m.unsubscribe()
	return tea.Quit
}

func (m *Model) toggleSmart() {
	m.conv.SetSmartMode(!m.conv.SmartMode())
	if m.conv.SmartMode() {
		m.status = "Smart mode on"
	} else {
		m.status = "Smart mode off"
	}
}

// handleInput sends plain text as an utterance and runs slash commands.
func (m *Model) handleInput(text string) tea.Cmd {
	m.lastError = nil
	m.status = ""
	if m.closed {
		m.lastError = conversation.ErrClosed
		return nil
	}
	if !strings.HasPrefix(text, "/") {
		return submitUtterance(m.ctx, m.conv, text)
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit":
		return m.quit()
	case "help":
		m.status = commandHelp
		return nil
	case "smart":
		m.toggleSmart()
		return nil
	case "set":
		return m.followUp(arg)
	case "account", "search", "pick", "amount", "confirm", "otp", "back", "reset":
		return m.transferCommand(name, arg)
	}
	m.lastError = fmt.Errorf("unknown command /%s", name)
	return nil
}

// followUp supplies parameters to the latest message that asked for them.
func (m *Model) followUp(arg string) tea.Cmd {
	target, ok := m.awaitingParameters()
	if !ok {
		m.lastError = errors.New("no message is waiting for parameters")
		return nil
	}
	entities, err := parseAssignments(arg)
	if err != nil {
		m.lastError = err
		return nil
	}
	return submitFollowUp(m.ctx, m.conv, target.ID, entities)
}

func (m *Model) transferCommand(name, arg string) tea.Cmd {
	if m.runner == nil {
		m.lastError = errors.New("transfers are not available")
		return nil
	}
	if m.active == "" {
		m.lastError = ErrNoTransfer
		return nil
	}
	return m.runner.run(m.ctx, m.active, name, arg)
}

// apply inserts or replaces a message by id.
func (m *Model) apply(msg model.Message) {
	if i, ok := m.index[msg.ID]; ok {
		m.messages[i] = msg
	} else {
		m.index[msg.ID] = len(m.messages)
		m.messages = append(m.messages, msg)
	}
	if msg.TransferSessionID != "" {
		m.active = msg.TransferSessionID
	}
}

func (m Model) awaitingParameters() (model.Message, bool) {
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.IsUser || msg.Loading {
			continue
		}
		if msg.Resolution != nil && len(msg.Resolution.MissingParameters) > 0 {
			return msg, true
		}
	}
	return model.Message{}, false
}

func (m Model) sessionIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, msg := range m.messages {
		if msg.TransferSessionID != "" {
			ids[msg.TransferSessionID] = struct{}{}
		}
	}
	return ids
}

func (m Model) loading() bool {
	for _, msg := range m.messages {
		if msg.Loading {
			return true
		}
	}
	return false
}

// resize lays out the viewport between the header and the footer.
func (m *Model) resize() {
	m.help.Width = m.width
	m.input.Width = max(m.width-4, 10)

	footer := lipgloss.Height(m.renderFooter())
	header := lipgloss.Height(m.renderHeader())
	height := max(m.height-header-footer, 3)

	if !m.ready {
		m.viewport = viewport.New(m.width, height)
		m.ready = true
		return
	}
	m.viewport.Width = m.width
	m.viewport.Height = height
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

// sessionError turns a step failure into the text shown under the input.
func sessionError(err error, s *transfer.Session) error {
	if err == nil {
		return nil
	}
	var validation *transfer.ValidationError
	if errors.As(err, &validation) {
		return errors.New(validation.Message)
	}
	if errors.Is(err, transfer.ErrSubmissionFailed) && s != nil && s.LastError != "" {
		return errors.New(s.LastError)
	}
	return err
}
