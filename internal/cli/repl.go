package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/yolodolo42/dagent/internal/agent"
	"github.com/yolodolo42/dagent/internal/api"
	"github.com/yolodolo42/dagent/internal/mention"
	"github.com/yolodolo42/dagent/internal/transcript"
	"github.com/yolodolo42/dagent/internal/ui"
)

const (
	candidateTimeout = 15 * time.Second
	historyTimeout   = 30 * time.Second

	// Rows taken by the title, input, mirror and help lines.
	chromeHeight = 9
)

const welcomeText = `Welcome to dagent! Ask about your data, or type @ to point at a
connection, database, schema or table. Use /help for commands, /quit to exit.`

// note is a client-side line shown under the transcript
type note struct {
	text  string
	isErr bool
}

// model represents the REPL state
type model struct {
	ctx      context.Context
	agent    *agent.Agent
	provider mention.Provider
	mention  *mention.Session
	renderer *ui.Renderer

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	// messages is the settled transcript; pending is the reply being
	// streamed, if any.
	messages []transcript.Message
	pending  *transcript.Message
	notes    []note

	// chatContext and modelName mirror the agent, which stays locked for
	// the length of a turn.
	chatContext mention.Filter
	modelName   string

	streaming bool
	stream    chan tea.Msg
	cancel    context.CancelFunc

	width    int
	height   int
	ready    bool
	quitting bool
}

// candidatesMsg carries a finished mention candidate fetch
type candidatesMsg mention.Result

// streamUpdateMsg carries the assistant reply after another block
type streamUpdateMsg struct {
	message transcript.Message
}

// streamDoneMsg is sent when a turn ends
type streamDoneMsg struct {
	reply transcript.Message
	err   error
}

// historyMsg is sent when /open finished loading a conversation
type historyMsg struct {
	id       int64
	messages []transcript.Message
	err      error
}

// initialModel creates the initial model state
func initialModel(ctx context.Context, ag *agent.Agent, provider mention.Provider) model {
	ta := textarea.New()
	ta.Placeholder = "Ask about your data, @ to mention a table..."
	ta.Focus()
	ta.CharLimit = 4000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ui.ColorPrimary)

	r := ui.NewRenderer(80, "auto")
	r.Redact = agent.RedactJSONArgs

	return model{
		ctx:         ctx,
		agent:       ag,
		provider:    provider,
		mention:     mention.NewSession(),
		renderer:    r,
		textarea:    ta,
		viewport:    newViewport(80, 20),
		spinner:     sp,
		messages:    ag.Messages(),
		notes:       []note{{text: welcomeText}},
		chatContext: ag.Context(),
		modelName:   ag.Model(),
	}
}

// newViewport creates a transcript viewport that only scrolls on paging
// keys, so typing never moves it.
func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.KeyMap = viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
	}
	return vp
}

// Init initializes the model
func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update handles messages and updates state
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.stopStream()
			m.quitting = true
			return m, tea.Quit
		}

		// The popup gets first pick of navigation keys.
		if m.mention.IsOpen() {
			if msg.String() == "ctrl+r" {
				if req := m.mention.Retry(); req != nil {
					return m, m.fetchCandidates(*req)
				}
				return m, nil
			}
			if consumed, out := m.mention.HandleKey(msg.String()); consumed {
				cmd := m.applyOutcome(out)
				return m, cmd
			}
		}

		switch msg.Type {
		case tea.KeyEsc:
			if m.streaming {
				m.stopStream()
			}
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		}

		before := m.textarea.Value()
		var taCmd, vpCmd tea.Cmd
		m.textarea, taCmd = m.textarea.Update(msg)
		m.viewport, vpCmd = m.viewport.Update(msg)
		mentionCmd := m.syncMention(m.textarea.Value() != before)
		return m, tea.Batch(taCmd, vpCmd, mentionCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := max(msg.Height-chromeHeight, 3)
		if !m.ready {
			m.viewport = newViewport(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(max(msg.Width-4, 10))
		m.renderer.SetWidth(msg.Width - 2)
		m.refreshViewport()

	case candidatesMsg:
		m.mention.Apply(mention.Result(msg))
		return m, nil

	case streamUpdateMsg:
		reply := msg.message
		m.pending = &reply
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, waitForStream(m.stream)

	case streamDoneMsg:
		m.finishStream()
		m.messages = m.agent.Messages()
		if msg.err != nil {
			m.addChatError(msg.err)
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.addNote(msg.err.Error(), true)
		} else {
			m.messages = msg.messages
			m.chatContext = mention.Filter{}
			m.notes = []note{{text: fmt.Sprintf("Opened conversation #%d (%d messages).", msg.id, len(msg.messages))}}
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		var spCmd tea.Cmd
		m.spinner, spCmd = m.spinner.Update(msg)
		return m, spCmd
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)
	return m, tea.Batch(cmds...)
}

// syncMention opens or closes the popup to follow the draft. A closed
// popup only reopens when the text changed.
func (m *model) syncMention(changed bool) tea.Cmd {
	if _, _, ok := mention.TriggerAt(m.textarea.Value(), cursorOffset(m.textarea)); !ok {
		if m.mention.IsOpen() {
			m.mention.Close()
		}
		return nil
	}
	if !changed {
		return nil
	}
	if req := m.mention.Open(); req != nil {
		return m.fetchCandidates(*req)
	}
	return nil
}

func (m *model) applyOutcome(out mention.Outcome) tea.Cmd {
	switch {
	case out.Fetch != nil:
		return m.fetchCandidates(*out.Fetch)
	case out.Confirmed != nil:
		m.insertMention(*out.Confirmed)
	}
	return nil
}

// insertMention splices a confirmed mention into the draft and makes its
// target the context of the next turn.
func (m *model) insertMention(c mention.Confirmation) {
	draft := m.textarea.Value()
	edit := mention.Splice(draft, cursorOffset(m.textarea), c)
	next := edit.Apply(draft)

	m.textarea.SetValue(next)
	setCursorOffset(&m.textarea, edit.Cursor())
	m.chatContext = c.Filter
}

func (m model) fetchCandidates(req mention.Request) tea.Cmd {
	provider, ctx := m.provider, m.ctx
	return func() tea.Msg {
		if provider == nil {
			return candidatesMsg{Seq: req.Seq, Level: req.Level, Err: errors.New("mention lookup is not available")}
		}
		ctx, cancel := context.WithTimeout(ctx, candidateTimeout)
		defer cancel()
		return candidatesMsg(mention.Load(ctx, provider, req))
	}
}

func (m model) submit() (tea.Model, tea.Cmd) {
	if m.streaming {
		return m, nil
	}

	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}
	m.textarea.Reset()
	m.mention.Close()

	// Handle commands
	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.agent.SetContext(m.chatContext)
	now := time.Now()
	m.notes = nil
	m.messages = append(m.messages, transcript.Message{Role: transcript.RoleUser, Content: input, CreatedAt: &now})
	cmd := m.startTurn(input)
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, cmd
}

// startTurn runs the agent turn on its own goroutine and streams its
// progress back through m.stream.
func (m *model) startTurn(text string) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	ch := make(chan tea.Msg, 16)
	m.stream = ch
	m.cancel = cancel
	m.streaming = true

	ag := m.agent
	go func() {
		defer close(ch)
		send := func(msg tea.Msg) {
			select {
			case ch <- msg:
			case <-ctx.Done():
			}
		}
		reply, err := ag.Chat(ctx, text, func(msg transcript.Message) {
			send(streamUpdateMsg{message: msg})
		})
		// Delivered even after cancellation so the model can settle.
		ch <- streamDoneMsg{reply: reply, err: err}
	}()

	return waitForStream(ch)
}

func waitForStream(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *model) stopStream() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *model) finishStream() {
	m.stopStream()
	m.cancel = nil
	m.stream = nil
	m.streaming = false
	m.pending = nil
}

func (m *model) addChatError(err error) {
	switch {
	case errors.Is(err, context.Canceled):
		m.addNote("Interrupted.", false)
	case api.IsNotLoggedIn(err):
		m.addNote("Your session has expired. Run `dagent login` and try again.", true)
	default:
		m.addNote(err.Error(), true)
	}
}

func (m *model) addNote(text string, isErr bool) {
	m.notes = append(m.notes, note{text: text, isErr: isErr})
}

// View renders the UI
func (m model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if !m.ready {
		return "Initializing...\n"
	}

	var b strings.Builder

	// Title
	b.WriteString(ui.TitleStyle.Render("  dagent - Data Agent") + "\n\n")

	popup := ""
	if m.mention.IsOpen() {
		popup = ui.MentionPopup(m.mention, min(m.width-4, 60), m.spinner.View())
	}

	// Messages viewport, shrunk to make room for the popup
	vp := m.viewport
	if popup != "" {
		vp.Height = max(m.viewport.Height-lipgloss.Height(popup), 3)
	}
	b.WriteString(vp.View())
	b.WriteString("\n")

	if popup != "" {
		b.WriteString(popup)
		b.WriteString("\n")
	}

	if m.streaming {
		b.WriteString(fmt.Sprintf("  %s Working... (esc to stop)\n", m.spinner.View()))
	} else {
		b.WriteString("\n")
	}

	// Input area
	b.WriteString(m.textarea.View())
	b.WriteString("\n")

	// Mention mirror line
	if draft := m.textarea.Value(); strings.Contains(draft, "@") {
		b.WriteString("  " + ui.HighlightMentions(strings.ReplaceAll(draft, "\n", " ")))
	}
	b.WriteString("\n")

	b.WriteString(ui.HelpStyle.Render("  " + m.statusLine()))
	return b.String()
}

func (m model) statusLine() string {
	parts := []string{"context: " + describeContext(m.chatContext)}
	if m.modelName != "" {
		parts = append(parts, "model: "+m.modelName)
	}
	parts = append(parts, "/help • /tools • /new • ctrl+c to exit")
	return strings.Join(parts, " • ")
}

func describeContext(f mention.Filter) string {
	if f.ConnectionID == 0 {
		return "none"
	}
	s := "conn " + strconv.FormatInt(f.ConnectionID, 10)
	for _, part := range []string{f.DatabaseName, f.SchemaName} {
		if part != "" {
			s += "/" + part
		}
	}
	return s
}

// refreshViewport re-renders the transcript into the viewport
func (m *model) refreshViewport() {
	msgs := m.messages
	if m.pending != nil {
		msgs = append(append([]transcript.Message(nil), msgs...), *m.pending)
	}

	var content strings.Builder
	if len(msgs) > 0 {
		content.WriteString(m.renderer.Transcript(transcript.Reconcile(msgs)))
		content.WriteString("\n\n")
	}
	for _, n := range m.notes {
		if n.isErr {
			content.WriteString(ui.ErrorStyle.Render("Error: "))
			content.WriteString(n.text)
		} else {
			content.WriteString(ui.SystemStyle.Render(n.text))
		}
		content.WriteString("\n\n")
	}

	m.viewport.SetContent(content.String())
}

// handleCommand handles slash commands
func (m model) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		m.quitting = true
		return m, tea.Quit

	case "/new", "/clear":
		m.agent.Reset()
		m.chatContext = mention.Filter{}
		m.messages = nil
		m.notes = []note{{text: "New conversation. How can I help?"}}

	case "/open":
		id, err := parseConversationID(arg)
		if err != nil {
			m.addNote("Usage: /open <conversation id>", true)
			break
		}
		m.addNote(fmt.Sprintf("Loading conversation #%d...", id), false)
		m.refreshViewport()
		return m, m.loadConversation(id)

	case "/tools":
		m.renderer.ShowTools = !m.renderer.ShowTools
		if m.renderer.ShowTools {
			m.addNote("Tool details expanded.", false)
		} else {
			m.addNote("Tool details collapsed.", false)
		}

	case "/model":
		m.handleModelCommand(arg)

	case "/context":
		if strings.EqualFold(arg, "clear") {
			m.chatContext = mention.Filter{}
			m.agent.SetContext(m.chatContext)
		}
		m.addNote("Context: "+describeContext(m.chatContext), false)

	case "/help", "/?":
		m.addNote(`Available commands:
  /help, /?         - Show this help
  /new              - Start a new conversation
  /open <id>        - Continue a past conversation (see: dagent history list)
  /tools            - Expand or collapse tool calls
  /model [name]     - Show or switch the chat model ("default" resets)
  /context [clear]  - Show or clear the database context
  /quit, /exit      - Exit dagent

Type @ to pick a connection, database, schema or table. In the popup use
up/down to move, enter or tab to select, esc to close, ctrl+r to retry.`, false)

	default:
		m.addNote(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd), true)
	}

	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, nil
}

// handleModelCommand shows or switches the chat model
func (m *model) handleModelCommand(name string) {
	if name == "" {
		current := m.modelName
		var b strings.Builder
		b.WriteString("Models:\n")
		for _, md := range agent.Models() {
			marker := "  "
			if md.ID == current {
				marker = ui.SymbolArrow + " "
			}
			b.WriteString(fmt.Sprintf("  %s%s\n", marker, md.Name))
		}
		b.WriteString(fmt.Sprintf("\nActive: %s", firstNonEmpty(current, "server default")))
		b.WriteString("\nUsage: /model <name>, /model default")
		m.addNote(b.String(), false)
		return
	}

	id := agent.ResolveModel(name)
	m.agent.SetModel(id)
	m.modelName = id
	m.addNote(fmt.Sprintf("Model set to %s.", firstNonEmpty(id, "server default")), false)
}

func (m model) loadConversation(id int64) tea.Cmd {
	ag, ctx := m.agent, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, historyTimeout)
		defer cancel()
		msgs, err := ag.Load(ctx, id)
		return historyMsg{id: id, messages: msgs, err: err}
	}
}

// cursorOffset is the byte offset of the textarea cursor in its value.
func cursorOffset(ta textarea.Model) int {
	lines := strings.Split(ta.Value(), "\n")
	row := min(max(ta.Line(), 0), len(lines)-1)

	info := ta.LineInfo()
	runes := []rune(lines[row])
	col := min(max(info.StartColumn+info.ColumnOffset, 0), len(runes))

	off := 0
	for _, l := range lines[:row] {
		off += len(l) + 1
	}
	return off + len(string(runes[:col]))
}

// setCursorOffset moves the cursor to byte offset off. It expects the
// cursor at the end of the value, as SetValue leaves it.
func setCursorOffset(ta *textarea.Model, off int) {
	val := ta.Value()
	off = min(max(off, 0), len(val))
	before := val[:off]

	row := strings.Count(before, "\n")
	col := utf8.RuneCountInString(before[strings.LastIndex(before, "\n")+1:])
	for i := 0; ta.Line() > row && i < len(val); i++ {
		ta.CursorUp()
	}
	ta.SetCursor(col)
}

// RunREPL starts the interactive REPL
func RunREPL(a *app) error {
	ag, err := a.newAgent()
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	defer ag.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(
		initialModel(ctx, ag, api.NewMentionProvider(a.client)),
		tea.WithAltScreen(),
	)

	_, err = p.Run()
	return err
}
