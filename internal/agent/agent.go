package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/yolodolo42/dagent/internal/api"
	"github.com/yolodolo42/dagent/internal/mention"
	"github.com/yolodolo42/dagent/internal/transcript"
)

// Backend is the part of the API client the agent talks to.
type Backend interface {
	Chat(ctx context.Context, req api.ChatRequest, onBlock func(transcript.Block) error) error
	Messages(ctx context.Context, conversationID int64) ([]transcript.Message, error)
}

// HistoryCache receives a copy of every conversation the agent sees.
type HistoryCache interface {
	PutMessages(ctx context.Context, conversationID int64, messages []transcript.Message) error
}

// Agent owns one conversation with the Data Agent backend. It sends user
// turns, folds the streamed reply into an assistant message and keeps the
// chat context chosen by the last mention.
type Agent struct {
	// mu serializes turns so concurrent Chat calls cannot interleave
	// messages of the same conversation.
	mu      sync.Mutex
	backend Backend
	cache   HistoryCache
	log     *slog.Logger
	dataDir string
	model   string

	conv    *Conversation
	session *sessionLogger
}

// Option configures an Agent.
type Option func(*Agent)

// WithCache stores every loaded or updated conversation in c.
func WithCache(c HistoryCache) Option {
	return func(a *Agent) { a.cache = c }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// WithSessionLog writes a JSONL transcript of each session under
// dataDir/sessions.
func WithSessionLog(dataDir string) Option {
	return func(a *Agent) { a.dataDir = dataDir }
}

// WithModel selects the chat model sent with each turn.
func WithModel(model string) Option {
	return func(a *Agent) { a.model = model }
}

// New creates an agent with an empty conversation.
func New(backend Backend, opts ...Option) (*Agent, error) {
	if backend == nil {
		return nil, errors.New("agent backend not configured")
	}
	a := &Agent{
		backend: backend,
		log:     slog.Default(),
		conv:    NewConversation(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.openSession()
	return a, nil
}

// Close releases the session log.
func (a *Agent) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session.Close()
	a.session = nil
}

func (a *Agent) openSession() {
	if a.dataDir == "" {
		return
	}
	l, err := newSessionLogger(a.dataDir, uuid.NewString())
	if err != nil {
		a.log.Warn("session log disabled", "error", err)
		return
	}
	a.session = l
}

// Chat sends text as a user turn and streams the reply. onUpdate, when
// set, receives a snapshot of the assistant message after every block; it
// runs with the agent locked and must not call back into it.
// A reply cut short by an error is kept when it produced any blocks.
func (a *Agent) Chat(ctx context.Context, text string, onUpdate func(transcript.Message)) (transcript.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.conv.AddUserMessage(text)
	a.session.logRecord(sessionRecord{TS: nowTS(), Type: "user", ConversationID: a.conv.ID, Model: a.model, Content: text})

	req := api.ChatRequest{
		Message:        text,
		ConversationID: a.conv.ID,
		ConnectionID:   a.conv.Context.ConnectionID,
		DatabaseName:   a.conv.Context.DatabaseName,
		SchemaName:     a.conv.Context.SchemaName,
		Model:          a.model,
	}

	stream := transcript.NewStream(newMessageID())
	err := a.backend.Chat(ctx, req, func(b transcript.Block) error {
		stream.Append(b)
		a.logBlock(b)
		if onUpdate != nil {
			onUpdate(stream.Message())
		}
		return nil
	})

	if id := stream.ConversationID(); id != 0 {
		a.conv.ID = id
	}
	reply := stream.Message()
	if err == nil || len(reply.Blocks) > 0 {
		a.conv.AddAssistantMessage(reply)
	}
	if err != nil {
		a.session.logRecord(sessionRecord{TS: nowTS(), Type: "error", ConversationID: a.conv.ID, Text: err.Error(), IsError: true})
		a.log.Warn("chat turn failed", "conversation", a.conv.ID, "error", err)
		return reply, err
	}

	a.log.Debug("chat turn finished", "conversation", a.conv.ID, "blocks", len(reply.Blocks))
	a.writeCache(ctx)
	return reply, nil
}

func (a *Agent) logBlock(b transcript.Block) {
	rec := sessionRecord{TS: nowTS(), Type: "block", ConversationID: a.conv.ID, Kind: string(b.Kind)}
	if b.Done {
		rec.Type = "done"
		rec.ConversationID = b.ConversationID
		a.session.logRecord(rec)
		return
	}
	switch b.Kind {
	case transcript.BlockToolCall:
		if call, ok := transcript.DecodeToolCall(b); ok {
			rec.ToolName = call.ToolName
			rec.Args = RedactJSONArgs(call.Arguments)
			break
		}
		rec.Text = b.Data
	case transcript.BlockToolResult:
		if res, ok := transcript.DecodeToolResult(b); ok {
			rec.ToolName = res.ToolName
			rec.Text = res.Result
			break
		}
		rec.Text = b.Data
	default:
		rec.Text = b.Data
	}
	a.session.logRecord(rec)
}

// Load replaces the current conversation with the server's history of id.
// Stored tool pairs split across records are merged for display.
func (a *Agent) Load(ctx context.Context, id int64) ([]transcript.Message, error) {
	raw, err := a.backend.Messages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %d: %w", id, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.conv = NewConversation()
	a.conv.ID = id
	a.conv.Messages = transcript.Reconcile(raw)
	a.session.logRecord(sessionRecord{TS: nowTS(), Type: "load", ConversationID: id, Content: strconv.Itoa(len(raw)) + " messages"})

	if a.cache != nil {
		if err := a.cache.PutMessages(ctx, id, raw); err != nil {
			a.log.Warn("failed to cache conversation", "conversation", id, "error", err)
		}
	}
	return a.conv.Snapshot(), nil
}

// Messages returns a copy of the conversation so far.
func (a *Agent) Messages() []transcript.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conv.Snapshot()
}

// ConversationID is the server id of the current conversation, zero
// before the first reply.
func (a *Agent) ConversationID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conv.ID
}

// SetContext sets the connection, database and schema later turns run
// against. Fields left empty in f clear the previous value.
func (a *Agent) SetContext(f mention.Filter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conv.Context = f
}

// Context returns the current chat context.
func (a *Agent) Context() mention.Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conv.Context
}

// Model returns the model sent with each turn, empty for the server default.
func (a *Agent) Model() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model
}

// SetModel changes the model for later turns.
func (a *Agent) SetModel(model string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.model = model
}

// Reset starts a new conversation and a new session log.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conv = NewConversation()
	a.session.Close()
	a.session = nil
	a.openSession()
}

// Export serializes the current conversation.
func (a *Agent) Export() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conv.ToJSON()
}

func (a *Agent) writeCache(ctx context.Context) {
	if a.cache == nil || a.conv.ID == 0 {
		return
	}
	if err := a.cache.PutMessages(ctx, a.conv.ID, a.conv.Snapshot()); err != nil {
		a.log.Warn("failed to cache conversation", "conversation", a.conv.ID, "error", err)
	}
}
