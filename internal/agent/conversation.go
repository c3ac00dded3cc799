package agent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/yolodolo42/dagent/internal/mention"
	"github.com/yolodolo42/dagent/internal/transcript"
)

// Conversation holds the client-side state of one chat thread
type Conversation struct {
	// ID is the server conversation id, zero until the first reply names it.
	ID        int64                `json:"id"`
	StartedAt time.Time            `json:"started_at"`
	Context   mention.Filter       `json:"context"`
	Messages  []transcript.Message `json:"messages"`
}

// NewConversation creates a new, unsaved conversation
func NewConversation() *Conversation {
	return &Conversation{
		StartedAt: time.Now(),
		Messages:  make([]transcript.Message, 0),
	}
}

// AddUserMessage appends a locally created user message and returns it
func (c *Conversation) AddUserMessage(content string) transcript.Message {
	now := time.Now()
	msg := transcript.Message{
		ID:        newMessageID(),
		Role:      transcript.RoleUser,
		Content:   content,
		CreatedAt: &now,
	}
	c.Messages = append(c.Messages, msg)
	return msg
}

// AddAssistantMessage appends a finished assistant turn
func (c *Conversation) AddAssistantMessage(msg transcript.Message) {
	c.Messages = append(c.Messages, msg)
}

// Snapshot returns a copy of the messages safe to hand to other goroutines
func (c *Conversation) Snapshot() []transcript.Message {
	out := make([]transcript.Message, len(c.Messages))
	for i, m := range c.Messages {
		m.Blocks = append([]transcript.Block(nil), m.Blocks...)
		out[i] = m
	}
	return out
}

// ToJSON serializes the conversation to JSON
func (c *Conversation) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

func newMessageID() string {
	return uuid.NewString()
}
