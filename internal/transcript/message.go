package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message as shown in the transcript. When Blocks is
// non-empty it is authoritative for rendering and Content is only the
// flattened TEXT/THOUGHT text.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Blocks    []Block    `json:"blocks,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// HasBlocks reports whether the message should be rendered from its blocks.
func (m Message) HasBlocks() bool {
	return len(m.Blocks) > 0
}

// FlattenContent concatenates the TEXT and THOUGHT payloads of blocks.
func FlattenContent(blocks []Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		if blk.IsContent() {
			b.WriteString(blk.Data)
		}
	}
	return b.String()
}

// timestamp layouts accepted from the history API; the server serializes
// LocalDateTime without a zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON accepts numeric ids and zone-less timestamps as produced by
// the history endpoint. A malformed createdAt is dropped rather than
// failing the whole message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Role      Role            `json:"role"`
		Content   *string         `json:"content"`
		Blocks    []Block         `json:"blocks"`
		CreatedAt string          `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Message{Role: raw.Role, Blocks: raw.Blocks}
	m.ID = rawID(raw.ID)
	if raw.Content != nil {
		m.Content = *raw.Content
	}
	if raw.CreatedAt != "" {
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, raw.CreatedAt); err == nil {
				m.CreatedAt = &ts
				break
			}
		}
	}
	return nil
}

func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
