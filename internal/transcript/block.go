package transcript

import (
	"bytes"
	"encoding/json"
)

// BlockKind is the type tag the backend puts on every streamed block.
type BlockKind string

const (
	BlockText       BlockKind = "TEXT"
	BlockThought    BlockKind = "THOUGHT"
	BlockToolCall   BlockKind = "TOOL_CALL"
	BlockToolResult BlockKind = "TOOL_RESULT"
)

// Block is one unit of agent output. Kinds other than the four above are
// kept as-is and treated as text by the segmenter.
type Block struct {
	Kind           BlockKind `json:"type,omitempty"`
	Data           string    `json:"data,omitempty"`
	ConversationID int64     `json:"conversationId,omitempty"`
	Done           bool      `json:"done,omitempty"`
}

// IsContent reports whether the block's payload counts toward a message's
// flattened content.
func (b Block) IsContent() bool {
	return b.Kind == BlockText || b.Kind == BlockThought
}

// ToolCallPayload is the decoded data of a TOOL_CALL block.
type ToolCallPayload struct {
	ToolName  string `json:"toolName"`
	Arguments string `json:"arguments"`
}

// ToolResultPayload is the decoded data of a TOOL_RESULT block.
type ToolResultPayload struct {
	ToolName string `json:"toolName"`
	Result   string `json:"result"`
}

// DecodeToolCall parses a TOOL_CALL payload. It returns false when the data
// is empty, is not a JSON object, or has a missing or null toolName. Fields
// that are not strings are kept as their raw JSON text.
func DecodeToolCall(b Block) (ToolCallPayload, bool) {
	var raw struct {
		ToolName  json.RawMessage `json:"toolName"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if !decodePayload(b.Data, &raw) || isNull(raw.ToolName) {
		return ToolCallPayload{}, false
	}
	return ToolCallPayload{ToolName: rawText(raw.ToolName), Arguments: rawText(raw.Arguments)}, true
}

// DecodeToolResult parses a TOOL_RESULT payload with the same rules as
// DecodeToolCall.
func DecodeToolResult(b Block) (ToolResultPayload, bool) {
	var raw struct {
		ToolName json.RawMessage `json:"toolName"`
		Result   json.RawMessage `json:"result"`
	}
	if !decodePayload(b.Data, &raw) || isNull(raw.ToolName) {
		return ToolResultPayload{}, false
	}
	return ToolResultPayload{ToolName: rawText(raw.ToolName), Result: rawText(raw.Result)}, true
}

func decodePayload(data string, v any) bool {
	if data == "" {
		return false
	}
	return json.Unmarshal([]byte(data), v) == nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// rawText returns a JSON string's value, "" for a missing or null field and
// the compact JSON text of anything else.
func rawText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var buf bytes.Buffer
	if json.Compact(&buf, raw) == nil {
		return buf.String()
	}
	return string(raw)
}

// EncodeToolCall builds a TOOL_CALL block. Used by tests and by fixtures
// that replay recorded sessions.
func EncodeToolCall(toolName, arguments string) Block {
	b, _ := json.Marshal(ToolCallPayload{ToolName: toolName, Arguments: arguments})
	return Block{Kind: BlockToolCall, Data: string(b)}
}

// EncodeToolResult builds a TOOL_RESULT block.
func EncodeToolResult(toolName, result string) Block {
	b, _ := json.Marshal(ToolResultPayload{ToolName: toolName, Result: result})
	return Block{Kind: BlockToolResult, Data: string(b)}
}
