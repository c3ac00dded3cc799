package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yolodolo42/dagent/internal/transcript"
)

// maxEventSize bounds a single server-sent event line.
const maxEventSize = 4 << 20

// ChatRequest starts or continues a conversation. ConnectionID,
// DatabaseName and SchemaName carry the context of the last mention.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversationId,omitempty"`
	ConnectionID   int64  `json:"connectionId,omitempty"`
	DatabaseName   string `json:"databaseName,omitempty"`
	SchemaName     string `json:"schemaName,omitempty"`
	Model          string `json:"model,omitempty"`
}

// Chat posts req and calls onBlock for every block of the streamed reply,
// in arrival order, until the done block or the end of the stream.
// Returning an error from onBlock stops reading and is returned.
func (c *Client) Chat(ctx context.Context, req ChatRequest, onBlock func(transcript.Block) error) error {
	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/chat/stream", body: req, stream: true})
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), maxEventSize)

	var data strings.Builder
	dispatch := func() (bool, error) {
		if data.Len() == 0 {
			return false, nil
		}
		payload := data.String()
		data.Reset()

		var blk transcript.Block
		if err := json.Unmarshal([]byte(payload), &blk); err != nil {
			c.log.Warn("skipping undecodable chat event", "error", err)
			return false, nil
		}
		if err := onBlock(blk); err != nil {
			return true, err
		}
		return blk.Done, nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if stop, err := dispatch(); stop || err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry: and comments carry nothing we use.
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("chat stream interrupted: %w", err)
	}
	_, err = dispatch()
	return err
}
