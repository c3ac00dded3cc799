package transcript

// Reconcile regroups messages returned by the history API so that a tool
// call and its result, persisted as two assistant records, render as the
// single message a live stream would have produced.
//
// An assistant message with an unpaired TOOL_CALL absorbs the immediately
// following assistant message when every block of that message is a
// TOOL_RESULT. The merged message keeps the first message's ID and at
// most one message is absorbed per position. The input is not modified.
func Reconcile(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		if msg.Role != RoleAssistant || !msg.HasBlocks() {
			out = append(out, msg)
			continue
		}

		if hasUnpairedToolCall(msg.Blocks) && i+1 < len(messages) && onlyToolResults(messages[i+1]) {
			next := messages[i+1]
			merged := msg
			merged.Blocks = make([]Block, 0, len(msg.Blocks)+len(next.Blocks))
			merged.Blocks = append(merged.Blocks, msg.Blocks...)
			merged.Blocks = append(merged.Blocks, next.Blocks...)
			if merged.Content == "" {
				merged.Content = next.Content
			}
			out = append(out, merged)
			i++
			continue
		}
		out = append(out, msg)
	}
	return out
}

// hasUnpairedToolCall reports whether some TOOL_CALL is not directly
// followed by a TOOL_RESULT, including a trailing TOOL_CALL.
func hasUnpairedToolCall(blocks []Block) bool {
	for i, blk := range blocks {
		if blk.Kind != BlockToolCall {
			continue
		}
		if i+1 >= len(blocks) || blocks[i+1].Kind != BlockToolResult {
			return true
		}
	}
	return false
}

func onlyToolResults(msg Message) bool {
	if msg.Role != RoleAssistant || !msg.HasBlocks() {
		return false
	}
	for _, blk := range msg.Blocks {
		if blk.Kind != BlockToolResult {
			return false
		}
	}
	return true
}
