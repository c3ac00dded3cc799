package transcript

import "strings"

// SegmentKind identifies the variant held by a Segment.
type SegmentKind string

const (
	SegmentText    SegmentKind = "TEXT"
	SegmentThought SegmentKind = "THOUGHT"
	SegmentToolRun SegmentKind = "TOOL_RUN"
)

// Segment is one renderable unit assembled from one or more blocks.
// Text and Thought segments use Data; ToolRun segments use ToolName,
// Parameters and Response, either of which may be empty when the
// counterpart block was missing or did not match.
type Segment struct {
	Kind       SegmentKind `json:"kind"`
	Data       string      `json:"data,omitempty"`
	ToolName   string      `json:"toolName,omitempty"`
	Parameters string      `json:"parameters,omitempty"`
	Response   string      `json:"response,omitempty"`
}

func TextSegment(s string) Segment { return Segment{Kind: SegmentText, Data: s} }
func ThoughtSegment(s string) Segment { return Segment{Kind: SegmentThought, Data: s} }

func ToolRunSegment(toolName, parameters, response string) Segment {
	return Segment{Kind: SegmentToolRun, ToolName: toolName, Parameters: parameters, Response: response}
}

// Segments converts the ordered blocks of one assistant turn into segments.
// Adjacent text is merged, every thought stays its own segment, and a
// TOOL_CALL is paired with an immediately following TOOL_RESULT only when
// both decode and name the same tool. Block order is never changed.
func Segments(blocks []Block) []Segment {
	segments := make([]Segment, 0, len(blocks))
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			segments = append(segments, TextSegment(text.String()))
			text.Reset()
		}
	}

	for i := 0; i < len(blocks); i++ {
		blk := blocks[i]
		switch blk.Kind {
		case BlockText:
			text.WriteString(blk.Data)

		case BlockThought:
			flush()
			segments = append(segments, ThoughtSegment(blk.Data))

		case BlockToolCall:
			flush()
			call, callOK := DecodeToolCall(blk)
			if i+1 < len(blocks) && blocks[i+1].Kind == BlockToolResult {
				result, resultOK := DecodeToolResult(blocks[i+1])
				if callOK && resultOK && call.ToolName == result.ToolName {
					segments = append(segments, ToolRunSegment(call.ToolName, call.Arguments, result.Result))
					i++
					continue
				}
			}
			segments = append(segments, ToolRunSegment(call.ToolName, call.Arguments, ""))

		case BlockToolResult:
			flush()
			result, _ := DecodeToolResult(blk)
			segments = append(segments, ToolRunSegment(result.ToolName, "", result.Result))

		default:
			text.WriteString(blk.Data)
		}
	}
	flush()
	return segments
}
