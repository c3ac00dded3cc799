package mention

import (
	"unicode"
	"unicode/utf8"
)

// Edit is a replacement of text[Start:End] with Text.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Apply returns s with the edit applied.
func (e Edit) Apply(s string) string {
	return s[:e.Start] + e.Text + s[e.End:]
}

// Cursor is the byte offset just after the inserted text.
func (e Edit) Cursor() int {
	return e.Start + len(e.Text)
}

// Splice computes how to insert a confirmed mention into draft at cursor.
//
// When the cursor sits in an open trigger the whole "@query" token is
// replaced; otherwise the mention is inserted at the cursor, separated from
// a preceding word by a space. The short form @Short is used unless a
// mention earlier in the draft already has that short name, in which case
// the fully qualified path is inserted.
func Splice(draft string, cursor int, c Confirmation) Edit {
	if cursor < 0 || cursor > len(draft) {
		cursor = len(draft)
	}

	start, end := cursor, cursor
	prefix := ""
	if at, _, ok := TriggerAt(draft, cursor); ok {
		start = at
		end = cursor + nonSpaceRun(draft[cursor:])
	} else if cursor > 0 {
		if r, _ := utf8.DecodeLastRuneInString(draft[:cursor]); !unicode.IsSpace(r) {
			prefix = " "
		}
	}

	display := "@" + c.Short
	if _, dup := ShortNames(draft[:start])[c.Short]; dup {
		display = c.Full
	}
	return Edit{Start: start, End: end, Text: prefix + display}
}
