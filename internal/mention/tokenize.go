// Package mention implements the @mention rules shared by the chat input
// and the transcript: tokenizing text into plain and mention runs,
// detecting an open trigger at the cursor, and the drill-down session that
// resolves a mention to a connection/database/schema/table path.
package mention

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind distinguishes plain text from a mention.
type TokenKind int

const (
	Plain TokenKind = iota
	Mention
)

// Token is one run of text. Concatenating the Text of all tokens returned
// by Tokenize reproduces the input.
type Token struct {
	Kind TokenKind
	Text string
}

// Tokenize splits text into alternating plain and mention tokens. A mention
// starts at '@' and runs to the next whitespace or the end of the text; it
// needs at least one non-whitespace character after the '@'.
func Tokenize(text string) []Token {
	var tokens []Token
	plainStart := 0

	for i := 0; i < len(text); {
		if text[i] != '@' {
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
			continue
		}
		end := i + 1 + nonSpaceRun(text[i+1:])
		if end == i+1 {
			i++
			continue
		}
		if plainStart < i {
			tokens = append(tokens, Token{Kind: Plain, Text: text[plainStart:i]})
		}
		tokens = append(tokens, Token{Kind: Mention, Text: text[i:end]})
		i = end
		plainStart = end
	}
	if plainStart < len(text) {
		tokens = append(tokens, Token{Kind: Plain, Text: text[plainStart:]})
	}
	return tokens
}

// IsMention reports whether s as a whole is a single mention token.
func IsMention(s string) bool {
	return len(s) > 1 && s[0] == '@' && nonSpaceRun(s[1:]) == len(s)-1
}

// TriggerAt reports whether the text before cursor (a byte offset) ends in
// an open mention trigger. The trigger is the last '@' before the cursor,
// and it only counts when it starts the text or follows whitespace and
// nothing between it and the cursor is whitespace. start is the offset of
// the '@' and query is the text typed after it.
func TriggerAt(text string, cursor int) (start int, query string, ok bool) {
	if cursor < 0 || cursor > len(text) {
		cursor = len(text)
	}
	before := text[:cursor]
	at := strings.LastIndexByte(before, '@')
	if at < 0 {
		return -1, "", false
	}
	if at > 0 {
		r, _ := utf8.DecodeLastRuneInString(before[:at])
		if !unicode.IsSpace(r) {
			return -1, "", false
		}
	}
	query = before[at+1:]
	if strings.IndexFunc(query, unicode.IsSpace) >= 0 {
		return -1, "", false
	}
	return at, query, true
}

// ShortName returns the last path segment of a mention token or path,
// without the leading '@'.
func ShortName(token string) string {
	path := strings.TrimPrefix(token, "@")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ShortNames collects the short names of every mention in text.
func ShortNames(text string) map[string]struct{} {
	names := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		if tok.Kind == Mention {
			names[ShortName(tok.Text)] = struct{}{}
		}
	}
	return names
}

// nonSpaceRun returns the byte length of the leading run of non-whitespace
// characters in s.
func nonSpaceRun(s string) int {
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return i
	}
	return len(s)
}
