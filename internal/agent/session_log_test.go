package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionLogger_WritesJSONLAndPermissions(t *testing.T) {
	dir := t.TempDir()
	l, err := newSessionLogger(dir, "test-session")
	require.NoError(t, err)
	t.Cleanup(l.Close)

	l.logRecord(sessionRecord{TS: nowTS(), Type: "user", Content: "hi"})
	l.logRecord(sessionRecord{TS: nowTS(), Type: "block", Kind: "TOOL_CALL", ToolName: "runSql", Args: RedactJSONArgs(`{"password":"pw"}`)})

	path := filepath.Join(dir, "sessions", "test-session.jsonl")
	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"type":"user"`)
	require.Contains(t, string(b), `"kind":"TOOL_CALL"`)
	require.Contains(t, string(b), `***REDACTED***`)
}

func TestSessionLogger_NilIsNoop(t *testing.T) {
	var l *sessionLogger
	l.logRecord(sessionRecord{Type: "user"})
	l.Close()

	_, err := newSessionLogger("", "x")
	require.Error(t, err)
}
