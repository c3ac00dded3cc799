package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/dagent/internal/api"
	"github.com/yolodolo42/dagent/internal/auth"
	"github.com/yolodolo42/dagent/internal/cache"
	"github.com/yolodolo42/dagent/internal/config"
	"github.com/yolodolo42/dagent/internal/testutil"
	"github.com/yolodolo42/dagent/internal/transcript"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"code": 0, "message": "ok", "data": data})
}

func newTestApp(t *testing.T, h http.Handler) *app {
	t.Helper()
	dir := testutil.TempDir(t)
	testutil.SetEnv(t, "HOME", dir)
	testutil.UnsetEnv(t, auth.EnvAccessToken)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Server:       srv.URL + "/api",
		Timeout:      5 * time.Second,
		DataDir:      dir,
		CacheEnabled: true,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr, err := auth.NewManager(dir)
	require.NoError(t, err)
	client, err := api.New(cfg.Server, api.WithTokens(mgr), api.WithLogger(logger))
	require.NoError(t, err)
	store, err := cache.Open(cfg.CachePath())
	require.NoError(t, err)

	a := &app{cfg: cfg, log: logger, auth: mgr, client: client, cache: store}
	t.Cleanup(a.Close)
	return a
}

func signIn(t *testing.T, a *app) string {
	t.Helper()
	token := testutil.JWT(t, map[string]any{
		"loginId":  7,
		"username": "ada",
		"email":    "ada@example.com",
		"eff":      time.Now().Add(time.Hour).UnixMilli(),
	})
	require.NoError(t, a.auth.SetTokens(token, "refresh"))
	return token
}

// execute runs cmd with fn bound to a in place of the real app setup. A
// nil fn keeps the command's own RunE.
func execute(t *testing.T, cmd *cobra.Command, a *app, fn func(*cobra.Command, []string, *app) error, stdin string, args ...string) (string, error) {
	t.Helper()
	if fn != nil {
		cmd.RunE = func(c *cobra.Command, args []string) error { return fn(c, args, a) }
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// executeSub runs the named child of parent through parent, so persistent
// flags and parsing behave as on the command line.
func executeSub(t *testing.T, parent *cobra.Command, name string, a *app, fn func(*cobra.Command, []string, *app) error, stdin string, args ...string) (string, error) {
	t.Helper()
	var child *cobra.Command
	for _, c := range parent.Commands() {
		if c.Name() == name {
			child = c
		}
	}
	require.NotNil(t, child, "no %s subcommand", name)
	child.RunE = func(c *cobra.Command, args []string) error { return fn(c, args, a) }
	return execute(t, parent, a, nil, stdin, append([]string{name}, args...)...)
}

func TestLoginCommand(t *testing.T) {
	token := ""
	var got api.LoginRequest
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.Password != "hunter22" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"code": 40000, "message": "wrong email or password"})
			return
		}
		ok(w, map[string]string{"accessToken": token, "refreshToken": "r1"})
	}))
	token = testutil.JWT(t, map[string]any{"username": "ada", "email": "ada@example.com"})

	t.Run("prompts for password and stores the session", func(t *testing.T) {
		out, err := execute(t, newLoginCmd(), a, runLogin, "hunter22\n", "--email", "ada@example.com")
		require.NoError(t, err)
		assert.Contains(t, out, "Signed in as ada")
		assert.True(t, got.RememberMe)
		access, refresh := a.auth.Tokens()
		assert.Equal(t, token, access)
		assert.Equal(t, "r1", refresh)
		assert.Equal(t, a.cfg.Server, a.auth.Store().Server())
	})

	t.Run("prompts for email", func(t *testing.T) {
		_, err := execute(t, newLoginCmd(), a, runLogin, "ada@example.com\nhunter22\n", "--remember=false")
		require.NoError(t, err)
		assert.False(t, got.RememberMe)
		assert.False(t, a.auth.Store().Remember())
	})

	t.Run("rejects an invalid email before calling the server", func(t *testing.T) {
		got = api.LoginRequest{}
		_, err := execute(t, newLoginCmd(), a, runLogin, "x\n", "--email", "not-an-email")
		require.Error(t, err)
		assert.Empty(t, got.Email)
	})

	t.Run("reports server errors", func(t *testing.T) {
		_, err := execute(t, newLoginCmd(), a, runLogin, "wrong\n", "--email", "ada@example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wrong email or password")
	})

	t.Run("unknown oauth provider", func(t *testing.T) {
		_, err := execute(t, newLoginCmd(), a, runLogin, "", "--oauth", "myspace")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
	})
}

func TestLogoutCommand(t *testing.T) {
	calls := 0
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/auth/logout", r.URL.Path)
		ok(w, true)
	}))
	signIn(t, a)
	require.NoError(t, a.cache.PutConversation(context.Background(), api.Conversation{ID: 1, Title: "cached"}))

	out, err := execute(t, newLogoutCmd(), a, runLogout, "")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")
	assert.Equal(t, 1, calls)
	assert.False(t, a.auth.LoggedIn())

	convs, err := a.cache.Conversations(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestRegisterCommand(t *testing.T) {
	var got api.RegisterRequest
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		ok(w, true)
	}))

	t.Run("creates the account", func(t *testing.T) {
		out, err := execute(t, newRegisterCmd(), a, runRegister, "ada\nada@example.com\nsecret123\nsecret123\n")
		require.NoError(t, err)
		assert.Contains(t, out, "Account created")
		assert.Equal(t, api.RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "secret123"}, got)
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := execute(t, newRegisterCmd(), a, runRegister, "short\n", "--username", "ada", "--email", "ada@example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 8 characters")
	})

	t.Run("mismatched confirmation", func(t *testing.T) {
		_, err := execute(t, newRegisterCmd(), a, runRegister, "secret123\nsecret124\n", "--username", "ada", "--email", "ada@example.com")
		require.EqualError(t, err, "passwords do not match")
	})
}

func TestResetPasswordCommand(t *testing.T) {
	var got api.ResetPasswordRequest
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/reset-password", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		ok(w, true)
	}))
	signIn(t, a)

	t.Run("same password is rejected", func(t *testing.T) {
		_, err := execute(t, newResetPasswordCmd(), a, runResetPassword, "secret123\nsecret123\nsecret123\n")
		require.Error(t, err)
		assert.Empty(t, got.Email)
	})

	t.Run("changes the password and clears the session", func(t *testing.T) {
		out, err := execute(t, newResetPasswordCmd(), a, runResetPassword, "secret123\nsecret456\nsecret456\n")
		require.NoError(t, err)
		assert.Contains(t, out, "Password changed")
		assert.Equal(t, "ada@example.com", got.Email)
		assert.Equal(t, "secret456", got.NewPassword)
		assert.False(t, a.auth.LoggedIn())
	})
}

func TestWhoamiCommand(t *testing.T) {
	a := newTestApp(t, http.NotFoundHandler())

	_, err := execute(t, newWhoamiCmd(), a, runWhoami, "")
	require.ErrorIs(t, err, auth.ErrNotLoggedIn)

	signIn(t, a)
	out, err := execute(t, newWhoamiCmd(), a, runWhoami, "")
	require.NoError(t, err)
	assert.Contains(t, out, "Username: ada")
	assert.Contains(t, out, "Email:    ada@example.com")
	assert.Contains(t, out, "User ID:  7")
	assert.Contains(t, out, a.cfg.Server)
}

func historyServer(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("current"))
		ok(w, map[string]any{
			"records": []map[string]any{
				{"id": 12, "title": "Orders by month", "updatedAt": "2026-10-01T10:00:00"},
				{"id": 11, "title": "", "updatedAt": "2026-09-30T09:00:00"},
			},
			"total": 22, "size": 10, "current": 2, "pages": 3,
		})
	})
	mux.HandleFunc("GET /api/conversations/12", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"id": 12, "title": "Orders by month"})
	})
	mux.HandleFunc("GET /api/conversations/12/messages", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []map[string]any{
			{"id": 1, "role": "user", "content": "orders by month?"},
			{"id": 2, "role": "assistant", "content": "", "blocks": []map[string]any{
				{"type": "TOOL_CALL", "data": `{"toolName":"runSql","arguments":"{}"}`},
			}},
			{"id": 3, "role": "assistant", "content": "", "blocks": []map[string]any{
				{"type": "TOOL_RESULT", "data": `{"toolName":"runSql","result":"ok"}`},
			}},
			{"id": 4, "role": "assistant", "content": "Here they are."},
		})
	})
	mux.HandleFunc("POST /api/conversations/12", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"id": 12, "title": "Monthly orders"})
	})
	mux.HandleFunc("DELETE /api/conversations/12", func(w http.ResponseWriter, r *http.Request) {
		ok(w, true)
	})
	return mux
}

func TestHistoryCommands(t *testing.T) {
	a := newTestApp(t, historyServer(t))

	t.Run("requires login", func(t *testing.T) {
		_, err := executeSub(t, newHistoryCmd(), "list", a, runHistoryList, "")
		require.ErrorIs(t, err, auth.ErrNotLoggedIn)
	})

	signIn(t, a)

	t.Run("list", func(t *testing.T) {
		out, err := executeSub(t, newHistoryCmd(), "list", a, runHistoryList, "", "--page", "2", "--size", "10")
		require.NoError(t, err)
		assert.Contains(t, out, "Orders by month")
		assert.Contains(t, out, "(untitled)")
		assert.Contains(t, out, "Page 2 of 3")

		cached, err := a.cache.Conversations(context.Background(), 10)
		require.NoError(t, err)
		assert.Len(t, cached, 2)
	})

	t.Run("show raw reconciles split tool records", func(t *testing.T) {
		out, err := executeSub(t, newHistoryCmd(), "show", a, runHistoryShow, "", "12", "--raw")
		require.NoError(t, err)

		var msgs []transcript.Message
		require.NoError(t, json.Unmarshal([]byte(out), &msgs))
		require.Len(t, msgs, 3)
		assert.Len(t, msgs[1].Blocks, 2)
	})

	t.Run("show offline reads the cache", func(t *testing.T) {
		out, err := executeSub(t, newHistoryCmd(), "show", a, runHistoryShow, "", "12", "--offline")
		require.NoError(t, err)
		assert.Contains(t, out, "#12 Orders by month")
		assert.Contains(t, out, "runSql")
		assert.Contains(t, out, "Here they are.")
	})

	t.Run("show offline for an uncached conversation", func(t *testing.T) {
		_, err := executeSub(t, newHistoryCmd(), "show", a, runHistoryShow, "", "99", "--offline")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not cached")
	})

	t.Run("rename", func(t *testing.T) {
		out, err := executeSub(t, newHistoryCmd(), "rename", a, runHistoryRename, "", "12", "Monthly", "orders")
		require.NoError(t, err)
		assert.Contains(t, out, `"Monthly orders"`)
		c, err := a.cache.Conversation(context.Background(), 12)
		require.NoError(t, err)
		assert.Equal(t, "Monthly orders", c.Title)
	})

	t.Run("delete asks first", func(t *testing.T) {
		out, err := executeSub(t, newHistoryCmd(), "delete", a, runHistoryDelete, "n\n", "12")
		require.NoError(t, err)
		assert.Contains(t, out, "Cancelled.")
		_, err = a.cache.Conversation(context.Background(), 12)
		require.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		out, err := executeSub(t, newHistoryCmd(), "delete", a, runHistoryDelete, "", "12", "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted #12")
		_, err = a.cache.Conversation(context.Background(), 12)
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("bad id", func(t *testing.T) {
		_, err := executeSub(t, newHistoryCmd(), "show", a, runHistoryShow, "", "abc")
		require.Error(t, err)
	})
}

func TestDBCommands(t *testing.T) {
	var imported string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/connections", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []map[string]any{{"id": 3, "name": "prod"}})
	})
	mux.HandleFunc("GET /api/connections/3/databases", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []string{"shop", "crm"})
	})
	mux.HandleFunc("GET /api/database/export", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("connectionId"))
		ok(w, "CREATE TABLE orders (id int);\n")
	})
	mux.HandleFunc("GET /api/database/export-tables", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []string{"CREATE TABLE orders (id int);", "CREATE TABLE users (id int);"})
	})
	mux.HandleFunc("POST /api/database/import", func(w http.ResponseWriter, r *http.Request) {
		imported = r.URL.Query().Get("sqlScript")
		ok(w, nil)
	})
	mux.HandleFunc("POST /api/database/import/file", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		imported = hdr.Filename + ":" + string(data)
		ok(w, nil)
	})
	a := newTestApp(t, mux)
	signIn(t, a)

	t.Run("ls connections", func(t *testing.T) {
		out, err := executeSub(t, newDBCmd(), "ls", a, runDBList, "")
		require.NoError(t, err)
		assert.Contains(t, out, "prod")
	})

	t.Run("ls databases", func(t *testing.T) {
		out, err := executeSub(t, newDBCmd(), "ls", a, runDBList, "", "-c", "3")
		require.NoError(t, err)
		assert.Equal(t, "shop\ncrm\n", out)
	})

	t.Run("export to stdout", func(t *testing.T) {
		out, err := executeSub(t, newDBCmd(), "export", a, runDBExport, "", "-c", "3", "-d", "shop")
		require.NoError(t, err)
		assert.Equal(t, "CREATE TABLE orders (id int);\n", out)
	})

	t.Run("export to file", func(t *testing.T) {
		path := filepath.Join(a.cfg.DataDir, "shop.sql")
		_, err := executeSub(t, newDBCmd(), "export", a, runDBExport, "", "-c", "3", "-d", "shop", "-o", path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "CREATE TABLE orders (id int);\n", string(data))
	})

	t.Run("tables", func(t *testing.T) {
		out, err := executeSub(t, newDBCmd(), "tables", a, runDBTables, "", "-c", "3", "-d", "shop")
		require.NoError(t, err)
		assert.Contains(t, out, "CREATE TABLE users")
	})

	t.Run("import inline", func(t *testing.T) {
		_, err := executeSub(t, newDBCmd(), "import", a, runDBImport, "", "-c", "3", "--sql", "DELETE FROM tmp;")
		require.NoError(t, err)
		assert.Equal(t, "DELETE FROM tmp;", imported)
	})

	t.Run("import stdin", func(t *testing.T) {
		_, err := executeSub(t, newDBCmd(), "import", a, runDBImport, "INSERT INTO t VALUES (1);", "-c", "3", "-")
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO t VALUES (1);", imported)
	})

	t.Run("import file", func(t *testing.T) {
		path := filepath.Join(a.cfg.DataDir, "seed.sql")
		require.NoError(t, os.WriteFile(path, []byte("SELECT 1;"), 0600))
		_, err := executeSub(t, newDBCmd(), "import", a, runDBImport, "", "-c", "3", path)
		require.NoError(t, err)
		assert.Equal(t, "seed.sql:SELECT 1;", imported)
	})

	t.Run("connection is required", func(t *testing.T) {
		_, err := executeSub(t, newDBCmd(), "tables", a, runDBTables, "", "-d", "shop")
		require.Error(t, err)
	})
}
