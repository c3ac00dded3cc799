package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Export(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("connectionId"))
		assert.Equal(t, "sales db", r.URL.Query().Get("databaseName"))
		switch r.URL.Path {
		case "/api/database/export":
			writeJSON(w, http.StatusOK, map[string]any{"code": 0, "data": "CREATE TABLE t (id int);"})
		case "/api/database/export-tables":
			writeJSON(w, http.StatusOK, []string{"orders", "users"})
		default:
			http.NotFound(w, r)
		}
	}))

	script, err := c.ExportDatabase(context.Background(), 7, "sales db")
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t (id int);", script)

	tables, err := c.ExportTables(context.Background(), 7, "sales db")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)
}

func TestClient_ImportSQL(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/database/import", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "3", r.URL.Query().Get("connectionId"))
		assert.Equal(t, "DROP TABLE x;", r.URL.Query().Get("sqlScript"))
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.ImportSQL(context.Background(), 3, "DROP TABLE x;"))
}

func TestClient_ImportFile(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh":
			writeJSON(w, http.StatusOK, TokenPair{AccessToken: "new", RefreshToken: "r2"})
			return
		case "/api/database/import/file":
		default:
			http.NotFound(w, r)
			return
		}

		// First attempt is rejected so the body has to be sent twice.
		if calls.Add(1) == 1 {
			notLoggedIn(w)
			return
		}

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "9", r.FormValue("connectionId"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		body, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "dump.sql", hdr.Filename)
		assert.Equal(t, "INSERT INTO t VALUES (1);", string(body))
		w.WriteHeader(http.StatusOK)
	}))
	require.NoError(t, c.Tokens().SetTokens("old", "r1"))

	err := c.ImportFile(context.Background(), 9, "dump.sql", strings.NewReader("INSERT INTO t VALUES (1);"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
