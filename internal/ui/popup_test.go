package ui

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/dagent/internal/mention"
)

type listProvider struct {
	items []mention.Item
	err   error
}

func (p listProvider) Candidates(context.Context, mention.Level, mention.Filter) ([]mention.Item, error) {
	return p.items, p.err
}

func openSession(t *testing.T, p mention.Provider) *mention.Session {
	t.Helper()
	s := mention.NewSession()
	req := s.Open()
	require.NotNil(t, req)
	s.Apply(mention.Load(context.Background(), p, *req))
	return s
}

func TestMentionPopup(t *testing.T) {
	t.Run("closed session renders nothing", func(t *testing.T) {
		assert.Empty(t, MentionPopup(mention.NewSession(), 40, "."))
		assert.Empty(t, MentionPopup(nil, 40, "."))
	})

	t.Run("loading", func(t *testing.T) {
		s := mention.NewSession()
		s.Open()
		out := MentionPopup(s, 40, "*")
		assert.Contains(t, out, "Connections")
		assert.Contains(t, out, "* Loading...")
	})

	t.Run("candidates with highlight", func(t *testing.T) {
		s := openSession(t, listProvider{items: []mention.Item{
			{ID: "1", Label: "prod"},
			{ID: "2", Label: "staging"},
		}})
		out := MentionPopup(s, 40, ".")
		assert.Contains(t, out, SymbolArrow+" prod")
		assert.Contains(t, out, "staging")
	})

	t.Run("long lists scroll with the highlight", func(t *testing.T) {
		items := make([]mention.Item, 20)
		for i := range items {
			items[i] = mention.Item{ID: fmt.Sprint(i), Label: fmt.Sprintf("conn-%02d", i)}
		}
		s := openSession(t, listProvider{items: items})
		s.SetHighlighted(15)

		out := MentionPopup(s, 40, ".")
		assert.Contains(t, out, "conn-15")
		assert.NotContains(t, out, "conn-00")
		assert.Contains(t, out, "4 more")
	})

	t.Run("error", func(t *testing.T) {
		s := openSession(t, listProvider{err: errors.New("connection refused")})
		out := MentionPopup(s, 40, ".")
		assert.Contains(t, out, "connection refused")
		assert.Contains(t, out, "retry")
	})

	t.Run("empty", func(t *testing.T) {
		s := openSession(t, listProvider{})
		assert.Contains(t, MentionPopup(s, 40, "."), "No results")
	})
}

func TestHighlightMentions(t *testing.T) {
	in := "join @orders with @db/users please"
	assert.Equal(t, in, ansi.Strip(HighlightMentions(in)))
}
