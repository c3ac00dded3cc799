package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/yolodolo42/dagent/internal/mention"
)

// Connection is a saved database connection.
type Connection struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	DbType string `json:"dbType,omitempty"`
	Host   string `json:"host,omitempty"`
}

// MentionProvider serves mention candidates from the backend's connection
// browser endpoints.
type MentionProvider struct {
	client *Client
}

// NewMentionProvider returns a mention.Provider backed by c.
func NewMentionProvider(c *Client) *MentionProvider {
	return &MentionProvider{client: c}
}

var _ mention.Provider = (*MentionProvider)(nil)

// Candidates lists the items of level under filter.
func (p *MentionProvider) Candidates(ctx context.Context, level mention.Level, filter mention.Filter) ([]mention.Item, error) {
	switch level {
	case mention.Connection:
		var conns []Connection
		if err := p.client.doJSON(ctx, request{method: http.MethodGet, path: "/connections"}, &conns); err != nil {
			return nil, fmt.Errorf("failed to list connections: %w", err)
		}
		items := make([]mention.Item, 0, len(conns))
		for _, conn := range conns {
			label := conn.Name
			if label == "" {
				label = strconv.FormatInt(conn.ID, 10)
			}
			items = append(items, mention.Item{
				ID:      strconv.FormatInt(conn.ID, 10),
				Label:   label,
				Payload: mention.Filter{ConnectionID: conn.ID},
			})
		}
		return items, nil

	case mention.Database:
		names, err := p.names(ctx, connectionPath(filter)+"/databases")
		if err != nil {
			return nil, fmt.Errorf("failed to list databases: %w", err)
		}
		return namedItems(names, func(name string) mention.Filter {
			return mention.Filter{ConnectionID: filter.ConnectionID, DatabaseName: name}
		}), nil

	case mention.Schema:
		names, err := p.names(ctx, databasePath(filter)+"/schemas")
		if err != nil {
			return nil, fmt.Errorf("failed to list schemas: %w", err)
		}
		return namedItems(names, func(name string) mention.Filter {
			return mention.Filter{ConnectionID: filter.ConnectionID, DatabaseName: filter.DatabaseName, SchemaName: name}
		}), nil

	case mention.Table:
		names, err := p.names(ctx, databasePath(filter)+"/schemas/"+filter.SchemaName+"/tables")
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		return namedItems(names, func(string) mention.Filter { return filter }), nil
	}
	return nil, fmt.Errorf("no candidates for level %s", level)
}

func (p *MentionProvider) names(ctx context.Context, path string) ([]string, error) {
	var names []string
	if err := p.client.doJSON(ctx, request{method: http.MethodGet, path: path}, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func namedItems(names []string, payload func(string) mention.Filter) []mention.Item {
	items := make([]mention.Item, 0, len(names))
	for _, name := range names {
		items = append(items, mention.Item{ID: name, Label: name, Payload: payload(name)})
	}
	return items
}

func connectionPath(f mention.Filter) string {
	return "/connections/" + strconv.FormatInt(f.ConnectionID, 10)
}

func databasePath(f mention.Filter) string {
	return connectionPath(f) + "/databases/" + f.DatabaseName
}
