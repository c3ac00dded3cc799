package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// ExportDatabase returns a SQL script that recreates databaseName.
func (c *Client) ExportDatabase(ctx context.Context, connectionID int64, databaseName string) (string, error) {
	var script string
	err := c.doJSON(ctx, request{method: http.MethodGet, path: "/database/export", query: transferQuery(connectionID, databaseName)}, &script)
	if err != nil {
		return "", fmt.Errorf("failed to export %s: %w", databaseName, err)
	}
	return script, nil
}

// ExportTables lists the tables an export of databaseName would include.
func (c *Client) ExportTables(ctx context.Context, connectionID int64, databaseName string) ([]string, error) {
	var tables []string
	err := c.doJSON(ctx, request{method: http.MethodGet, path: "/database/export-tables", query: transferQuery(connectionID, databaseName)}, &tables)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables of %s: %w", databaseName, err)
	}
	return tables, nil
}

// ImportSQL runs script against the connection.
func (c *Client) ImportSQL(ctx context.Context, connectionID int64, script string) error {
	q := url.Values{
		"connectionId": {strconv.FormatInt(connectionID, 10)},
		"sqlScript":    {script},
	}
	if err := c.doJSON(ctx, request{method: http.MethodPost, path: "/database/import", query: q}, nil); err != nil {
		return fmt.Errorf("failed to import script: %w", err)
	}
	return nil
}

// ImportFile uploads a SQL file as multipart form data.
func (c *Client) ImportFile(ctx context.Context, connectionID int64, filename string, r io.Reader) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("connectionId", strconv.FormatInt(connectionID, 10)); err != nil {
		return err
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	req := request{
		method:      http.MethodPost,
		path:        "/database/import/file",
		raw:         buf.Bytes(),
		contentType: w.FormDataContentType(),
	}
	if err := c.doJSON(ctx, req, nil); err != nil {
		return fmt.Errorf("failed to import %s: %w", filename, err)
	}
	return nil
}

func transferQuery(connectionID int64, databaseName string) url.Values {
	return url.Values{
		"connectionId": {strconv.FormatInt(connectionID, 10)},
		"databaseName": {databaseName},
	}
}
