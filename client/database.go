package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

type serverCommand struct {
	Command string `json:"command"`
}

// CreateDatabase creates a database on the server c points at. The handle's
// own database selection is ignored.
func (c Conn) CreateDatabase(ctx context.Context, name string) error {
	return c.serverCommand(ctx, "create_database", "create database", name)
}

// DropDatabase drops a database on the server.
func (c Conn) DropDatabase(ctx context.Context, name string) error {
	return c.serverCommand(ctx, "drop_database", "drop database", name)
}

// DatabaseExists reports whether the named database exists.
func (c Conn) DatabaseExists(ctx context.Context, name string) (bool, error) {
	const op = "exists"
	if err := validDatabaseName(op, name); err != nil {
		return false, err
	}

	resp, err := c.do(ctx, op, http.MethodGet, apiPrefix+"/exists/"+url.PathEscape(name), nil)
	if err != nil {
		return false, err
	}

	var envelope struct {
		Result *bool `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil || envelope.Result == nil {
		return false, MalformedBody(op, resp.Status, resp.Body, err)
	}
	return *envelope.Result, nil
}

// Ready checks that the server accepts requests.
func (c Conn) Ready(ctx context.Context) error {
	_, err := c.do(ctx, "ready", http.MethodGet, apiPrefix+"/ready", nil)
	return err
}

// MustCreateDatabase is like CreateDatabase but panics with the error.
func (c Conn) MustCreateDatabase(ctx context.Context, name string) {
	if err := c.CreateDatabase(ctx, name); err != nil {
		panic(err)
	}
}

// MustDropDatabase is like DropDatabase but panics with the error.
func (c Conn) MustDropDatabase(ctx context.Context, name string) {
	if err := c.DropDatabase(ctx, name); err != nil {
		panic(err)
	}
}

// MustDatabaseExists is like DatabaseExists but panics with the error.
func (c Conn) MustDatabaseExists(ctx context.Context, name string) bool {
	return must(c.DatabaseExists(ctx, name))
}

func (c Conn) serverCommand(ctx context.Context, op, verb, name string) error {
	if err := validDatabaseName(op, name); err != nil {
		return err
	}
	_, err := c.do(ctx, op, http.MethodPost, apiPrefix+"/server", serverCommand{Command: verb + " " + name})
	return err
}

func validDatabaseName(op, name string) error {
	if name == "" {
		return validationError(op, "database name is required")
	}
	if strings.ContainsAny(name, " \t\r\n;/\\") {
		return validationError(op, "invalid database name %q", name)
	}
	return nil
}
