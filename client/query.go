package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Query languages accepted by the server.
const (
	LangSQL       = "sql"
	LangSQLScript = "sqlscript"
	LangCypher    = "cypher"
	LangGremlin   = "gremlin"
)

// Record is one row/document of a result set.
type Record map[string]interface{}

// Result holds the records returned by a query or command.
type Result struct {
	Records []Record
}

// Len returns the number of records.
func (r Result) Len() int {
	return len(r.Records)
}

// First returns the first record, if any.
func (r Result) First() (Record, bool) {
	if len(r.Records) == 0 {
		return nil, false
	}
	return r.Records[0], true
}

// Decode converts the records into v, typically a pointer to a slice of
// structs with json tags.
func (r Result) Decode(v interface{}) error {
	data, err := json.Marshal(r.Records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}
	return nil
}

type statementBody struct {
	Language string                 `json:"language"`
	Command  string                 `json:"command"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

// Query runs a read-only SQL statement.
func (c Conn) Query(ctx context.Context, statement string, params map[string]interface{}) (Result, error) {
	return c.QueryLang(ctx, LangSQL, statement, params)
}

// QueryLang runs a read-only statement in the given language.
func (c Conn) QueryLang(ctx context.Context, language, statement string, params map[string]interface{}) (Result, error) {
	return c.statement(ctx, "query", language, statement, params)
}

// Command runs a SQL statement that may modify data or schema.
func (c Conn) Command(ctx context.Context, statement string, params map[string]interface{}) (Result, error) {
	return c.CommandLang(ctx, LangSQL, statement, params)
}

// CommandLang runs a statement in the given language that may modify data.
func (c Conn) CommandLang(ctx context.Context, language, statement string, params map[string]interface{}) (Result, error) {
	return c.statement(ctx, "command", language, statement, params)
}

// MustQuery is like Query but panics with the error.
func (c Conn) MustQuery(ctx context.Context, statement string, params map[string]interface{}) Result {
	return must(c.Query(ctx, statement, params))
}

// MustCommand is like Command but panics with the error.
func (c Conn) MustCommand(ctx context.Context, statement string, params map[string]interface{}) Result {
	return must(c.Command(ctx, statement, params))
}

func (c Conn) statement(ctx context.Context, op, language, statement string, params map[string]interface{}) (Result, error) {
	if err := c.requireDatabase(op); err != nil {
		return Result{}, err
	}
	if statement == "" {
		return Result{}, validationError(op, "empty statement")
	}
	if language == "" {
		language = LangSQL
	}

	resp, err := c.do(ctx, op, http.MethodPost, c.dbPath(op), statementBody{
		Language: language,
		Command:  statement,
		Params:   params,
	})
	if err != nil {
		return Result{}, err
	}
	return decodeResult(op, resp)
}

func decodeResult(op string, resp *Response) (Result, error) {
	if len(resp.Body) == 0 {
		return Result{}, nil
	}
	var envelope struct {
		Result []Record `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return Result{}, MalformedBody(op, resp.Status, resp.Body, err)
	}
	return Result{Records: envelope.Result}, nil
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
