package registry

import (
	"context"
	"strings"

	"github.com/toolsascode/arcade/client"
)

// Func is a migration built from closures. A nil DownFn makes Down fail.
type Func struct {
	ID     int64
	Label  string
	UpFn   func(ctx context.Context, tx client.Conn) error
	DownFn func(ctx context.Context, tx client.Conn) error
}

func (f *Func) Version() int64 { return f.ID }
func (f *Func) Name() string   { return f.Label }

func (f *Func) Up(ctx context.Context, tx client.Conn) error {
	if f.UpFn == nil {
		return &client.Error{Kind: client.KindValidation, Op: "up", Message: "migration has no up function"}
	}
	return f.UpFn(ctx, tx)
}

func (f *Func) Down(ctx context.Context, tx client.Conn) error {
	if f.DownFn == nil {
		return &client.Error{Kind: client.KindValidation, Op: "down", Message: "migration has no down function"}
	}
	return f.DownFn(ctx, tx)
}

// Script is a migration whose up and down steps are statements sent as a
// single command. Language defaults to sqlscript so that a script may hold
// several statements separated by semicolons.
type Script struct {
	ID       int64
	Label    string
	Language string
	UpSQL    string
	DownSQL  string
}

func (s *Script) Version() int64 { return s.ID }
func (s *Script) Name() string   { return s.Label }

func (s *Script) Up(ctx context.Context, tx client.Conn) error {
	return s.run(ctx, tx, "up", s.UpSQL)
}

func (s *Script) Down(ctx context.Context, tx client.Conn) error {
	return s.run(ctx, tx, "down", s.DownSQL)
}

func (s *Script) run(ctx context.Context, tx client.Conn, op, script string) error {
	if strings.TrimSpace(script) == "" {
		return &client.Error{Kind: client.KindValidation, Op: op, Message: "migration has no " + op + " script"}
	}
	lang := s.Language
	if lang == "" {
		lang = client.LangSQLScript
	}
	_, err := tx.CommandLang(ctx, lang, script, nil)
	return err
}
