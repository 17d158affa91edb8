package state

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/toolsascode/arcade/client"
)

// DefaultTypeName is the document type holding applied versions.
const DefaultTypeName = "SchemaMigration"

var typeNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Tracker reads and writes the applied-version record kept in the target
// database itself, through the same command interface as ordinary data.
type Tracker struct {
	typeName string
}

// NewTracker creates a tracker for the given document type. An empty name
// selects DefaultTypeName.
func NewTracker(typeName string) (*Tracker, error) {
	if typeName == "" {
		typeName = DefaultTypeName
	}
	if !typeNameRegex.MatchString(typeName) {
		return nil, &client.Error{Kind: client.KindValidation, Op: "tracker", Message: fmt.Sprintf("invalid tracking type name %q", typeName)}
	}
	return &Tracker{typeName: typeName}, nil
}

// TypeName returns the tracking document type.
func (t *Tracker) TypeName() string {
	return t.typeName
}

// Exists reports whether the tracking type has been created.
func (t *Tracker) Exists(ctx context.Context, conn client.Conn) (bool, error) {
	res, err := conn.Query(ctx, "SELECT name FROM schema:types WHERE name = :name", map[string]interface{}{
		"name": t.typeName,
	})
	if err != nil {
		return false, err
	}
	return res.Len() > 0, nil
}

// Records returns every applied version in ascending order. A database
// without the tracking type has no applied versions.
func (t *Tracker) Records(ctx context.Context, conn client.Conn) ([]AppliedVersion, error) {
	exists, err := t.Exists(ctx, conn)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []AppliedVersion{}, nil
	}

	res, err := conn.Query(ctx, fmt.Sprintf("SELECT version, name, applied_at FROM %s ORDER BY version", t.typeName), nil)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Version   int64  `json:"version"`
		Name      string `json:"name"`
		AppliedAt string `json:"applied_at"`
	}
	if err := res.Decode(&rows); err != nil {
		return nil, &client.Error{Kind: client.KindServer, Op: "query", Message: "malformed tracking record", Err: err}
	}

	out := make([]AppliedVersion, 0, len(rows))
	for _, r := range rows {
		av := AppliedVersion{Version: r.Version, Name: r.Name}
		if r.AppliedAt != "" {
			if parsed, err := time.Parse(time.RFC3339, r.AppliedAt); err == nil {
				av.AppliedAt = parsed
			}
		}
		out = append(out, av)
	}
	return out, nil
}

// Applied returns the applied version numbers in ascending order.
func (t *Tracker) Applied(ctx context.Context, conn client.Conn) ([]int64, error) {
	records, err := t.Records(ctx, conn)
	if err != nil {
		return nil, err
	}
	versions := make([]int64, len(records))
	for i, r := range records {
		versions[i] = r.Version
	}
	return versions, nil
}

// Ensure creates the tracking type and its unique version index. Schema
// changes are not transactional on the server, so conn should be stateless.
func (t *Tracker) Ensure(ctx context.Context, conn client.Conn) error {
	script := fmt.Sprintf(`CREATE DOCUMENT TYPE %[1]s IF NOT EXISTS;
CREATE PROPERTY %[1]s.version IF NOT EXISTS LONG;
CREATE PROPERTY %[1]s.name IF NOT EXISTS STRING;
CREATE PROPERTY %[1]s.applied_at IF NOT EXISTS STRING;
CREATE INDEX IF NOT EXISTS ON %[1]s (version) UNIQUE;`, t.typeName)

	if _, err := conn.CommandLang(ctx, client.LangSQLScript, script, nil); err != nil {
		return fmt.Errorf("failed to create tracking type %s: %w", t.typeName, err)
	}
	return nil
}

// Record marks version as applied. tx should be the transaction running the
// migration so both commit or roll back together.
func (t *Tracker) Record(ctx context.Context, tx client.Conn, version int64, name string, at time.Time) error {
	_, err := tx.Command(ctx,
		fmt.Sprintf("INSERT INTO %s SET version = :version, name = :name, applied_at = :applied_at", t.typeName),
		map[string]interface{}{
			"version":    version,
			"name":       name,
			"applied_at": at.UTC().Format(time.RFC3339),
		})
	return err
}

// Forget removes the record of version.
func (t *Tracker) Forget(ctx context.Context, tx client.Conn, version int64) error {
	_, err := tx.Command(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE version = :version", t.typeName),
		map[string]interface{}{"version": version})
	return err
}
