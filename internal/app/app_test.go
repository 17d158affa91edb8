package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/arcade/client"
	"github.com/toolsascode/arcade/internal/config"
	"github.com/toolsascode/arcade/internal/queue"
	"github.com/toolsascode/arcade/internal/registry"
	"github.com/toolsascode/arcade/internal/testutil/fakedb"
)

func noop(context.Context, client.Conn) error { return nil }

func testConfig() *config.Config {
	cfg := &config.Config{Connections: map[string]*config.Connection{
		"core": {Name: "core", URL: fakedb.BaseURL, Database: "core", Username: "root", Password: "secret"},
	}}
	cfg.Migrations.TrackingType = "SchemaMigration"
	return cfg
}

func newTestApp(t *testing.T, db *fakedb.DB) *App {
	t.Helper()
	reg := registry.MustNew(
		&registry.Func{ID: 1, Label: "create_product", UpFn: noop, DownFn: noop},
		&registry.Func{ID: 2, Label: "index_sku", UpFn: noop, DownFn: noop},
	)
	a, err := New(context.Background(), testConfig(), WithExecutor(db), WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew(t *testing.T) {
	a := newTestApp(t, fakedb.New())

	assert.Nil(t, a.History)
	assert.Nil(t, a.Queue)
	assert.NotNil(t, a.Engine)
	assert.Equal(t, 2, a.Registry.Len())

	conn, err := a.Conn("core")
	require.NoError(t, err)
	assert.Equal(t, "core", conn.Database())
	assert.Equal(t, fakedb.BaseURL, conn.BaseURL())
}

func TestNew_InvalidConnection(t *testing.T) {
	cfg := testConfig()
	cfg.Connections["broken"] = &config.Connection{Name: "broken", URL: "ftp://nope", Database: "x"}

	_, err := New(context.Background(), cfg, WithExecutor(fakedb.New()), WithRegistry(registry.MustNew()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection broken")
}

func TestRun_UpThenDown(t *testing.T) {
	db := fakedb.New()
	a := newTestApp(t, db)
	ctx := context.Background()

	res, err := a.Run(ctx, &queue.Job{Connection: "core", Direction: queue.DirectionUp})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, res.Versions)
	assert.Equal(t, []int64{1, 2}, db.Applied("SchemaMigration"))

	res, err = a.Run(ctx, &queue.Job{Connection: "core", Direction: queue.DirectionDown, TargetVersion: 1, DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, []int64{2}, res.Planned)
	assert.Empty(t, res.Versions)

	res, err = a.Run(ctx, &queue.Job{Connection: "core", Direction: queue.DirectionDown, TargetVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, res.Versions)
	assert.Equal(t, []int64{1}, db.Applied("SchemaMigration"))
}

func TestRun_Errors(t *testing.T) {
	a := newTestApp(t, fakedb.New())
	ctx := context.Background()

	res, err := a.Run(ctx, &queue.Job{Connection: "missing", Direction: queue.DirectionUp})
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrNotFound))
	assert.NotNil(t, res)

	_, err = a.Run(ctx, &queue.Job{Connection: "core", Direction: "sideways"})
	require.Error(t, err)
	assert.Equal(t, client.KindValidation, client.KindOf(err))
}

func TestLoadRegistry(t *testing.T) {
	registry.ResetGlobal()
	t.Cleanup(registry.ResetGlobal)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3_add_orders.up.sql"), []byte("CREATE DOCUMENT TYPE Order;"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3_add_orders.down.sql"), []byte("DROP TYPE Order;"), 0o600))

	reg, err := LoadRegistry(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, reg.Versions())

	registry.Register(&registry.Func{ID: 1, Label: "seed", UpFn: noop, DownFn: noop})
	reg, err = LoadRegistry(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, reg.Versions())

	reg, err = LoadRegistry(filepath.Join(dir, "missing"), "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, reg.Versions())

	registry.Register(&registry.Func{ID: 3, Label: "add_orders", UpFn: noop, DownFn: noop})
	reg, err = LoadRegistry(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, reg.Versions())
	m, _ := reg.Get(3)
	assert.IsType(t, &registry.Func{}, m)

	registry.Register(&registry.Func{ID: 3, Label: "dup", UpFn: noop, DownFn: noop})
	_, err = LoadRegistry(dir, "")
	assert.ErrorIs(t, err, registry.ErrInvalidRegistry)
}
