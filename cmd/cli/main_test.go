package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/arcade/client"
	"github.com/toolsascode/arcade/internal/executor"
	"github.com/toolsascode/arcade/internal/registry"
	"github.com/toolsascode/arcade/internal/testutil/fakedb"
)

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Value.Type() != "stringToString" {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, db *fakedb.DB, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	transport = nil
	if db != nil {
		transport = db
	}
	t.Cleanup(func() { transport = nil })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeScripts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"1_create_product.up.sql":   "CREATE DOCUMENT TYPE Product;",
		"1_create_product.down.sql": "DROP TYPE Product;",
		"2_index_sku.up.sql":        "CREATE INDEX ON Product (sku) UNIQUE;",
		"2_index_sku.down.sql":      "DROP INDEX `Product[sku]`;",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func TestMigrate_UpStatusPendingDown(t *testing.T) {
	db := fakedb.New()
	dir := writeScripts(t)
	base := []string{"--url", fakedb.BaseURL, "-d", "shop", "--migrations", dir}

	out, err := execute(t, db, append([]string{"migrate", "up", "--dry-run"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run, would be applied: 1, 2")
	assert.Empty(t, db.Applied("SchemaMigration"))

	out, err = execute(t, db, append([]string{"migrate", "up"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 2 migration(s): 1, 2")
	assert.Equal(t, []int64{1, 2}, db.Applied("SchemaMigration"))

	out, err = execute(t, db, append([]string{"migrate", "status"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "create_product")
	assert.Contains(t, out, "applied")

	out, err = execute(t, db, append([]string{"migrate", "pending"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Database is up to date")

	out, err = execute(t, db, append([]string{"migrate", "down", "--to", "1"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Reverted 1 migration(s): 2")
	assert.Equal(t, []int64{1}, db.Applied("SchemaMigration"))

	out, err = execute(t, db, append([]string{"migrate", "pending"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "2\tindex_sku")
}

func TestMigrate_DownRequiresTarget(t *testing.T) {
	_, err := execute(t, fakedb.New(), "migrate", "down", "--url", fakedb.BaseURL, "-d", "shop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--to is required")
}

func TestMigrate_FailureStopsRun(t *testing.T) {
	db := fakedb.New()
	db.FailOn("Product (sku)", 500, "index build failed")
	dir := writeScripts(t)

	out, err := execute(t, db, "migrate", "up", "--url", fakedb.BaseURL, "-d", "shop", "--migrations", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index build failed")
	assert.Contains(t, out, "Applied 1 migration(s): 1")
	assert.Contains(t, out, "Stopped, not applied: 2")
	assert.Equal(t, []int64{1}, db.Applied("SchemaMigration"))
	assert.Equal(t, 1, exitCode(err))
}

func TestMigrate_FailureOnFirstMigration(t *testing.T) {
	db := fakedb.New()
	db.FailOn("DOCUMENT TYPE Product", 500, "type creation failed")
	dir := writeScripts(t)

	out, err := execute(t, db, "migrate", "up", "--url", fakedb.BaseURL, "-d", "shop", "--migrations", dir)
	require.Error(t, err)
	assert.NotContains(t, out, "Nothing to do")
	assert.Contains(t, out, "Stopped, not applied: 1, 2")
	assert.Empty(t, db.Applied("SchemaMigration"))
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	printResult(&out, "Applied", &executor.Result{Versions: []int64{}, Planned: []int64{}}, nil)
	assert.Equal(t, "Nothing to do\n", out.String())

	out.Reset()
	printResult(&out, "Reverted", &executor.Result{Versions: []int64{3}, Planned: []int64{3, 2}}, errors.New("boom"))
	assert.Equal(t, "Reverted 1 migration(s): 3\nStopped, not reverted: 2\n", out.String())

	out.Reset()
	printResult(&out, "Applied", &executor.Result{Versions: []int64{}, Planned: []int64{4}, DryRun: true}, nil)
	assert.Equal(t, "Dry run, would be applied: 4\n", out.String())
}

func TestMigrate_InvalidRegistryIsValidation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_orphan.down.sql"), []byte("DROP TYPE Orphan;"), 0o600))

	_, err := execute(t, fakedb.New(), "migrate", "up", "--url", fakedb.BaseURL, "-d", "shop", "--migrations", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrInvalidRegistry)
	assert.Equal(t, 2, exitCode(err))
}

func TestMigrateNew(t *testing.T) {
	now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })

	dir := filepath.Join(t.TempDir(), "shop-migrations")
	out, err := execute(t, nil, "migrate", "new", "Add SKU-Index", "--dir", dir, "--go")
	require.NoError(t, err)
	assert.Contains(t, out, "20240102030405_add_sku_index.up.sql")

	up, err := os.ReadFile(filepath.Join(dir, "20240102030405_add_sku_index.up.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(up), "20240102030405_add_sku_index (up)")

	goFile, err := os.ReadFile(filepath.Join(dir, "20240102030405_add_sku_index.go"))
	require.NoError(t, err)
	assert.Contains(t, string(goFile), "package shop_migrations")
	assert.Contains(t, string(goFile), "//go:embed 20240102030405_add_sku_index.down.sql")
	assert.Contains(t, string(goFile), `Label:   "add_sku_index"`)

	_, err = execute(t, nil, "migrate", "new", "add_sku_index", "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, nil, "migrate", "new", "add_sku_index", "--dir", dir, "--force")
	require.NoError(t, err)

	_, err = execute(t, nil, "migrate", "new", "!!!", "--dir", dir)
	require.Error(t, err)
}

func TestDBCommands(t *testing.T) {
	db := fakedb.New()

	out, err := execute(t, db, "db", "create", "shop", "--url", fakedb.BaseURL)
	require.NoError(t, err)
	assert.Contains(t, out, "Database shop created")

	out, err = execute(t, db, "db", "exists", "shop", "--url", fakedb.BaseURL)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = execute(t, db, "db", "drop", "shop", "--url", fakedb.BaseURL)
	require.NoError(t, err)
	assert.Contains(t, out, "Database shop dropped")

	out, err = execute(t, db, "db", "ready", "--url", fakedb.BaseURL)
	require.NoError(t, err)
	assert.Contains(t, out, "is ready")

	assert.Equal(t, 2, db.Count("server"))
}

func TestDBCreate_ServerError(t *testing.T) {
	db := fakedb.New()
	db.FailEndpoint("server", 403, "not allowed")

	_, err := execute(t, db, "db", "create", "shop", "--url", fakedb.BaseURL)
	require.Error(t, err)
	assert.Equal(t, client.KindAuth, client.KindOf(err))
}

func TestQueryAndCommand(t *testing.T) {
	db := fakedb.New()

	out, err := execute(t, db, "query", "SELECT FROM Product", "--url", fakedb.BaseURL, "-d", "shop")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)

	out, err = execute(t, db, "command", "INSERT INTO Product SET sku = 'A-1'", "--url", fakedb.BaseURL, "-d", "shop", "--tx", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "(0 record(s))")
	assert.Equal(t, 1, db.Count("begin"))
	assert.Equal(t, 1, db.Count("commit"))

	_, err = execute(t, db, "query", "SELECT 1", "--url", fakedb.BaseURL, "-d", "shop", "-o", "xml")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestQuery_RequiresDatabase(t *testing.T) {
	_, err := execute(t, fakedb.New(), "query", "SELECT 1", "--url", fakedb.BaseURL)
	require.Error(t, err)
	assert.Equal(t, client.KindValidation, client.KindOf(err))
}

func TestSelectConnection(t *testing.T) {
	t.Setenv("CORE_DB_URL", fakedb.BaseURL)
	t.Setenv("CORE_DB_NAME", "core")
	t.Setenv("EDGE_DB_URL", fakedb.BaseURL)
	t.Setenv("EDGE_DB_NAME", "edge")

	_, err := execute(t, fakedb.New(), "db", "ready")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "choose one with --connection")
	assert.Equal(t, 2, exitCode(err))

	db := fakedb.New()
	out, err := execute(t, db, "db", "ready", "-c", "edge")
	require.NoError(t, err)
	assert.Contains(t, out, "is ready")

	_, err = execute(t, db, "db", "ready", "-c", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestParseParams(t *testing.T) {
	assert.Nil(t, parseParams(nil))
	assert.Equal(t, map[string]interface{}{
		"sku":    "A-1",
		"qty":    float64(3),
		"active": true,
		"tags":   []interface{}{"a"},
	}, parseParams(map[string]string{"sku": "A-1", "qty": "3", "active": "true", "tags": `["a"]`}))
}

func TestSanitizePackageName(t *testing.T) {
	assert.Equal(t, "core", sanitizePackageName("core"))
	assert.Equal(t, "shop_db", sanitizePackageName("shop-db"))
	assert.Equal(t, "_2024", sanitizePackageName("2024"))
	assert.Equal(t, "migrations", sanitizePackageName(""))
}

func TestSanitizeMigrationName(t *testing.T) {
	assert.Equal(t, "add_sku_index", sanitizeMigrationName("  Add SKU-Index "))
	assert.Equal(t, "create_product", sanitizeMigrationName("create_product"))
	assert.Equal(t, "", sanitizeMigrationName("--"))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, "Arcade CLI version 1.0.0\n", out)
}
