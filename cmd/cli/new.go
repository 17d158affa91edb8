package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/cobra"
	"github.com/toolsascode/arcade/migrations"
)

type migrationFile struct {
	PackageName  string
	Version      string
	Name         string
	UpFileName   string
	DownFileName string
}

var (
	newDir    string
	newGoFile bool
	newForce  bool

	// now is replaced in tests.
	now = time.Now

	invalidNameRegex = regexp.MustCompile(`[^a-z0-9_]+`)
	invalidPkgRegex  = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

var migrateNewCmd = &cobra.Command{
	Use:   "new NAME",
	Short: "Create the up/down scripts of a new migration",
	Long: `New writes {version}_{name}.up.sql and {version}_{name}.down.sql, where
version is the current UTC time as YYYYMMDDHHMMSS.

With --go it also writes {version}_{name}.go, which embeds both scripts and
registers them from an init function, for programs that compile their
migrations in.`,
	Example: `  arcade migrate new create_product
  arcade migrate new add_sku_index --dir ./db/migrations --go`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := newDir
		if dir == "" {
			dir = migrationsDir()
		}
		files, err := writeMigration(dir, args[0], newGoFile, newForce)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", f)
		}
		return nil
	},
}

func init() {
	migrateNewCmd.Flags().StringVar(&newDir, "dir", "", "Target directory (default: --migrations, ARCADE_MIGRATIONS_PATH or ./migrations)")
	migrateNewCmd.Flags().BoolVar(&newGoFile, "go", false, "Also generate a .go file that registers the scripts")
	migrateNewCmd.Flags().BoolVar(&newForce, "force", false, "Overwrite existing files")
}

func migrationsDir() string {
	if migrationsPath != "" {
		return migrationsPath
	}
	if dir := os.Getenv("ARCADE_MIGRATIONS_PATH"); dir != "" {
		return dir
	}
	return "./migrations"
}

// writeMigration renders the templates into dir and returns the created
// paths.
func writeMigration(dir, rawName string, withGo, force bool) ([]string, error) {
	name := sanitizeMigrationName(rawName)
	if name == "" {
		return nil, fmt.Errorf("invalid migration name %q", rawName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	version := now().UTC().Format("20060102150405")
	base := version + "_" + name
	data := migrationFile{
		PackageName:  sanitizePackageName(filepath.Base(absOrSelf(dir))),
		Version:      version,
		Name:         name,
		UpFileName:   base + ".up.sql",
		DownFileName: base + ".down.sql",
	}

	outputs := []struct {
		path string
		tmpl string
	}{
		{filepath.Join(dir, data.UpFileName), migrations.UpFileTemplate},
		{filepath.Join(dir, data.DownFileName), migrations.DownFileTemplate},
	}
	if withGo {
		outputs = append(outputs, struct {
			path string
			tmpl string
		}{filepath.Join(dir, base+".go"), migrations.GoFileTemplate})
	}

	if !force {
		for _, out := range outputs {
			if _, err := os.Stat(out.path); err == nil {
				return nil, fmt.Errorf("%s already exists (use --force to overwrite)", out.path)
			}
		}
	}

	created := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if err := renderFile(out.path, out.tmpl, data); err != nil {
			return created, err
		}
		created = append(created, out.path)
	}
	return created, nil
}

func renderFile(path, text string, data migrationFile) error {
	tmpl, err := template.New(filepath.Base(path)).Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func absOrSelf(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// sanitizeMigrationName lowercases name and folds everything but letters,
// digits and underscores into single underscores.
func sanitizeMigrationName(name string) string {
	name = invalidNameRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(name, "_")
}

// sanitizePackageName converts a directory name to a valid Go package name
func sanitizePackageName(name string) string {
	// Replace invalid characters with underscores
	result := invalidPkgRegex.ReplaceAllString(name, "_")

	// Ensure it doesn't start with a number
	if len(result) > 0 && result[0] >= '0' && result[0] <= '9' {
		result = "_" + result
	}

	// Ensure it's not empty
	if result == "" {
		result = "migrations"
	}

	return result
}
