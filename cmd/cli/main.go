package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/toolsascode/arcade/client"
	"github.com/toolsascode/arcade/internal/app"
	"github.com/toolsascode/arcade/internal/config"
	"github.com/toolsascode/arcade/internal/logger"
)

var (
	configFile     string
	connectionName string
	dbURL          string
	databaseName   string
	username       string
	password       string
	migrationsPath string
	timeout        time.Duration
	verbose        bool

	errNotExist = errors.New("database does not exist")

	// transport replaces the HTTP executor; tests point it at a fake server.
	transport client.Executor
)

var rootCmd = &cobra.Command{
	Use:   "arcade",
	Short: "Arcade - document database client and migration tool",
	Long: `Arcade manages schema migrations of document/graph databases reachable
over their HTTP API, and runs ad-hoc queries and commands against them.

Connections come from {NAME}_DB_URL environment variables, from the file in
ARCADE_CONFIG_FILE or --config, or from --url/--database on the command line.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(logger.DEBUG)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Arcade CLI version %s\n", rootCmd.Version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML configuration file (overrides ARCADE_CONFIG_FILE)")
	flags.StringVarP(&connectionName, "connection", "c", "", "Configured connection to use (required when several are configured)")
	flags.StringVar(&dbURL, "url", "", "Server base URL, e.g. http://localhost:2480")
	flags.StringVarP(&databaseName, "database", "d", "", "Database name")
	flags.StringVarP(&username, "user", "u", "", "User name")
	flags.StringVar(&password, "password", "", "Password")
	flags.StringVar(&migrationsPath, "migrations", "", "Directory of migration scripts (overrides ARCADE_MIGRATIONS_PATH)")
	flags.DurationVar(&timeout, "timeout", 0, "Per-request timeout (0 = none)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(migrateCmd, dbCmd, queryCmd, commandCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errNotExist) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes bad input from failures reported by the database.
func exitCode(err error) int {
	switch client.KindOf(err) {
	case client.KindValidation:
		return 2
	case client.KindTransport:
		return 3
	default:
		return 1
	}
}

// loadConfig builds the configuration from the environment, the config file
// and the command-line overrides, and returns the selected connection.
func loadConfig() (*config.Config, *config.Connection, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, nil, err
		}
	}
	if migrationsPath != "" {
		cfg.Migrations.Path = migrationsPath
	}

	if dbURL != "" {
		name := strings.ToLower(connectionName)
		if name == "" {
			name = "default"
		}
		cfg.Connections[name] = &config.Connection{Name: name, URL: dbURL, Username: "root", Pool: name}
		connectionName = name
	}

	conn, err := selectConnection(cfg)
	if err != nil {
		return nil, nil, err
	}
	connectionName = conn.Name
	if databaseName != "" {
		conn.Database = databaseName
	}
	if username != "" {
		conn.Username = username
	}
	if password != "" {
		conn.Password = password
	}
	if timeout > 0 {
		conn.Timeout = timeout
	}
	return cfg, conn, nil
}

func selectConnection(cfg *config.Config) (*config.Connection, error) {
	if connectionName != "" {
		return cfg.Connection(connectionName)
	}
	switch names := cfg.ConnectionNames(); len(names) {
	case 0:
		return nil, &client.Error{Kind: client.KindValidation, Op: "config",
			Message: "no connection configured: set {NAME}_DB_URL, --config or --url"}
	case 1:
		return cfg.Connections[names[0]], nil
	default:
		return nil, &client.Error{Kind: client.KindValidation, Op: "config",
			Message: fmt.Sprintf("several connections configured (%s): choose one with --connection", strings.Join(names, ", "))}
	}
}

// connect returns a handle on the selected connection. Server-level
// commands pass allowNoDatabase.
func connect(ctx context.Context, allowNoDatabase bool) (client.Conn, error) {
	_, c, err := loadConfig()
	if err != nil {
		return client.Conn{}, err
	}
	cc := c.ClientConfig()
	cc.Executor = transport
	cc.AllowNoDatabase = allowNoDatabase
	return client.Connect(ctx, cc)
}

// openApp builds the migration engine for the selected connection only.
func openApp(ctx context.Context) (*app.App, client.Conn, error) {
	cfg, c, err := loadConfig()
	if err != nil {
		return nil, client.Conn{}, err
	}
	cfg.Connections = map[string]*config.Connection{c.Name: c}

	a, err := app.New(ctx, cfg, app.WithExecutor(transport))
	if err != nil {
		return nil, client.Conn{}, err
	}
	conn, err := a.Conn(c.Name)
	if err != nil {
		_ = a.Close()
		return nil, client.Conn{}, err
	}
	return a, conn, nil
}
