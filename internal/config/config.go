package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/toolsascode/arcade/client"
	"gopkg.in/yaml.v3"
)

// Connection describes one database server and the database migrations run
// against.
type Connection struct {
	Name     string        `yaml:"-"`
	URL      string        `yaml:"url"`
	Database string        `yaml:"database"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Pool     string        `yaml:"pool"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ClientConfig converts the connection into a client.Config.
func (c *Connection) ClientConfig() client.Config {
	return client.Config{
		URL:      c.URL,
		Database: c.Database,
		Username: c.Username,
		Password: c.Password,
		Pool:     c.Pool,
		Timeout:  c.Timeout,
	}
}

// Config holds the application configuration
type Config struct {
	Server struct {
		HTTPPort string `yaml:"http_port"`
		APIToken string `yaml:"api_token"`

		// AllowedOrigins lists the browser origins answered with CORS
		// headers; "*" allows any origin without credentials.
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Migrations struct {
		Path         string `yaml:"path"`          // directory of NNN_name.up.sql files
		TrackingType string `yaml:"tracking_type"` // document type holding applied versions
		Language     string `yaml:"language"`      // script language, sqlscript by default
	} `yaml:"migrations"`
	Lock struct {
		Enabled       bool          `yaml:"enabled"`
		EtcdEndpoints []string      `yaml:"etcd_endpoints"`
		Username      string        `yaml:"username"`
		Password      string        `yaml:"password"`
		Prefix        string        `yaml:"prefix"`
		TTL           time.Duration `yaml:"ttl"`
	} `yaml:"lock"`
	History struct {
		DSN    string `yaml:"dsn"` // PostgreSQL DSN, empty disables history
		Schema string `yaml:"schema"`
	} `yaml:"history"`
	Queue struct {
		Type               string   `yaml:"type"`                // "kafka", "pulsar" or "memory"
		KafkaBrokers       []string `yaml:"kafka_brokers"`       // Kafka broker addresses
		KafkaTopic         string   `yaml:"kafka_topic"`         // Kafka topic name
		KafkaGroupID       string   `yaml:"kafka_group_id"`      // Kafka consumer group ID
		PulsarURL          string   `yaml:"pulsar_url"`          // Pulsar service URL
		PulsarTopic        string   `yaml:"pulsar_topic"`        // Pulsar topic name
		PulsarSubscription string   `yaml:"pulsar_subscription"` // Pulsar subscription name
		MemorySize         int      `yaml:"memory_size"`         // buffer of the in-process queue
		Enabled            bool     `yaml:"enabled"`             // false = synchronous execution
	} `yaml:"queue"`
	Connections map[string]*Connection `yaml:"connections"`
}

// Load reads the environment and, when ARCADE_CONFIG_FILE is set, overlays
// that file.
func Load() (*Config, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if path := os.Getenv("ARCADE_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Connections: make(map[string]*Connection),
	}

	// Server configuration
	config.Server.HTTPPort = getEnvOrDefault("ARCADE_HTTP_PORT", "7070")
	config.Server.APIToken = os.Getenv("ARCADE_API_TOKEN")
	config.Server.AllowedOrigins = splitList(os.Getenv("ARCADE_CORS_ALLOWED_ORIGINS"))

	// Migrations
	config.Migrations.Path = getEnvOrDefault("ARCADE_MIGRATIONS_PATH", "./migrations")
	config.Migrations.TrackingType = getEnvOrDefault("ARCADE_TRACKING_TYPE", "SchemaMigration")
	config.Migrations.Language = getEnvOrDefault("ARCADE_MIGRATIONS_LANGUAGE", "sqlscript")

	// Lock configuration
	lockEnabled, err := getEnvBool("ARCADE_LOCK_ENABLED", false)
	if err != nil {
		return nil, err
	}
	config.Lock.Enabled = lockEnabled
	config.Lock.EtcdEndpoints = splitList(getEnvOrDefault("ARCADE_LOCK_ETCD_ENDPOINTS", "localhost:2379"))
	config.Lock.Username = os.Getenv("ARCADE_LOCK_ETCD_USERNAME")
	config.Lock.Password = os.Getenv("ARCADE_LOCK_ETCD_PASSWORD")
	config.Lock.Prefix = getEnvOrDefault("ARCADE_LOCK_PREFIX", "/arcade/locks/")
	ttl, err := getEnvDuration("ARCADE_LOCK_TTL", 60*time.Second)
	if err != nil {
		return nil, err
	}
	config.Lock.TTL = ttl

	// History configuration
	config.History.DSN = os.Getenv("ARCADE_HISTORY_DSN")
	config.History.Schema = getEnvOrDefault("ARCADE_HISTORY_SCHEMA", "public")

	// Queue configuration
	queueEnabled, err := getEnvBool("ARCADE_QUEUE_ENABLED", false)
	if err != nil {
		return nil, err
	}
	config.Queue.Enabled = queueEnabled
	config.Queue.Type = getEnvOrDefault("ARCADE_QUEUE_TYPE", "kafka")

	// Kafka configuration
	if kafkaBrokers := os.Getenv("ARCADE_QUEUE_KAFKA_BROKERS"); kafkaBrokers != "" {
		config.Queue.KafkaBrokers = splitList(kafkaBrokers)
	} else {
		kafkaHost := getEnvOrDefault("ARCADE_QUEUE_KAFKA_HOST", "localhost")
		kafkaPort := getEnvOrDefault("ARCADE_QUEUE_KAFKA_PORT", "9092")
		config.Queue.KafkaBrokers = []string{fmt.Sprintf("%s:%s", kafkaHost, kafkaPort)}
	}
	config.Queue.KafkaTopic = getEnvOrDefault("ARCADE_QUEUE_KAFKA_TOPIC", "arcade-migrations")
	config.Queue.KafkaGroupID = getEnvOrDefault("ARCADE_QUEUE_KAFKA_GROUP_ID", "arcade-migration-workers")

	// Pulsar configuration
	config.Queue.PulsarURL = getEnvOrDefault("ARCADE_QUEUE_PULSAR_URL", "pulsar://localhost:6650")
	config.Queue.PulsarTopic = getEnvOrDefault("ARCADE_QUEUE_PULSAR_TOPIC", "arcade-migrations")
	config.Queue.PulsarSubscription = getEnvOrDefault("ARCADE_QUEUE_PULSAR_SUBSCRIPTION", "arcade-migration-workers")
	memorySize, err := getEnvInt("ARCADE_QUEUE_MEMORY_SIZE", 64)
	if err != nil {
		return nil, err
	}
	config.Queue.MemorySize = memorySize

	// Connections: any {NAME}_DB_URL declares a connection called name.
	for _, envVar := range os.Environ() {
		parts := strings.SplitN(envVar, "=", 2)
		if len(parts) != 2 || parts[1] == "" {
			continue
		}
		key := parts[0]
		if !strings.HasSuffix(key, "_DB_URL") || strings.HasPrefix(key, "ARCADE_") {
			continue
		}

		prefix := strings.TrimSuffix(key, "URL")
		name := strings.ToLower(strings.TrimSuffix(key, "_DB_URL"))
		timeout, err := getEnvDuration(prefix+"TIMEOUT", 0)
		if err != nil {
			return nil, err
		}
		config.Connections[name] = &Connection{
			Name:     name,
			URL:      parts[1],
			Database: os.Getenv(prefix + "NAME"),
			Username: getEnvOrDefault(prefix+"USERNAME", "root"),
			Password: os.Getenv(prefix + "PASSWORD"),
			Pool:     getEnvOrDefault(prefix+"POOL", name),
			Timeout:  timeout,
		}
	}

	return config, nil
}

// LoadFile overlays a YAML file onto c. Keys present in the file replace the
// loaded values; connections are merged by name.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	existing := c.Connections
	c.Connections = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		c.Connections = existing
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	merged := existing
	if merged == nil {
		merged = make(map[string]*Connection)
	}
	for name, conn := range c.Connections {
		if conn == nil {
			continue
		}
		name = strings.ToLower(name)
		conn.Name = name
		if conn.Pool == "" {
			conn.Pool = name
		}
		merged[name] = conn
	}
	c.Connections = merged
	return nil
}

// Validate checks the configuration. The server additionally needs an API
// token.
func (c *Config) Validate(forServer bool) error {
	if forServer && c.Server.APIToken == "" {
		return fmt.Errorf("ARCADE_API_TOKEN environment variable is required")
	}
	for name, conn := range c.Connections {
		if conn.URL == "" {
			return fmt.Errorf("connection %s: url is required", name)
		}
		if conn.Database == "" {
			return fmt.Errorf("connection %s: database is required", name)
		}
	}
	if c.Lock.Enabled && len(c.Lock.EtcdEndpoints) == 0 {
		return fmt.Errorf("lock is enabled but no etcd endpoints are configured")
	}
	if c.Queue.Enabled {
		switch strings.ToLower(c.Queue.Type) {
		case "kafka", "pulsar", "memory":
		default:
			return fmt.Errorf("unsupported queue type: %s (supported: kafka, pulsar, memory)", c.Queue.Type)
		}
	}
	return nil
}

// Connection returns the named connection.
func (c *Config) Connection(name string) (*Connection, error) {
	conn, ok := c.Connections[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("connection %q is not configured (known: %s)", name, strings.Join(c.ConnectionNames(), ", "))
	}
	return conn, nil
}

// ConnectionNames returns the configured connection names, sorted.
func (c *Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
