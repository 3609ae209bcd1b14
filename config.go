package dbctx

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Object cache categories. Each category has its own TTL and counters.
const (
	CategoryRoutines    = "routines"
	CategoryConstraints = "constraints"
	CategoryIndexes     = "indexes"
	CategoryTypes       = "types"
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	// MinConns connections are dialed eagerly on first use.
	MinConns int `json:"min_conns"`

	// MaxConns is the hard ceiling on live connections.
	MaxConns int `json:"max_conns"`

	// Increment is how many connections are dialed per growth step.
	Increment int `json:"increment"`

	// AcquireTimeoutSeconds bounds how long Acquire blocks when the pool
	// is saturated.
	AcquireTimeoutSeconds int `json:"acquire_timeout_seconds"`
}

// CacheConfig controls the schema index and object cache.
type CacheConfig struct {
	// Path is where the schema index and object cache are persisted as
	// JSON. Empty disables persistence.
	Path string `json:"path"`

	// Per-category TTLs, in seconds. Zero means the built-in default.
	RoutinesTTLSeconds    int `json:"routines_ttl_seconds"`
	ConstraintsTTLSeconds int `json:"constraints_ttl_seconds"`
	IndexesTTLSeconds     int `json:"indexes_ttl_seconds"`
	TypesTTLSeconds       int `json:"types_ttl_seconds"`

	// AttributeSampleSize caps how many unloaded entities an attribute
	// search will describe on demand.
	AttributeSampleSize int `json:"attribute_sample_size"`
}

// QueryConfig controls guarded statement execution.
type QueryConfig struct {
	// DefaultTimeoutSeconds applies to statements no timeout rule matches.
	DefaultTimeoutSeconds int `json:"default_timeout_seconds"`

	// MaxSQLLength rejects oversized statement text before classification.
	MaxSQLLength int `json:"max_sql_length"`

	// DefaultMaxRows caps read result sets when the caller does not.
	DefaultMaxRows int `json:"default_max_rows"`

	// TimeoutRules override the default timeout, first match wins.
	TimeoutRules []TimeoutRule `json:"timeout_rules,omitempty"`
}

// TimeoutRule maps a statement regexp to a timeout.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule appends guidance to errors whose message matches Pattern.
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// SanitizationRule rewrites matching substrings in read result values
// before they leave the engine.
type SanitizationRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description,omitempty"`
}

// Config is the engine configuration. The zero value is usable: every field
// has a default applied by New.
type Config struct {
	Pool  PoolConfig  `json:"pool"`
	Cache CacheConfig `json:"cache"`
	Query QueryConfig `json:"query"`

	// ReadOnly rejects write-classified statements and runs read
	// transactions with the store's read-only setting.
	ReadOnly bool `json:"read_only"`

	// TargetSchema is the namespace whose entities are indexed.
	// Defaults to "public".
	TargetSchema string `json:"target_schema"`

	// Timezone is applied to each new connection when set.
	Timezone string `json:"timezone,omitempty"`

	ErrorPrompts []ErrorPromptRule  `json:"error_prompts,omitempty"`
	Sanitization []SanitizationRule `json:"sanitization,omitempty"`
}

// Built-in defaults, applied to zero-valued fields.
const (
	defaultMinConns              = 2
	defaultMaxConns              = 10
	defaultIncrement             = 1
	defaultAcquireTimeoutSeconds = 30
	defaultQueryTimeoutSeconds   = 30
	defaultMaxSQLLength          = 100_000
	defaultMaxRows               = 100
	defaultRoutinesTTL           = 30 * time.Minute
	defaultCategoryTTL           = time.Hour
	defaultAttributeSampleSize   = 100
	defaultTargetSchema          = "public"
)

// withDefaults returns a copy with defaults filled in. Panics on negative
// sizing, which is always a programming error.
func (c Config) withDefaults() Config {
	if c.Pool.MinConns < 0 || c.Pool.MaxConns < 0 || c.Pool.Increment < 0 {
		panic(fmt.Sprintf("dbctx: negative pool sizing: %+v", c.Pool))
	}
	if c.Pool.MinConns == 0 {
		c.Pool.MinConns = defaultMinConns
	}
	if c.Pool.MaxConns == 0 {
		c.Pool.MaxConns = defaultMaxConns
	}
	if c.Pool.Increment == 0 {
		c.Pool.Increment = defaultIncrement
	}
	if c.Pool.AcquireTimeoutSeconds == 0 {
		c.Pool.AcquireTimeoutSeconds = defaultAcquireTimeoutSeconds
	}
	if c.Query.DefaultTimeoutSeconds == 0 {
		c.Query.DefaultTimeoutSeconds = defaultQueryTimeoutSeconds
	}
	if c.Query.MaxSQLLength == 0 {
		c.Query.MaxSQLLength = defaultMaxSQLLength
	}
	if c.Query.DefaultMaxRows == 0 {
		c.Query.DefaultMaxRows = defaultMaxRows
	}
	if c.Cache.AttributeSampleSize == 0 {
		c.Cache.AttributeSampleSize = defaultAttributeSampleSize
	}
	if c.TargetSchema == "" {
		c.TargetSchema = defaultTargetSchema
	}
	return c
}

// cacheTTLs builds the per-category TTL table from the config.
func (c Config) cacheTTLs() map[string]time.Duration {
	ttl := func(seconds int, fallback time.Duration) time.Duration {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return fallback
	}
	return map[string]time.Duration{
		CategoryRoutines:    ttl(c.Cache.RoutinesTTLSeconds, defaultRoutinesTTL),
		CategoryConstraints: ttl(c.Cache.ConstraintsTTLSeconds, defaultCategoryTTL),
		CategoryIndexes:     ttl(c.Cache.IndexesTTLSeconds, defaultCategoryTTL),
		CategoryTypes:       ttl(c.Cache.TypesTTLSeconds, defaultCategoryTTL),
	}
}

// ConnectionConfig holds the pieces of the store connection string, minus
// the password, which is taken from the environment or prompted.
type ConnectionConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	User    string `json:"user"`
	DBName  string `json:"dbname"`
	SSLMode string `json:"sslmode,omitempty"`
}

// ServerSettings configure the MCP server transport.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path,omitempty"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is a zerolog level string: trace, debug, info, warn, error.
	Level string `json:"level"`

	// Format is "console" or "json".
	Format string `json:"format"`

	// Output is a file path, or empty for stderr.
	Output string `json:"output,omitempty"`
}

// ServerConfig is the full configuration file consumed by the serve command.
type ServerConfig struct {
	Config

	Connection ConnectionConfig `json:"connection"`
	Server     ServerSettings   `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
}

// LoadServerConfig reads a ServerConfig from a JSON file.
func LoadServerConfig(path string) (*ServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg ServerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
