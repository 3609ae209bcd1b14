package dbctx

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/dbctx/dbctx/driver"
	"github.com/dbctx/dbctx/driver/postgres"
	"github.com/dbctx/dbctx/internal/objcache"
	"github.com/dbctx/dbctx/internal/pool"
	"github.com/dbctx/dbctx/internal/remedy"
	"github.com/dbctx/dbctx/internal/sanitize"
	"github.com/dbctx/dbctx/internal/timeout"
)

// DBContext is the metadata-access engine: a lazily started connection pool,
// a two-tier metadata cache, and a guarded statement executor over one
// backing store.
type DBContext struct {
	config    Config
	drv       driver.Driver
	pool      *pool.Pool
	catalog   *catalog
	index     *schemaIndex
	cache     *objcache.Cache
	timeouts  *timeout.Resolver
	sanitizer *sanitize.Sanitizer
	prompts   *remedy.Matcher
	logger    zerolog.Logger
}

// Option adjusts engine construction.
type Option func(*options)

type options struct {
	fs afero.Fs
}

// WithFilesystem overrides the filesystem used for cache persistence.
func WithFilesystem(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// New builds an engine over a PostgreSQL store. No connection is made until
// the first operation needs one.
func New(connString string, config Config, logger zerolog.Logger, opts ...Option) (*DBContext, error) {
	if connString == "" {
		panic("dbctx: empty connection string")
	}
	config = config.withDefaults()
	drv, err := postgres.New(postgres.Config{
		ConnString: connString,
		ReadOnly:   config.ReadOnly,
		Timezone:   config.Timezone,
	})
	if err != nil {
		return nil, err
	}
	return NewWithDriver(drv, config, logger, opts...)
}

// NewWithDriver builds an engine over an arbitrary store driver.
func NewWithDriver(drv driver.Driver, config Config, logger zerolog.Logger, opts ...Option) (*DBContext, error) {
	config = config.withDefaults()
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	timeouts, err := timeout.NewResolver(
		time.Duration(config.Query.DefaultTimeoutSeconds)*time.Second,
		timeoutRules(config.Query.TimeoutRules),
	)
	if err != nil {
		return nil, fmt.Errorf("timeout rules: %w", err)
	}
	prompts, err := remedy.NewMatcher(promptRules(config.ErrorPrompts))
	if err != nil {
		return nil, fmt.Errorf("error prompts: %w", err)
	}
	sanitizer, err := sanitize.New(sanitizeRules(config.Sanitization))
	if err != nil {
		return nil, fmt.Errorf("sanitization rules: %w", err)
	}

	cache := objcache.New(config.cacheTTLs(), nil)
	p := pool.New(drv, pool.Config{
		MinConns:       config.Pool.MinConns,
		MaxConns:       config.Pool.MaxConns,
		Increment:      config.Pool.Increment,
		AcquireTimeout: time.Duration(config.Pool.AcquireTimeoutSeconds) * time.Second,
	}, logger, wrapConnectError(drv))
	cat := newCatalog(p, config.TargetSchema)

	d := &DBContext{
		config:    config,
		drv:       drv,
		pool:      p,
		catalog:   cat,
		index:     newSchemaIndex(cat, cache, o.fs, config.Cache.Path, config.Cache.AttributeSampleSize, logger),
		cache:     cache,
		timeouts:  timeouts,
		sanitizer: sanitizer,
		prompts:   prompts,
		logger:    logger.With().Str("component", "dbctx").Logger(),
	}
	return d, nil
}

func timeoutRules(rules []TimeoutRule) []timeout.Rule {
	out := make([]timeout.Rule, len(rules))
	for i, r := range rules {
		out[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	return out
}

func promptRules(rules []ErrorPromptRule) []remedy.Rule {
	out := make([]remedy.Rule, len(rules))
	for i, r := range rules {
		out[i] = remedy.Rule{Pattern: r.Pattern, Message: r.Message}
	}
	return out
}

func sanitizeRules(rules []SanitizationRule) []sanitize.Rule {
	out := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		out[i] = sanitize.Rule{Pattern: r.Pattern, Replacement: r.Replacement}
	}
	return out
}

// Initialize eagerly starts the pool and builds the schema index. Optional:
// every operation performs the same work on demand.
func (d *DBContext) Initialize(ctx context.Context) error {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	d.pool.Release(conn)
	return d.index.ensure(ctx)
}

// Ping verifies the store is reachable over a pooled connection.
func (d *DBContext) Ping(ctx context.Context) error {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer d.pool.Release(conn)
	return conn.Ping(ctx)
}

// Close releases all pooled connections. In-flight operations fail with
// ErrPoolClosed when they next touch the pool.
func (d *DBContext) Close(ctx context.Context) {
	d.pool.Close(ctx)
}
