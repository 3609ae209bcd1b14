// Package postgres implements the dbctx store driver on top of pgx.
package postgres

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dbctx/dbctx/driver"
)

// Config holds driver-level settings.
type Config struct {
	// ConnString is the PostgreSQL connection string (must include credentials).
	ConnString string

	// ReadOnly sets default_transaction_read_only on every new session, so
	// the read-only policy is enforced by the server as well as the engine.
	ReadOnly bool

	// Timezone, when non-empty, is applied to every new session.
	Timezone string
}

// Driver opens pgx connections. Safe for concurrent use.
type Driver struct {
	config  Config
	pgxConf *pgx.ConnConfig
}

// New parses the connection string and returns a Driver.
func New(config Config) (*Driver, error) {
	pgxConf, err := pgx.ParseConfig(config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	pgxConf.DefaultQueryExecMode = pgx.QueryExecModeExec
	return &Driver{config: config, pgxConf: pgxConf}, nil
}

// Connect establishes one session and applies session-level settings.
func (d *Driver) Connect(ctx context.Context) (driver.Conn, error) {
	pc, err := pgx.ConnectConfig(ctx, d.pgxConf.Copy())
	if err != nil {
		return nil, err
	}
	if d.config.ReadOnly {
		if _, err := pc.Exec(ctx, "SET default_transaction_read_only = on"); err != nil {
			pc.Close(ctx)
			return nil, fmt.Errorf("failed to SET default_transaction_read_only: %w", err)
		}
	}
	if d.config.Timezone != "" {
		escaped := strings.ReplaceAll(d.config.Timezone, "'", "''")
		if _, err := pc.Exec(ctx, fmt.Sprintf("SET timezone = '%s'", escaped)); err != nil {
			pc.Close(ctx)
			return nil, fmt.Errorf("failed to SET timezone: %w", err)
		}
	}
	return &conn{pg: pc}, nil
}

// Plan returns plan support for PostgreSQL. EXPLAIN is itself a plain read;
// there is no scratch plan storage to prepare or clean up.
func (d *Driver) Plan(sql string) driver.PlanSupport {
	return driver.PlanSupport{Read: "EXPLAIN " + sql}
}

// ConnectHint implements the optional connect-hint capability with the
// package-level classifier.
func (d *Driver) ConnectHint(err error) string {
	return ConnectHint(err)
}

type conn struct {
	pg   *pgx.Conn
	inTx bool
}

// ensureTx begins a transaction before the first statement on this session.
func (c *conn) ensureTx(ctx context.Context) error {
	if c.inTx {
		return nil
	}
	if _, err := c.pg.Exec(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	c.inTx = true
	return nil
}

func (c *conn) Query(ctx context.Context, sql string, args ...any) (driver.Rows, error) {
	if err := c.ensureTx(ctx); err != nil {
		return nil, err
	}
	pgRows, err := c.pg.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &rows{pg: pgRows}, nil
}

func (c *conn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := c.ensureTx(ctx); err != nil {
		return 0, err
	}
	tag, err := c.pg.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *conn) Commit(ctx context.Context) error {
	if !c.inTx {
		return nil
	}
	c.inTx = false
	if _, err := c.pg.Exec(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (c *conn) Rollback(ctx context.Context) error {
	if !c.inTx {
		return nil
	}
	c.inTx = false
	if _, err := c.pg.Exec(ctx, "ROLLBACK"); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

func (c *conn) Ping(ctx context.Context) error {
	return c.pg.Ping(ctx)
}

func (c *conn) Close(ctx context.Context) error {
	return c.pg.Close(ctx)
}

type rows struct {
	pg pgx.Rows
}

func (r *rows) Columns() []string {
	descs := r.pg.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, fd := range descs {
		cols[i] = fd.Name
	}
	return cols
}

func (r *rows) Next() bool             { return r.pg.Next() }
func (r *rows) Scan(dest ...any) error { return r.pg.Scan(dest...) }
func (r *rows) Err() error             { return r.pg.Err() }
func (r *rows) Close()                 { r.pg.Close() }

func (r *rows) Values() ([]any, error) {
	vals, err := r.pg.Values()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = convertValue(v)
	}
	return out, nil
}

// convertValue converts a pgx-returned value to a JSON-friendly Go type.
func convertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case netip.Prefix:
		return val.String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		// bytea, xml
		return base64.StdEncoding.EncodeToString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = convertValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	default:
		return val
	}
}

func convertFloat(f float64) any {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return f
}

// Authentication and protocol-incompatibility error signatures. These map to
// remediation guidance rather than opaque passthrough.
const (
	codeInvalidPassword      = "28P01"
	codeInvalidAuthorization = "28000"
	codeDatabaseUndefined    = "3D000"
	codeProtocolViolation    = "08P02"
)

// ConnectHint inspects a connection-establishment error and returns
// actionable remediation guidance for known authentication and protocol
// failure signatures. Returns "" for errors that should propagate as-is.
func ConnectHint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeInvalidPassword:
			return "Password authentication failed. Verify the username and password in the connection string, and check pg_hba.conf allows password auth for this host."
		case codeInvalidAuthorization:
			return "The server rejected the authorization. Verify the role exists, is allowed to log in (LOGIN attribute), and that pg_hba.conf permits connections from this host."
		case codeDatabaseUndefined:
			return "The requested database does not exist. Verify the database name in the connection string."
		case codeProtocolViolation:
			return "Protocol violation during connection setup. The server may be expecting a different authentication method (e.g. md5 vs scram-sha-256); update the role's password to regenerate its verifier."
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "SCRAM"):
		return "SCRAM authentication failed. The stored password verifier may predate scram-sha-256; re-set the role's password on the server to regenerate it."
	case strings.Contains(msg, "SSL is not enabled"):
		return "The server does not accept SSL connections. Add sslmode=disable to the connection string or enable SSL on the server."
	case strings.Contains(msg, "server refused TLS"):
		return "The server refused TLS negotiation. Check the sslmode setting against the server's ssl configuration."
	}
	return ""
}
