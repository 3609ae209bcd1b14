// Package driver defines the store driver abstraction used by dbctx.
//
// The engine never talks to a database client library directly; it goes
// through Driver/Conn/Rows so alternate backing stores (and test fakes) can
// be substituted. The concrete PostgreSQL implementation lives in
// driver/postgres.
package driver

import "context"

// Driver opens connections to the backing store.
type Driver interface {
	// Connect establishes a single new store session. The returned Conn is
	// owned exclusively by the caller until Close.
	Connect(ctx context.Context) (Conn, error)

	// Plan describes how the store materializes execution plans for the
	// given read statement. See PlanSupport.
	Plan(sql string) PlanSupport
}

// Conn is one live store session. Statements run inside an implicit
// transaction: the first Query/Exec begins it, Commit or Rollback ends it.
// Conn is not safe for concurrent use.
type Conn interface {
	// Query executes a statement and returns its result rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// Exec executes a statement without returning rows and reports the
	// number of rows affected.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Commit commits the current transaction, if any.
	Commit(ctx context.Context) error

	// Rollback discards the current transaction, if any. Safe to call when
	// no transaction is open.
	Rollback(ctx context.Context) error

	// Ping verifies the session is still alive.
	Ping(ctx context.Context) error

	// Close terminates the session.
	Close(ctx context.Context) error
}

// Rows is a cursor over a query result.
type Rows interface {
	// Columns returns the result column names, in order.
	Columns() []string

	// Next advances to the next row. Returns false when exhausted or on
	// error; check Err afterwards.
	Next() bool

	// Scan copies the current row into dest, one destination per column.
	Scan(dest ...any) error

	// Values returns the current row as JSON-friendly Go values.
	Values() ([]any, error)

	// Err returns the error, if any, encountered during iteration.
	Err() error

	// Close releases the cursor. Idempotent.
	Close()
}

// PlanSupport describes the statements needed to produce an execution plan.
//
// Stores that materialize plans into scratch storage (Oracle-style plan
// tables) set all three fields: Prepare writes the plan, Read retrieves it,
// and Cleanup clears the scratch storage — the cleanup must be committed,
// which makes it subject to the engine's read-only gate. Stores whose plan
// statement is itself a plain read (PostgreSQL EXPLAIN) set only Read and
// leave Prepare and Cleanup empty.
type PlanSupport struct {
	Prepare string
	Read    string
	Cleanup string
}
