package dbctx

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/dbctx/dbctx/driver"
)

// fakeRows serves pre-canned result rows.
type fakeRows struct {
	columns []string
	data    [][]any
	idx     int
	err     error
	closed  bool
}

func (r *fakeRows) Columns() []string { return r.columns }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.idx-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(row))
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case *bool:
			*ptr = row[i].(bool)
		case *int64:
			*ptr = row[i].(int64)
		case *any:
			*ptr = row[i]
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) Close()     { r.closed = true }

// fakeConn routes queries through caller-provided hooks and counts
// transaction outcomes.
type fakeConn struct {
	mu        sync.Mutex
	queryFn   func(sql string, args []any) (driver.Rows, error)
	execFn    func(sql string, args []any) (int64, error)
	commits   int
	rollbacks int
	executed  []string
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (driver.Rows, error) {
	c.mu.Lock()
	c.executed = append(c.executed, sql)
	fn := c.queryFn
	c.mu.Unlock()
	if fn == nil {
		return &fakeRows{}, nil
	}
	return fn(sql, args)
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	c.mu.Lock()
	c.executed = append(c.executed, sql)
	fn := c.execFn
	c.mu.Unlock()
	if fn == nil {
		return 0, nil
	}
	return fn(sql, args)
}

func (c *fakeConn) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits++
	return nil
}

func (c *fakeConn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbacks++
	return nil
}

func (c *fakeConn) Ping(ctx context.Context) error  { return nil }
func (c *fakeConn) Close(ctx context.Context) error { return nil }

func (c *fakeConn) commitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

func (c *fakeConn) rollbackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbacks
}

// fakeDriver hands out the same fakeConn to every acquirer.
type fakeDriver struct {
	conn *fakeConn
	plan driver.PlanSupport
}

func (d *fakeDriver) Connect(ctx context.Context) (driver.Conn, error) {
	return d.conn, nil
}

func (d *fakeDriver) Plan(sql string) driver.PlanSupport {
	if d.plan.Read != "" {
		return d.plan
	}
	return driver.PlanSupport{Read: "EXPLAIN " + sql}
}

// newTestEngine builds an engine over a fake driver with a tiny pool and an
// in-memory filesystem.
func newTestEngine(t *testing.T, drv driver.Driver, mutate func(*Config)) *DBContext {
	t.Helper()
	config := Config{
		Pool: PoolConfig{MinConns: 1, MaxConns: 2, AcquireTimeoutSeconds: 5},
	}
	if mutate != nil {
		mutate(&config)
	}
	d, err := NewWithDriver(drv, config, zerolog.Nop(), WithFilesystem(afero.NewMemMapFs()))
	if err != nil {
		t.Fatalf("NewWithDriver: %v", err)
	}
	t.Cleanup(func() { d.Close(context.Background()) })
	return d
}

// fakeStore is a scriptable entityStore for schema index tests.
type fakeStore struct {
	mu          sync.Mutex
	universe    []string
	details     map[string]*EntityDetail
	namesErr    error
	namesCalls  int
	detailCalls []string
}

func (s *fakeStore) EntityNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namesCalls++
	if s.namesErr != nil {
		return nil, s.namesErr
	}
	return append([]string(nil), s.universe...), nil
}

func (s *fakeStore) EntityDetail(ctx context.Context, name string) (*EntityDetail, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls = append(s.detailCalls, name)
	d, ok := s.details[name]
	if !ok {
		return nil, false, nil
	}
	cp := *d
	return &cp, true, nil
}

func (s *fakeStore) detailCallsFor(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.detailCalls {
		if c == name {
			n++
		}
	}
	return n
}
