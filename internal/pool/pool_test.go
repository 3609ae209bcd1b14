package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dbctx/dbctx/driver"
)

// fakeConn is a minimal driver.Conn that records whether it was closed.
type fakeConn struct {
	closed atomic.Bool
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (driver.Rows, error) {
	return nil, errors.New("not implemented")
}
func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return 0, errors.New("not implemented")
}
func (c *fakeConn) Commit(ctx context.Context) error   { return nil }
func (c *fakeConn) Rollback(ctx context.Context) error { return nil }
func (c *fakeConn) Ping(ctx context.Context) error     { return nil }
func (c *fakeConn) Close(ctx context.Context) error {
	c.closed.Store(true)
	return nil
}

// fakeDriver counts dials and can be told to start failing.
type fakeDriver struct {
	mu    sync.Mutex
	dials int
	fail  error
	conns []*fakeConn
}

func (d *fakeDriver) Connect(ctx context.Context) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail != nil {
		return nil, d.fail
	}
	c := &fakeConn{}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDriver) Plan(sql string) driver.PlanSupport {
	return driver.PlanSupport{Read: "EXPLAIN " + sql}
}

func (d *fakeDriver) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDriver) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func newTestPool(t *testing.T, drv *fakeDriver, config Config) *Pool {
	t.Helper()
	p := New(drv, config, zerolog.Nop(), nil)
	t.Cleanup(func() { p.Close(context.Background()) })
	return p
}

func TestLazyStartAndWarmup(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	p := newTestPool(t, drv, Config{MinConns: 3, MaxConns: 5})

	if got := drv.dialCount(); got != 0 {
		t.Fatalf("dials before first Acquire = %d, want 0", got)
	}
	if p.Metrics().Started {
		t.Fatal("pool reports started before first Acquire")
	}

	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(c)

	if got := drv.dialCount(); got != 3 {
		t.Errorf("dials after first Acquire = %d, want MinConns = 3", got)
	}
	m := p.Metrics()
	if !m.Started || m.Live != 3 {
		t.Errorf("metrics after warmup = %+v, want started with 3 live", m)
	}
}

func TestFailedWarmupIsRetryable(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	drv.setFail(errors.New("store down"))
	p := newTestPool(t, drv, Config{MinConns: 2, MaxConns: 4})

	if _, err := p.Acquire(context.Background()); err == nil {
		t.Fatal("Acquire succeeded with failing driver")
	}
	if p.Metrics().Started {
		t.Fatal("pool marked started after failed warmup")
	}

	drv.setFail(nil)
	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after recovery: %v", err)
	}
	p.Release(c)
	if !p.Metrics().Started {
		t.Error("pool not started after successful retry")
	}
}

func TestWrapErrClassifiesDialFailures(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("wrapped dial failure")
	drv := &fakeDriver{}
	drv.setFail(errors.New("auth failed"))
	p := New(drv, Config{MinConns: 1, MaxConns: 2}, zerolog.Nop(), func(err error) error {
		return sentinel
	})
	defer p.Close(context.Background())

	if _, err := p.Acquire(context.Background()); !errors.Is(err, sentinel) {
		t.Errorf("Acquire error = %v, want wrapped sentinel", err)
	}
}

func TestGrowthBeyondMinConns(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	p := newTestPool(t, drv, Config{MinConns: 1, MaxConns: 3, Increment: 1})

	ctx := context.Background()
	var held []driver.Conn
	for i := 0; i < 3; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		held = append(held, c)
	}
	if got := p.Metrics().Live; got != 3 {
		t.Errorf("live = %d, want MaxConns = 3", got)
	}
	for _, c := range held {
		p.Release(c)
	}
}

func TestAcquireTimesOutWhenSaturated(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	p := newTestPool(t, drv, Config{
		MinConns:       1,
		MaxConns:       1,
		AcquireTimeout: 50 * time.Millisecond,
	})

	ctx := context.Background()
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	start := time.Now()
	_, err = p.Acquire(ctx)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("second Acquire error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("timed out after %v, before the acquire timeout", elapsed)
	}
	if got := p.Metrics().Timeouts; got != 1 {
		t.Errorf("timeout counter = %d, want 1", got)
	}

	// A released connection unblocks the next waiter.
	done := make(chan error, 1)
	go func() {
		c2, err := p.Acquire(ctx)
		if err == nil {
			p.Release(c2)
		}
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	p.Release(c)
	if err := <-done; err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	p := newTestPool(t, drv, Config{
		MinConns:       1,
		MaxConns:       1,
		AcquireTimeout: time.Minute,
	})

	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release(c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire error = %v, want context.DeadlineExceeded", err)
	}
}

func TestCloseFailsSubsequentAcquires(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	p := New(drv, Config{MinConns: 2, MaxConns: 2}, zerolog.Nop(), nil)

	ctx := context.Background()
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(c)
	p.Close(ctx)

	if _, err := p.Acquire(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after Close = %v, want ErrClosed", err)
	}
	for _, fc := range drv.conns {
		if !fc.closed.Load() {
			t.Error("idle connection not closed by Close")
		}
	}
}

func TestReleaseAfterCloseTerminatesConn(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	p := New(drv, Config{MinConns: 1, MaxConns: 1}, zerolog.Nop(), nil)

	ctx := context.Background()
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Close(ctx)
	p.Release(c)

	fc := c.(*fakeConn)
	if !fc.closed.Load() {
		t.Error("held connection not closed on release after Close")
	}
	if got := p.Metrics().Live; got != 0 {
		t.Errorf("live after release = %d, want 0", got)
	}
}

func TestSingleFlightWarmup(t *testing.T) {
	t.Parallel()
	drv := &fakeDriver{}
	p := newTestPool(t, drv, Config{MinConns: 2, MaxConns: 8})

	ctx := context.Background()
	var wg sync.WaitGroup
	conns := make(chan driver.Conn, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Acquire(ctx)
			if err != nil {
				t.Errorf("concurrent Acquire: %v", err)
				return
			}
			conns <- c
		}()
	}
	wg.Wait()
	close(conns)
	for c := range conns {
		p.Release(c)
	}

	// Warmup runs once; concurrent acquirers beyond MinConns grow the pool
	// but never past MaxConns.
	if got := p.Metrics().Live; got > 8 {
		t.Errorf("live = %d, exceeds MaxConns", got)
	}
	if got := drv.dialCount(); got > 8 {
		t.Errorf("dials = %d, exceeds MaxConns", got)
	}
}
