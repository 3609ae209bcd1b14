// Package pool manages a bounded set of live store connections.
//
// The pool is created lazily: the first Acquire races concurrent callers
// through a double-checked mutex so exactly one caller pre-warms the minimum
// connections while the rest wait on it. Exhausted pools block callers up to
// a configured timeout rather than failing fast.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dbctx/dbctx/driver"
)

var (
	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("connection pool is closed")

	// ErrTimeout is returned when no connection became available within the
	// configured acquire timeout.
	ErrTimeout = errors.New("timed out waiting for a pool connection")
)

// Config holds pool sizing and wait behavior.
type Config struct {
	// MinConns connections are pre-warmed when the pool is first used.
	MinConns int
	// MaxConns bounds the number of live connections.
	MaxConns int
	// Increment is how many connections are dialed when the pool grows.
	Increment int
	// AcquireTimeout bounds how long Acquire blocks when the pool is
	// exhausted before failing with ErrTimeout.
	AcquireTimeout time.Duration
}

// Metrics is a point-in-time snapshot of pool state.
type Metrics struct {
	Live     int   `json:"live"`
	Idle     int   `json:"idle"`
	MinConns int   `json:"min_conns"`
	MaxConns int   `json:"max_conns"`
	Acquires int64 `json:"acquires"`
	Timeouts int64 `json:"timeouts"`
	Started  bool  `json:"started"`
}

// Pool is a bounded set of reusable live connections. Safe for concurrent use.
type Pool struct {
	drv     driver.Driver
	config  Config
	logger  zerolog.Logger
	wrapErr func(error) error

	initMu  sync.Mutex
	started atomic.Bool

	mu   sync.Mutex // guards live
	live int

	idle      chan driver.Conn
	done      chan struct{}
	closeOnce sync.Once

	acquires atomic.Int64
	timeouts atomic.Int64
}

// New creates a Pool. wrapErr classifies connection-establishment errors
// (authentication and protocol failures get remediation guidance); passing
// nil leaves errors untouched. Panics on invalid sizing, matching how the
// engine treats configuration mistakes.
func New(drv driver.Driver, config Config, logger zerolog.Logger, wrapErr func(error) error) *Pool {
	if config.MaxConns <= 0 {
		panic("pool: max_conns must be > 0")
	}
	if config.MinConns < 0 || config.MinConns > config.MaxConns {
		panic("pool: min_conns must be within [0, max_conns]")
	}
	if config.Increment <= 0 {
		config.Increment = 1
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 30 * time.Second
	}
	if wrapErr == nil {
		wrapErr = func(err error) error { return err }
	}
	return &Pool{
		drv:     drv,
		config:  config,
		logger:  logger,
		wrapErr: wrapErr,
		idle:    make(chan driver.Conn, config.MaxConns),
		done:    make(chan struct{}),
	}
}

// ensureStarted pre-warms MinConns connections exactly once. A failed warmup
// leaves the pool unstarted so a later caller can retry.
func (p *Pool) ensureStarted(ctx context.Context) error {
	if p.started.Load() {
		return nil
	}
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.started.Load() {
		return nil
	}

	warmed := make([]driver.Conn, 0, p.config.MinConns)
	for i := 0; i < p.config.MinConns; i++ {
		c, err := p.drv.Connect(ctx)
		if err != nil {
			for _, w := range warmed {
				w.Close(ctx)
			}
			return p.wrapErr(err)
		}
		warmed = append(warmed, c)
	}
	for _, c := range warmed {
		p.idle <- c
	}
	p.mu.Lock()
	p.live = len(warmed)
	p.mu.Unlock()
	p.started.Store(true)
	p.logger.Debug().Int("min_conns", p.config.MinConns).Msg("connection pool initialized")
	return nil
}

// Acquire returns a live connection, blocking until one is available, the
// acquire timeout elapses (ErrTimeout), the context is cancelled, or the
// pool is closed (ErrClosed).
func (p *Pool) Acquire(ctx context.Context) (driver.Conn, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}
	if err := p.ensureStarted(ctx); err != nil {
		return nil, err
	}
	p.acquires.Add(1)

	select {
	case c := <-p.idle:
		return c, nil
	default:
	}

	if c, err := p.grow(ctx); err != nil {
		return nil, err
	} else if c != nil {
		return c, nil
	}

	timer := time.NewTimer(p.config.AcquireTimeout)
	defer timer.Stop()
	select {
	case c := <-p.idle:
		return c, nil
	case <-p.done:
		return nil, ErrClosed
	case <-timer.C:
		p.timeouts.Add(1)
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// grow dials up to Increment new connections if the pool is below MaxConns.
// Returns the first new connection for the calling acquirer and parks the
// rest as idle; returns (nil, nil) when the pool is already at capacity.
func (p *Pool) grow(ctx context.Context) (driver.Conn, error) {
	p.mu.Lock()
	if p.live >= p.config.MaxConns {
		p.mu.Unlock()
		return nil, nil
	}
	n := p.config.Increment
	if room := p.config.MaxConns - p.live; n > room {
		n = room
	}
	p.live += n
	p.mu.Unlock()

	var first driver.Conn
	for i := 0; i < n; i++ {
		c, err := p.drv.Connect(ctx)
		if err != nil {
			p.mu.Lock()
			p.live -= n - i
			p.mu.Unlock()
			if first != nil {
				// Keep the connection we already have; the warmup part failed.
				p.logger.Warn().Err(err).Msg("pool growth partially failed")
				return first, nil
			}
			return nil, p.wrapErr(err)
		}
		if first == nil {
			first = c
		} else {
			p.Release(c)
		}
	}
	return first, nil
}

// Release returns a connection to the pool. After Close, released
// connections are terminated instead. A redundant release never corrupts
// pool accounting: overflow connections are closed, not re-queued.
func (p *Pool) Release(c driver.Conn) {
	if c == nil {
		return
	}
	select {
	case <-p.done:
		c.Close(context.Background())
		p.mu.Lock()
		if p.live > 0 {
			p.live--
		}
		p.mu.Unlock()
		return
	default:
	}
	select {
	case p.idle <- c:
	default:
		p.logger.Warn().Msg("pool release overflow, closing connection")
		c.Close(context.Background())
		p.mu.Lock()
		if p.live > 0 {
			p.live--
		}
		p.mu.Unlock()
	}
}

// Close shuts the pool down: idle connections are closed immediately,
// connections still held by callers are closed on their release, and
// subsequent Acquire calls fail with ErrClosed.
func (p *Pool) Close(ctx context.Context) {
	p.closeOnce.Do(func() {
		close(p.done)
		for {
			select {
			case c := <-p.idle:
				c.Close(ctx)
				p.mu.Lock()
				if p.live > 0 {
					p.live--
				}
				p.mu.Unlock()
			default:
				p.logger.Debug().Msg("connection pool closed")
				return
			}
		}
	})
}

// Metrics returns a snapshot of pool state.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	live := p.live
	p.mu.Unlock()
	return Metrics{
		Live:     live,
		Idle:     len(p.idle),
		MinConns: p.config.MinConns,
		MaxConns: p.config.MaxConns,
		Acquires: p.acquires.Load(),
		Timeouts: p.timeouts.Load(),
		Started:  p.started.Load(),
	}
}
