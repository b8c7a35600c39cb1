// Package node provides the connection-managed adapter that issues
// balance lookups against the node's BalanceSource.
//
// The client owns the NodeConnection for the life of the process,
// enforces per-query deadlines, serializes access to single-flight
// sources and re-establishes the connection after repeated timeouts.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/types"
)

// DefaultMaxConsecutiveTimeouts is the number of back-to-back
// timeouts after which the client reconnects.
const DefaultMaxConsecutiveTimeouts = 3

const lookupOp = "lookup"

// Observer receives the outcome of every backend call. The metrics
// package provides one.
type Observer interface {
	ObserveLookup(kind string, d time.Duration)
	ObserveReconnect(err error)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l.Named("node") }
}

// WithMaxInFlight bounds the number of concurrent backend calls.
// Zero means unbounded unless the source is single-flight.
func WithMaxInFlight(n int64) Option {
	return func(c *Client) { c.maxInFlight = n }
}

// WithMaxConsecutiveTimeouts sets the reconnect threshold. Zero or a
// negative value disables reconnects.
func WithMaxConsecutiveTimeouts(n int) Option {
	return func(c *Client) { c.maxTimeouts = n }
}

// WithObserver installs an Observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.obs = o }
}

// Client issues balance lookups. Safe for concurrent use.
type Client struct {
	src walletrpc.BalanceSource
	log *zap.Logger
	obs Observer

	maxInFlight int64
	maxTimeouts int
	sem         *semaphore.Weighted

	// Optional interfaces (nil if not supported).
	reconnector walletrpc.Reconnector
	pinger      walletrpc.Pinger

	timeouts atomic.Int32
	// reconnectMu keeps a single reconnect in flight.
	reconnectMu sync.Mutex
	closed      atomic.Bool
}

// NewClient wraps src. The client takes ownership of src and closes it
// in Close.
func NewClient(src walletrpc.BalanceSource, opts ...Option) *Client {
	c := &Client{
		src:         src,
		log:         zap.NewNop(),
		maxTimeouts: DefaultMaxConsecutiveTimeouts,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.reconnector, _ = src.(walletrpc.Reconnector)
	c.pinger, _ = src.(walletrpc.Pinger)

	limit := c.maxInFlight
	if s, ok := src.(walletrpc.Serial); ok && s.SingleFlight() {
		limit = 1
	}
	if limit > 0 {
		c.sem = semaphore.NewWeighted(limit)
	}
	return c
}

// GetBalance looks up q.Key, giving up at q.Deadline.
//
// Failures are *walletrpc.Error values: NotFound for keys the node
// does not know, Unavailable when the node is unreachable or busy,
// Timeout when the deadline passes first, Canceled when ctx is
// cancelled by the caller, Internal for anything else.
func (c *Client) GetBalance(ctx context.Context, q types.BalanceQuery) (types.Balance, error) {
	if c.closed.Load() {
		return types.Balance{}, walletrpc.NewError(walletrpc.KindUnavailable, lookupOp, errors.New("node client closed"))
	}

	if !q.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, q.Deadline)
		defer cancel()
	}

	start := time.Now()
	bal, reached, err := c.lookup(ctx, q.Key)
	elapsed := time.Since(start)

	if err == nil {
		c.timeouts.Store(0)
		c.observe("ok", elapsed)
		return bal, nil
	}

	kind := walletrpc.Classify(err)
	c.observe(kind.String(), elapsed)

	switch kind {
	case walletrpc.KindTimeout:
		c.log.Warn("balance lookup timed out",
			zap.String("request_id", q.RequestID),
			zap.String("key", q.Key.Short()),
			zap.Bool("queued", !reached),
			zap.Duration("elapsed", elapsed))
		// Only a node that failed to answer counts toward a reconnect;
		// waiting behind other calls says nothing about the connection.
		if reached {
			c.noteTimeout()
		}
	case walletrpc.KindNotFound:
		// The node answered, so the connection is healthy.
		c.timeouts.Store(0)
	case walletrpc.KindInternal:
		c.log.Error("balance lookup failed",
			zap.String("request_id", q.RequestID),
			zap.String("key", q.Key.Short()),
			zap.Error(err))
	default:
		c.log.Debug("balance lookup failed",
			zap.String("request_id", q.RequestID),
			zap.Stringer("kind", kind),
			zap.Error(err))
	}
	return types.Balance{}, walletrpc.NewError(kind, lookupOp, err)
}

type lookupResult struct {
	bal types.Balance
	err error
}

// lookup runs the backend call on its own goroutine so the deadline is
// enforced even when the source ignores ctx. reached reports whether
// the call got past the in-flight limit and was handed to the source.
func (c *Client) lookup(ctx context.Context, key types.PublicKey) (types.Balance, bool, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return types.Balance{}, false, fmt.Errorf("waiting for node: %w", ctx.Err())
		}
		defer c.sem.Release(1)
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan lookupResult, 1)
	go func() {
		bal, err := c.src.LookupBalance(callCtx, key)
		done <- lookupResult{bal: bal, err: err}
	}()

	select {
	case r := <-done:
		// A source may return its own wrapped error after ctx expired;
		// report the deadline rather than the side effect.
		if r.err != nil && ctx.Err() != nil {
			return types.Balance{}, true, ctx.Err()
		}
		return r.bal, true, r.err
	case <-ctx.Done():
		return types.Balance{}, true, ctx.Err()
	}
}

func (c *Client) noteTimeout() {
	n := c.timeouts.Add(1)
	if c.maxTimeouts <= 0 || int(n) < c.maxTimeouts || c.reconnector == nil {
		return
	}
	go c.reconnect()
}

func (c *Client) reconnect() {
	if !c.reconnectMu.TryLock() {
		return
	}
	defer c.reconnectMu.Unlock()
	if c.closed.Load() || int(c.timeouts.Load()) < c.maxTimeouts {
		return
	}

	c.log.Info("reconnecting to node after consecutive timeouts",
		zap.Int32("timeouts", c.timeouts.Load()))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := c.reconnector.Reconnect(ctx)
	if c.obs != nil {
		c.obs.ObserveReconnect(err)
	}
	if err != nil {
		c.log.Warn("node reconnect failed", zap.Error(err))
		return
	}
	c.timeouts.Store(0)
}

// Ping checks whether the node is reachable. Sources without a cheap
// probe are assumed reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New("node client closed")
	}
	if c.pinger == nil {
		return nil
	}
	return c.pinger.Ping(ctx)
}

// ConsecutiveTimeouts returns the current timeout streak.
func (c *Client) ConsecutiveTimeouts() int {
	return int(c.timeouts.Load())
}

// Close closes the underlying source. Further lookups fail with
// Unavailable.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	return c.src.Close()
}

func (c *Client) observe(kind string, d time.Duration) {
	if c.obs != nil {
		c.obs.ObserveLookup(kind, d)
	}
}
