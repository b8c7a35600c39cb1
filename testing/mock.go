// Package walletrpctest provides test utilities for the balance
// gateway, including a configurable BalanceSource mock, a handler
// test harness, and a compliance suite for BalanceSource
// implementations.
package walletrpctest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mr-tron/base58"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/types"
)

// Compile-time check that MockSource satisfies all interfaces.
var (
	_ walletrpc.BalanceSource = (*MockSource)(nil)
	_ walletrpc.Reconnector   = (*MockSource)(nil)
	_ walletrpc.Pinger        = (*MockSource)(nil)
	_ walletrpc.Serial        = (*MockSource)(nil)
)

// MockSource is a configurable BalanceSource for handler and client
// tests. All methods are configurable via function fields.
// Unconfigured lookups answer from Balances, and report
// ErrUnknownKey for keys missing from it.
type MockSource struct {
	mu       sync.Mutex
	balances map[types.PublicKey]types.Balance

	// Serial makes SingleFlight report true.
	Serial bool

	// Configurable handlers. If nil, defaults are used.
	LookupFn    func(context.Context, types.PublicKey) (types.Balance, error)
	ReconnectFn func(context.Context) error
	PingFn      func(context.Context) error

	// Call counters (atomic for concurrent access).
	LookupCalls    atomic.Int64
	ReconnectCalls atomic.Int64
	PingCalls      atomic.Int64
	CloseCalls     atomic.Int64

	// InFlight and MaxInFlight track concurrent lookups.
	InFlight    atomic.Int64
	MaxInFlight atomic.Int64
}

// NewMockSource returns a MockSource with no balances.
func NewMockSource() *MockSource {
	return &MockSource{balances: make(map[types.PublicKey]types.Balance)}
}

// SetBalance records the balance the default lookup reports for key.
func (m *MockSource) SetBalance(key types.PublicKey, nicks types.Amount, notes uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances == nil {
		m.balances = make(map[types.PublicKey]types.Balance)
	}
	m.balances[key] = types.Balance{Nicks: nicks, Notes: notes}
}

func (m *MockSource) LookupBalance(ctx context.Context, key types.PublicKey) (types.Balance, error) {
	m.LookupCalls.Add(1)
	n := m.InFlight.Add(1)
	defer m.InFlight.Add(-1)
	for {
		max := m.MaxInFlight.Load()
		if n <= max || m.MaxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	if m.LookupFn != nil {
		return m.LookupFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[key]
	if !ok {
		return types.Balance{}, walletrpc.ErrUnknownKey
	}
	return b, nil
}

func (m *MockSource) Reconnect(ctx context.Context) error {
	m.ReconnectCalls.Add(1)
	if m.ReconnectFn != nil {
		return m.ReconnectFn(ctx)
	}
	return nil
}

func (m *MockSource) Ping(ctx context.Context) error {
	m.PingCalls.Add(1)
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	return nil
}

func (m *MockSource) SingleFlight() bool { return m.Serial }

func (m *MockSource) Close() error {
	m.CloseCalls.Add(1)
	return nil
}

// --- Helper Factories ---

// Key returns a deterministic, well-formed public key derived from
// seed.
func Key(seed byte) types.PublicKey {
	var pk types.PublicKey
	for i := range pk {
		pk[i] = seed ^ byte(i*31+7)
	}
	pk[0] = seed | 0x80
	return pk
}

// EncodedKey returns the base58 text form of Key(seed).
func EncodedKey(seed byte) string {
	k := Key(seed)
	return base58.Encode(k[:])
}

// BlockUntilDone is a LookupFn that never answers and returns only
// once ctx is done, modelling a stalled node that honours
// cancellation.
func BlockUntilDone(ctx context.Context, _ types.PublicKey) (types.Balance, error) {
	<-ctx.Done()
	return types.Balance{}, ctx.Err()
}
