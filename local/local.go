// Package local provides an in-process BalanceSource backed by an
// in-memory ledger of notes.
//
// It stands in for a node during development and tests, and backs the
// sidecar when no node is attached. Lookups involve no serialization
// and no I/O.
package local

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/spf13/viper"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/types"
)

// Compile-time interface check.
var _ walletrpc.BalanceSource = (*Ledger)(nil)

var errClosed = errors.New("ledger closed")

// Ledger maps public keys to the amounts of the notes they own.
// Safe for concurrent use.
type Ledger struct {
	mu     sync.RWMutex
	notes  map[types.PublicKey][]types.Amount
	closed bool
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{notes: make(map[types.PublicKey][]types.Amount)}
}

// Set replaces the notes of key. Calling Set with no amounts forgets
// the key.
func (l *Ledger) Set(key types.PublicKey, amounts ...types.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(amounts) == 0 {
		delete(l.notes, key)
		return
	}
	l.notes[key] = append([]types.Amount(nil), amounts...)
}

// Add appends a note of the given amount to key.
func (l *Ledger) Add(key types.PublicKey, amount types.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes[key] = append(l.notes[key], amount)
}

// Len returns the number of keys holding at least one note.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.notes)
}

// LookupBalance sums the notes of key. Keys without notes are
// reported as ErrUnknownKey.
func (l *Ledger) LookupBalance(ctx context.Context, key types.PublicKey) (types.Balance, error) {
	if err := ctx.Err(); err != nil {
		return types.Balance{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return types.Balance{}, fmt.Errorf("%w: %v", walletrpc.ErrUnreachable, errClosed)
	}
	notes, ok := l.notes[key]
	if !ok || len(notes) == 0 {
		return types.Balance{}, walletrpc.ErrUnknownKey
	}
	total, err := sum(notes)
	if err != nil {
		return types.Balance{}, err
	}
	return types.Balance{Nicks: total, Notes: uint32(len(notes))}, nil
}

// Close marks the ledger closed. Further lookups fail with
// ErrUnreachable.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func sum(notes []types.Amount) (types.Amount, error) {
	var total uint64
	for _, n := range notes {
		s, carry := bits.Add64(total, uint64(n), 0)
		if carry != 0 {
			return 0, fmt.Errorf("%w: note total overflows 64 bits", walletrpc.ErrMalformedResponse)
		}
		total = s
	}
	return types.Amount(total), nil
}

// entry is one key of a ledger file.
type entry struct {
	Pubkey string   `mapstructure:"pubkey"`
	Notes  []uint64 `mapstructure:"notes"`
}

// LoadFile reads a ledger file. Any format viper understands works;
// YAML looks like:
//
//	ledger:
//	  - pubkey: 3yZe7d...
//	    notes: [65536, 1200]
func LoadFile(path string) (*Ledger, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	var entries []entry
	if err := v.UnmarshalKey("ledger", &entries); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", path, err)
	}

	l := NewLedger()
	for i, e := range entries {
		key, err := types.DecodePublicKey(e.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: entry %d: %w", path, i, err)
		}
		for _, n := range e.Notes {
			l.Add(key, types.Amount(n))
		}
	}
	return l, nil
}
