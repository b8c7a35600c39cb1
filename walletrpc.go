// Package walletrpc defines the boundary between the gRPC balance
// gateway and the full node that owns ledger state.
//
// The core [BalanceSource] interface is required. [Reconnector],
// [Pinger] and [Serial] are optional capabilities discovered via Go
// type assertion when the node client is constructed.
package walletrpc

import (
	"context"
	"errors"

	"github.com/blockberries/walletrpc/types"
)

// Outcomes a BalanceSource may report besides success. The set is
// closed: any other error is treated as an internal failure.
var (
	// ErrUnknownKey means the key is well-formed but the node has no
	// notes recorded for it.
	ErrUnknownKey = errors.New("walletrpc: unknown public key")
	// ErrBusy means the node refused the request because it is
	// already serving another one (e.g. the wallet socket is locked).
	ErrBusy = errors.New("walletrpc: node busy")
	// ErrUnreachable means the node could not be contacted at all.
	ErrUnreachable = errors.New("walletrpc: node unreachable")
	// ErrMalformedResponse means the node answered with something
	// that could not be interpreted as a balance.
	ErrMalformedResponse = errors.New("walletrpc: malformed node response")
)

// BalanceSource is the narrow capability the gateway needs from a
// synced full node: look up the balance backing a public key.
//
// Implementations MUST be read-only, MUST honour ctx cancellation
// on a best-effort basis, and MUST report failures by wrapping one of
// ErrUnknownKey, ErrBusy, ErrUnreachable or ErrMalformedResponse.
type BalanceSource interface {
	// LookupBalance returns the sum of all notes owned by key.
	LookupBalance(ctx context.Context, key types.PublicKey) (types.Balance, error)

	// Close releases the connection to the node.
	Close() error
}

// Reconnector is implemented by sources that hold a long-lived
// connection which can be re-established after repeated timeouts.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Pinger is implemented by sources that can cheaply check whether
// the node is reachable. Used for health reporting only.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Serial is implemented by sources that can only serve one request
// at a time. The node client serializes access to them internally.
type Serial interface {
	SingleFlight() bool
}
