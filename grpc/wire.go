package walletgrpc

import "github.com/blockberries/walletrpc/types"

// Transport-specific wrapper types for the node-side BalanceSource
// service. These are used only for gRPC serialization boundaries.

// LookupBalanceRequest carries the key for BalanceSource.LookupBalance.
type LookupBalanceRequest struct {
	Key types.PublicKey `cramberry:"1"`
}

// LookupBalanceResponse wraps the return value of
// BalanceSource.LookupBalance.
type LookupBalanceResponse struct {
	Balance types.Balance `cramberry:"1"`
}
