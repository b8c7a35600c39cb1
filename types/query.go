package types

import "time"

// BalanceQuery pairs a validated key with the metadata of the call
// that asked for it. It lives for a single RPC.
type BalanceQuery struct {
	Key PublicKey
	// Deadline after which the lookup is abandoned.
	Deadline time.Time
	// RequestID correlates log lines of one call.
	RequestID string
}

// GetBalanceRequest is the GetBalance RPC request.
type GetBalanceRequest struct {
	// Base58 public key.
	Pubkey string `cramberry:"1"`
}

// GetBalanceResponse is the GetBalance RPC response.
type GetBalanceResponse struct {
	// Balance in nicks, exactly as reported by the node.
	Balance uint64 `cramberry:"1"`
	// Nocks is Balance rendered in nocks as an exact decimal string.
	Nocks string `cramberry:"2"`
	// Notes is the number of notes that backed Balance.
	Notes uint32 `cramberry:"3"`
	// QueriedAt is when the node answered.
	QueriedAt Timestamp `cramberry:"4"`
}

// NewGetBalanceResponse builds the response for a node answer.
func NewGetBalanceResponse(b Balance, at time.Time) GetBalanceResponse {
	return GetBalanceResponse{
		Balance:   uint64(b.Nicks),
		Nocks:     b.Nicks.Nocks(),
		Notes:     b.Notes,
		QueriedAt: TimeToTimestamp(at),
	}
}
