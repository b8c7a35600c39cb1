package walletrpctest

import (
	"context"
	"testing"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/node"
	"github.com/blockberries/walletrpc/server"
	"github.com/blockberries/walletrpc/types"
)

// Harness drives a Handler wired to a BalanceSource through a real
// node client, the way the gRPC server does.
type Harness struct {
	t      *testing.T
	client *node.Client
	h      *server.Handler
}

// NewHarness creates a harness around src. The source is closed when
// the test ends.
func NewHarness(t *testing.T, src walletrpc.BalanceSource, opts ...server.Option) *Harness {
	t.Helper()
	client := node.NewClient(src)
	t.Cleanup(func() { _ = client.Close() })
	return &Harness{t: t, client: client, h: server.NewHandler(client, opts...)}
}

// Handler returns the underlying handler for direct access.
func (h *Harness) Handler() *server.Handler {
	return h.h
}

// Client returns the underlying node client.
func (h *Harness) Client() *node.Client {
	return h.client
}

// GetBalance calls the handler with pubkey.
func (h *Harness) GetBalance(pubkey string) (types.GetBalanceResponse, error) {
	h.t.Helper()
	return h.h.GetBalance(context.Background(), types.GetBalanceRequest{Pubkey: pubkey})
}

// MustBalance asserts the call succeeds and returns the response.
func (h *Harness) MustBalance(pubkey string) types.GetBalanceResponse {
	h.t.Helper()
	resp, err := h.GetBalance(pubkey)
	if err != nil {
		h.t.Fatalf("GetBalance(%q) failed: %v", pubkey, err)
	}
	return resp
}

// MustFail asserts the call fails with the given kind.
func (h *Harness) MustFail(pubkey string, want walletrpc.Kind) *walletrpc.Error {
	h.t.Helper()
	_, err := h.GetBalance(pubkey)
	if err == nil {
		h.t.Fatalf("GetBalance(%q): expected %s, got success", pubkey, want)
	}
	e, ok := walletrpc.AsError(err)
	if !ok {
		h.t.Fatalf("GetBalance(%q): expected *walletrpc.Error, got %T: %v", pubkey, err, err)
	}
	if e.Kind != want {
		h.t.Fatalf("GetBalance(%q): expected %s, got %s (%v)", pubkey, want, e.Kind, err)
	}
	return e
}
