package walletgrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/blockberries/walletrpc/types"
)

// Client calls a remote Wallet service over gRPC using cramberry
// serialization. No protobuf types or conversion layer required.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a Wallet service at addr. Transport credentials
// must be supplied by the caller.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("walletrpc client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

// Conn returns the underlying connection, for example to query the
// health service.
func (c *Client) Conn() *grpc.ClientConn { return c.cc }

// Close closes the connection.
func (c *Client) Close() error {
	return c.cc.Close()
}

// GetBalance queries the balance of the base58 encoded pubkey. Errors
// are *walletrpc.Error values.
func (c *Client) GetBalance(ctx context.Context, pubkey string) (types.GetBalanceResponse, error) {
	req := &types.GetBalanceRequest{Pubkey: pubkey}
	resp := new(types.GetBalanceResponse)
	if err := c.cc.Invoke(ctx, walletMethod("GetBalance"), req, resp, callCodec()); err != nil {
		return types.GetBalanceResponse{}, ErrorFromStatus("GetBalance", err)
	}
	return *resp, nil
}

// WithRequestID attaches id to outgoing calls made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, RequestIDHeader, id)
}
