package walletgrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/blockberries/walletrpc/types"
)

const (
	// WalletServiceName is the public service exposed to callers.
	WalletServiceName = "walletrpc.v1.Wallet"
	// SourceServiceName is the node-side service a remote
	// BalanceSource talks to.
	SourceServiceName = "walletrpc.v1.BalanceSource"
)

// WalletServer is the server-side interface for the Wallet service.
type WalletServer interface {
	GetBalance(context.Context, *types.GetBalanceRequest) (*types.GetBalanceResponse, error)
}

// SourceServer is the server-side interface for the BalanceSource
// service.
type SourceServer interface {
	LookupBalance(context.Context, *LookupBalanceRequest) (*LookupBalanceResponse, error)
}

// RegisterWalletServer registers the Wallet service on a gRPC server.
func RegisterWalletServer(s grpc.ServiceRegistrar, srv WalletServer) {
	s.RegisterService(&walletServiceDesc, srv)
}

// RegisterSourceServer registers the BalanceSource service on a gRPC
// server.
func RegisterSourceServer(s grpc.ServiceRegistrar, srv SourceServer) {
	s.RegisterService(&sourceServiceDesc, srv)
}

// --- Handler functions ---

func handlerGetBalance(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.GetBalanceRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletServer).GetBalance(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: walletMethod("GetBalance"),
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WalletServer).GetBalance(ctx, req.(*types.GetBalanceRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func handlerLookupBalance(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(LookupBalanceRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SourceServer).LookupBalance(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: sourceMethod("LookupBalance"),
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SourceServer).LookupBalance(ctx, req.(*LookupBalanceRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// walletMethod builds the full gRPC method path of a Wallet method.
func walletMethod(method string) string {
	return fmt.Sprintf("/%s/%s", WalletServiceName, method)
}

// sourceMethod builds the full gRPC method path of a BalanceSource
// method.
func sourceMethod(method string) string {
	return fmt.Sprintf("/%s/%s", SourceServiceName, method)
}

// walletServiceDesc is the manual gRPC service descriptor for Wallet.
var walletServiceDesc = grpc.ServiceDesc{
	ServiceName: WalletServiceName,
	HandlerType: (*WalletServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBalance", Handler: handlerGetBalance},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "walletrpc/v1/wallet.cram",
}

// sourceServiceDesc is the manual gRPC service descriptor for
// BalanceSource.
var sourceServiceDesc = grpc.ServiceDesc{
	ServiceName: SourceServiceName,
	HandlerType: (*SourceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LookupBalance", Handler: handlerLookupBalance},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "walletrpc/v1/source.cram",
}
