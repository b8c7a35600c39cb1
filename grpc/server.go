package walletgrpc

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/walletrpc/server"
	"github.com/blockberries/walletrpc/types"
)

// RequestIDHeader is the metadata key carrying a caller-supplied
// request id.
const RequestIDHeader = "x-request-id"

// Compile-time interface check.
var _ WalletServer = (*GRPCServer)(nil)

// ServerOption configures a GRPCServer.
type ServerOption func(*GRPCServer)

// WithServerLogger sets the logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *GRPCServer) { s.log = l.Named("grpc") }
}

// WithHealth enables the standard health service, driven by p.
// Non-positive intervals use DefaultHealthInterval.
func WithHealth(p Pinger, interval time.Duration) ServerOption {
	return func(s *GRPCServer) {
		s.pinger = p
		s.interval = interval
	}
}

// WithGRPCOptions passes options to grpc.NewServer.
func WithGRPCOptions(opts ...grpc.ServerOption) ServerOption {
	return func(s *GRPCServer) { s.grpcOpts = append(s.grpcOpts, opts...) }
}

// GRPCServer exposes a server.Handler as the Wallet gRPC service.
// Domain types are serialized directly via cramberry; no conversion
// layer is needed.
type GRPCServer struct {
	h        *server.Handler
	log      *zap.Logger
	pinger   Pinger
	interval time.Duration
	grpcOpts []grpc.ServerOption

	health *HealthReporter

	mu      sync.Mutex
	gs      *grpc.Server
	stopped bool
}

// NewGRPCServer wraps h.
func NewGRPCServer(h *server.Handler, opts ...ServerOption) *GRPCServer {
	s := &GRPCServer{
		h:   h,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pinger != nil {
		s.health = NewHealthReporter(s.pinger, s.interval, s.log, WalletServiceName)
	}
	return s
}

// Register adds the Wallet service, and the health service when
// enabled, to gs.
func (s *GRPCServer) Register(gs grpc.ServiceRegistrar) {
	RegisterWalletServer(gs, s)
	if s.health != nil {
		s.health.Register(gs)
	}
}

// NewServer builds a grpc.Server with the request id interceptor and
// the services registered.
func (s *GRPCServer) NewServer() *grpc.Server {
	opts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.unaryInterceptor),
	}, s.grpcOpts...)
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs
}

// Serve starts the gRPC server on lis and blocks until it stops.
func (s *GRPCServer) Serve(lis net.Listener) error {
	gs := s.NewServer()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = lis.Close()
		return grpc.ErrServerStopped
	}
	s.gs = gs
	if s.health != nil {
		s.health.Start()
	}
	s.mu.Unlock()

	s.log.Info("serving", zap.String("addr", lis.Addr().String()))
	return gs.Serve(lis)
}

// Stop gracefully stops the gRPC server. In-flight calls complete;
// new ones are refused.
func (s *GRPCServer) Stop() {
	s.mu.Lock()
	gs := s.gs
	s.stopped = true
	s.mu.Unlock()

	if s.health != nil {
		s.health.Stop()
	}
	if gs != nil {
		gs.GracefulStop()
	}
}

// GetBalance implements WalletServer.
func (s *GRPCServer) GetBalance(ctx context.Context, req *types.GetBalanceRequest) (*types.GetBalanceResponse, error) {
	resp, err := s.h.GetBalance(ctx, *req)
	if err != nil {
		return nil, StatusFromError(err)
	}
	return &resp, nil
}

// unaryInterceptor moves the request id header into ctx and logs the
// transport-level outcome.
func (s *GRPCServer) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
			ctx = server.ContextWithRequestID(ctx, ids[0])
		}
	}
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug("rpc",
		zap.String("method", info.FullMethod),
		zap.Stringer("code", status.Code(err)),
		zap.Duration("elapsed", time.Since(start)))
	return resp, err
}
