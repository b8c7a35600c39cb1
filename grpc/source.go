package walletgrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/types"
)

// Compile-time interface checks.
var (
	_ walletrpc.BalanceSource = (*RemoteSource)(nil)
	_ walletrpc.Reconnector   = (*RemoteSource)(nil)
	_ walletrpc.Pinger        = (*RemoteSource)(nil)
	_ SourceServer            = (*SourceService)(nil)
)

var errSourceClosed = errors.New("remote source closed")

// RemoteSource is a BalanceSource backed by a BalanceSource gRPC
// service, typically a walletrpcd sidecar running next to the node.
type RemoteSource struct {
	target string
	opts   []grpc.DialOption
	log    *zap.Logger

	mu     sync.RWMutex
	rc     *remoteConn
	closed bool
}

// remoteConn is a client connection and the calls currently using it.
// A replaced connection is closed only once those calls finish.
type remoteConn struct {
	cc     *grpc.ClientConn
	active sync.WaitGroup
}

// NewRemoteSource prepares a connection to target. The connection is
// established lazily by gRPC on first use.
func NewRemoteSource(target string, log *zap.Logger, opts ...grpc.DialOption) (*RemoteSource, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", walletrpc.ErrUnreachable, target, err)
	}
	return &RemoteSource{
		target: target,
		opts:   opts,
		log:    log.Named("remote"),
		rc:     &remoteConn{cc: cc},
	}, nil
}

// acquire returns the current connection with the caller registered
// on it. The caller must call rc.active.Done when finished.
func (r *RemoteSource) acquire() (*remoteConn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, fmt.Errorf("%w: %v", walletrpc.ErrUnreachable, errSourceClosed)
	}
	r.rc.active.Add(1)
	return r.rc, nil
}

// callError maps a failed call. A connection shut down under a call
// whose context is still live is a transport failure, not a
// cancellation.
func callError(ctx context.Context, err error) error {
	if ctx.Err() == nil && status.Code(err) == codes.Canceled {
		return fmt.Errorf("%w: %s", walletrpc.ErrUnreachable, status.Convert(err).Message())
	}
	return sourceError(err)
}

// LookupBalance asks the remote service for key's balance.
func (r *RemoteSource) LookupBalance(ctx context.Context, key types.PublicKey) (types.Balance, error) {
	rc, err := r.acquire()
	if err != nil {
		return types.Balance{}, err
	}
	defer rc.active.Done()

	req := &LookupBalanceRequest{Key: key}
	resp := new(LookupBalanceResponse)
	if err := rc.cc.Invoke(ctx, sourceMethod("LookupBalance"), req, resp, callCodec()); err != nil {
		return types.Balance{}, callError(ctx, err)
	}
	return resp.Balance, nil
}

// Reconnect replaces the connection with a fresh one. Calls already
// running on the old connection complete on it; the old connection
// is closed once they have.
func (r *RemoteSource) Reconnect(context.Context) error {
	cc, err := grpc.NewClient(r.target, r.opts...)
	if err != nil {
		return fmt.Errorf("%w: redial %s: %v", walletrpc.ErrUnreachable, r.target, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = cc.Close()
		return errSourceClosed
	}
	old := r.rc
	r.rc = &remoteConn{cc: cc}
	r.mu.Unlock()

	r.log.Info("reconnected", zap.String("target", r.target))
	go func() {
		old.active.Wait()
		if err := old.cc.Close(); err != nil {
			r.log.Debug("closing replaced connection", zap.Error(err))
		}
	}()
	return nil
}

// Ping queries the remote health service.
func (r *RemoteSource) Ping(ctx context.Context) error {
	rc, err := r.acquire()
	if err != nil {
		return err
	}
	defer rc.active.Done()

	resp, err := healthpb.NewHealthClient(rc.cc).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return callError(ctx, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: remote reports %s", walletrpc.ErrUnreachable, resp.GetStatus())
	}
	return nil
}

// Close closes the current connection. Calls still running on it fail
// with ErrUnreachable, as do further lookups.
func (r *RemoteSource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rc.cc.Close()
}

// SourceService exposes a local BalanceSource as the BalanceSource
// gRPC service.
type SourceService struct {
	src walletrpc.BalanceSource
}

// NewSourceService wraps src.
func NewSourceService(src walletrpc.BalanceSource) *SourceService {
	return &SourceService{src: src}
}

// Register adds the BalanceSource service to gs.
func (s *SourceService) Register(gs grpc.ServiceRegistrar) {
	RegisterSourceServer(gs, s)
}

// LookupBalance implements SourceServer.
func (s *SourceService) LookupBalance(ctx context.Context, req *LookupBalanceRequest) (*LookupBalanceResponse, error) {
	bal, err := s.src.LookupBalance(ctx, req.Key)
	if err != nil {
		return nil, sourceStatus(err)
	}
	return &LookupBalanceResponse{Balance: bal}, nil
}
