package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/config"
	walletgrpc "github.com/blockberries/walletrpc/grpc"
	"github.com/blockberries/walletrpc/node"
	"github.com/blockberries/walletrpc/types"
)

const defaultSidecarAddr = "127.0.0.1:3001"

func newSidecarCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "sidecar",
		Short: "Expose the local backend as a BalanceSource service for remote gateways",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.sidecar(ctx, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", defaultSidecarAddr, "listen address, host:port or unix:///path")
	return cmd
}

func (a *app) sidecar(ctx context.Context, listen string) error {
	cfg := a.cfg
	if cfg.Node.Backend == config.BackendRemote {
		return errors.New("sidecar needs a local backend (wallet or memory)")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	nc, err := openClient(cfg.Node, a.log)
	if err != nil {
		return err
	}
	defer nc.Close()

	lis, err := listenAddr(listen)
	if err != nil {
		return err
	}

	gs := grpc.NewServer()
	walletgrpc.NewSourceService(&clientSource{c: nc, timeout: cfg.Node.RequestTimeout}).Register(gs)
	hr := walletgrpc.NewHealthReporter(nc, cfg.Node.HealthInterval, a.log, walletgrpc.SourceServiceName)
	hr.Register(gs)
	hr.Start()

	errc := make(chan error, 1)
	go func() { errc <- gs.Serve(lis) }()
	a.log.Info("sidecar started", zap.String("listen", lis.Addr().String()))

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case runErr = <-errc:
	}
	hr.Stop()
	gs.GracefulStop()
	return runErr
}

func listenAddr(addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
		return net.Listen("unix", path)
	}
	return net.Listen("tcp", addr)
}

// clientSource serves sidecar lookups through the node client, so the
// sidecar gets the same deadline and serialization guarantees as the
// gateway. Errors keep their sentinels through *walletrpc.Error.
type clientSource struct {
	c       *node.Client
	timeout time.Duration
}

func (s *clientSource) LookupBalance(ctx context.Context, key types.PublicKey) (types.Balance, error) {
	d := time.Now().Add(s.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return s.c.GetBalance(ctx, types.BalanceQuery{Key: key, Deadline: d})
}

// Close is a no-op; the sidecar closes the node client itself.
func (s *clientSource) Close() error { return nil }

var _ walletrpc.BalanceSource = (*clientSource)(nil)
