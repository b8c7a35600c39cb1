package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	walletgrpc "github.com/blockberries/walletrpc/grpc"
	"github.com/blockberries/walletrpc/metrics"
	"github.com/blockberries/walletrpc/node"
	"github.com/blockberries/walletrpc/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Wallet gRPC service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().Bool("metrics", false, "serve Prometheus metrics")
	_ = a.v.BindPFlag("metrics.enabled", cmd.Flags().Lookup("metrics"))
	cmd.Flags().String("metrics-addr", "", "metrics listen address (default 127.0.0.1:9464)")
	_ = a.v.BindPFlag("metrics.address", cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	m := metrics.New()
	nc, err := openClient(cfg.Node, a.log, node.WithObserver(m))
	if err != nil {
		return err
	}
	defer nc.Close()

	h := server.NewHandler(nc,
		server.WithLogger(a.log),
		server.WithRequestTimeout(cfg.Node.RequestTimeout),
		server.WithRecorder(m),
	)
	gs := walletgrpc.NewGRPCServer(h,
		walletgrpc.WithServerLogger(a.log),
		walletgrpc.WithHealth(nc, cfg.Node.HealthInterval),
	)

	lis, err := net.Listen("tcp", cfg.RPC.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.RPC.Address, err)
	}

	errc := make(chan error, 2)
	go func() { errc <- gs.Serve(lis) }()

	var ms *metrics.Server
	if cfg.Metrics.Enabled {
		ms, err = metrics.Listen(cfg.Metrics, m, a.log)
		if err != nil {
			gs.Stop()
			return fmt.Errorf("metrics: %w", err)
		}
		go func() { errc <- ms.Serve() }()
	}

	a.log.Info("walletrpcd started",
		zap.String("version", Version),
		zap.String("rpc", lis.Addr().String()),
		zap.Duration("request_timeout", h.RequestTimeout()))

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case runErr = <-errc:
		if errors.Is(runErr, grpc.ErrServerStopped) {
			runErr = nil
		}
	}

	gs.Stop()
	if ms != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ms.Shutdown(sctx); err != nil {
			a.log.Warn("metrics shutdown", zap.Error(err))
		}
	}
	return runErr
}
