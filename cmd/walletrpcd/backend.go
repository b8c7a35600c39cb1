package main

import (
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/config"
	walletgrpc "github.com/blockberries/walletrpc/grpc"
	"github.com/blockberries/walletrpc/local"
	"github.com/blockberries/walletrpc/node"
	"github.com/blockberries/walletrpc/wallet"
)

// openSource builds the configured BalanceSource.
func openSource(cfg config.NodeConfig, log *zap.Logger) (walletrpc.BalanceSource, error) {
	switch cfg.Backend {
	case config.BackendWallet:
		return wallet.New(wallet.Config{Binary: cfg.Wallet, Socket: cfg.Socket}, wallet.WithLogger(log)), nil
	case config.BackendRemote:
		return walletgrpc.NewRemoteSource(cfg.Remote, log,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	case config.BackendMemory:
		if cfg.Ledger == "" {
			log.Warn("memory backend without a ledger file; every key is unknown")
			return local.NewLedger(), nil
		}
		return local.LoadFile(cfg.Ledger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// openClient opens the source and wraps it in a node client.
func openClient(cfg config.NodeConfig, log *zap.Logger, opts ...node.Option) (*node.Client, error) {
	src, err := openSource(cfg, log)
	if err != nil {
		return nil, err
	}
	opts = append([]node.Option{
		node.WithLogger(log),
		node.WithMaxInFlight(cfg.MaxInFlight),
		node.WithMaxConsecutiveTimeouts(cfg.MaxConsecutiveTimeouts),
	}, opts...)
	log.Info("node backend ready", zap.String("backend", cfg.Backend))
	return node.NewClient(src, opts...), nil
}
