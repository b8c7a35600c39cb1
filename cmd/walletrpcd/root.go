package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/blockberries/walletrpc/config"
	wlog "github.com/blockberries/walletrpc/log"
)

// Build-time variables, set with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
)

// app carries what every subcommand shares.
type app struct {
	v       *viper.Viper
	cfgFile string
	dotenv  string
	cfg     config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: zap.NewNop()}

	root := &cobra.Command{
		Use:           "walletrpcd",
		Short:         "Nockchain balance gateway",
		Long:          "walletrpcd answers GetBalance calls over gRPC by querying a Nockchain node.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./walletrpc.yaml or ~/.walletrpc/walletrpc.yaml)")
	pf.StringVar(&a.dotenv, "dotenv", ".env", "environment file merged below the process environment")

	pf.String("rpc-addr", "", "gRPC listen address, host:port (default 127.0.0.1:3000)")
	_ = a.v.BindPFlag("rpc.address", pf.Lookup("rpc-addr"))

	pf.String("backend", "", "balance backend [wallet|remote|memory] (default wallet)")
	_ = a.v.BindPFlag("node.backend", pf.Lookup("backend"))

	pf.String("socket", "", "node socket for the wallet backend")
	_ = a.v.BindPFlag("node.socket", pf.Lookup("socket"))

	pf.String("wallet-bin", "", "wallet executable (default nockchain-wallet)")
	_ = a.v.BindPFlag("node.wallet", pf.Lookup("wallet-bin"))

	pf.String("remote", "", "BalanceSource gRPC target for the remote backend")
	_ = a.v.BindPFlag("node.remote", pf.Lookup("remote"))

	pf.String("ledger", "", "ledger file for the memory backend")
	_ = a.v.BindPFlag("node.ledger", pf.Lookup("ledger"))

	pf.Duration("request-timeout", 0, "per-request deadline (default 2m)")
	_ = a.v.BindPFlag("node.request_timeout", pf.Lookup("request-timeout"))

	pf.String("log-level", "", "log level [debug|info|warn|error] (default info)")
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))

	pf.String("log-encoding", "", "log encoding [console|json] (default console)")
	_ = a.v.BindPFlag("log.encoding", pf.Lookup("log-encoding"))

	root.AddCommand(
		newServeCmd(a),
		newBalanceCmd(a),
		newSidecarCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and builds the logger. Validation is
// left to the subcommands, which need different parts of it.
func (a *app) load() error {
	cfg, err := config.Load(a.v, config.LoadOptions{File: a.cfgFile, DotEnv: a.dotenv})
	if err != nil {
		return err
	}
	logger, err := wlog.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.cfg = cfg
	a.log = logger
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.Info("using config file", zap.String("path", used))
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No configuration needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			if GitCommit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "walletrpcd %s (%s)\n", Version, GitCommit)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "walletrpcd %s\n", Version)
		},
	}
}
