package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/config"
	walletgrpc "github.com/blockberries/walletrpc/grpc"
	"github.com/blockberries/walletrpc/local"
	"github.com/blockberries/walletrpc/node"
	"github.com/blockberries/walletrpc/server"
	walletrpctest "github.com/blockberries/walletrpc/testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--dotenv", ""))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "walletrpcd "+Version)
}

func TestBalanceCommand(t *testing.T) {
	ledger := local.NewLedger()
	ledger.Set(walletrpctest.Key(1), 65536, 32768)
	nc := node.NewClient(ledger)
	t.Cleanup(func() { _ = nc.Close() })

	gs := walletgrpc.NewGRPCServer(server.NewHandler(nc))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	out, err := run(t, "balance", walletrpctest.EncodedKey(1), "--rpc-addr", lis.Addr().String())
	require.NoError(t, err)
	require.Contains(t, out, "balance: 98304 nicks")
	require.Contains(t, out, "nocks:   1.5")
	require.Contains(t, out, "notes:   2")

	_, err = run(t, "balance", walletrpctest.EncodedKey(2), "--rpc-addr", lis.Addr().String())
	e, ok := walletrpc.AsError(err)
	require.True(t, ok, "%v", err)
	require.Equal(t, walletrpc.KindNotFound, e.Kind)

	_, err = run(t, "balance")
	require.Error(t, err, "pubkey argument required")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	_, err := run(t, "serve", "--backend", "carrier-pigeon")
	require.ErrorContains(t, err, "node.backend")
}

func TestOpenSource(t *testing.T) {
	log := zap.NewNop()

	src, err := openSource(config.NodeConfig{Backend: config.BackendMemory}, log)
	require.NoError(t, err)
	require.IsType(t, &local.Ledger{}, src)

	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  - pubkey: "+walletrpctest.EncodedKey(3)+"\n    notes: [9]\n"), 0o600))
	src, err = openSource(config.NodeConfig{Backend: config.BackendMemory, Ledger: path}, log)
	require.NoError(t, err)
	bal, err := src.LookupBalance(context.Background(), walletrpctest.Key(3))
	require.NoError(t, err)
	require.Equal(t, uint32(1), bal.Notes)

	src, err = openSource(config.NodeConfig{Backend: config.BackendWallet, Socket: "/nowhere.sock"}, log)
	require.NoError(t, err)
	_, err = src.LookupBalance(context.Background(), walletrpctest.Key(3))
	require.ErrorIs(t, err, walletrpc.ErrUnreachable)

	_, err = openSource(config.NodeConfig{Backend: "ftp"}, log)
	require.Error(t, err)
}

// A gateway using the remote backend sees the sidecar's answers and
// failures as if it queried the node itself.
func TestSidecarRoundTrip(t *testing.T) {
	ledger := local.NewLedger()
	ledger.Set(walletrpctest.Key(1), 100, 200)
	nc := node.NewClient(ledger)
	t.Cleanup(func() { _ = nc.Close() })

	lis, err := listenAddr("127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	walletgrpc.NewSourceService(&clientSource{c: nc, timeout: time.Second}).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.GracefulStop)

	remote, err := walletgrpc.NewRemoteSource(lis.Addr().String(), nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer remote.Close()

	bal, err := remote.LookupBalance(context.Background(), walletrpctest.Key(1))
	require.NoError(t, err)
	require.Equal(t, uint64(300), uint64(bal.Nicks))

	_, err = remote.LookupBalance(context.Background(), walletrpctest.Key(2))
	require.ErrorIs(t, err, walletrpc.ErrUnknownKey)
}

func TestListenAddrUnix(t *testing.T) {
	dir, err := os.MkdirTemp("", "wrpc")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "s.sock")

	// A stale socket file is replaced.
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	lis, err := listenAddr("unix://" + path)
	require.NoError(t, err)
	require.Equal(t, "unix", lis.Addr().Network())
	require.NoError(t, lis.Close())
}
