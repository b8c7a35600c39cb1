// Package wallet implements a BalanceSource that shells out to the
// nockchain-wallet CLI, which talks to the node over its local
// socket.
package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/types"
)

// DefaultBinary is the wallet executable looked up on PATH.
const DefaultBinary = "nockchain-wallet"

// Compile-time interface checks.
var (
	_ walletrpc.BalanceSource = (*Source)(nil)
	_ walletrpc.Pinger        = (*Source)(nil)
	_ walletrpc.Serial        = (*Source)(nil)
)

// busyMarkers are stderr fragments of a wallet that could not get
// the socket.
var busyMarkers = []string{"busy", "locked", "resource temporarily unavailable", "would block"}

// Config locates the wallet and the node socket.
type Config struct {
	// Binary is the wallet executable. Empty means DefaultBinary.
	Binary string
	// Socket is the node's local socket.
	Socket string
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) { s.log = l.Named("wallet") }
}

// Source runs one wallet process per lookup. The wallet holds the
// node socket exclusively, so the source is single-flight.
type Source struct {
	bin    string
	socket string
	log    *zap.Logger
}

// New creates a wallet source.
func New(cfg Config, opts ...Option) *Source {
	s := &Source{
		bin:    cfg.Binary,
		socket: cfg.Socket,
		log:    zap.NewNop(),
	}
	if s.bin == "" {
		s.bin = DefaultBinary
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LookupBalance runs list-notes-by-pubkey for key and sums the notes.
func (s *Source) LookupBalance(ctx context.Context, key types.PublicKey) (types.Balance, error) {
	if err := s.statSocket(); err != nil {
		return types.Balance{}, err
	}

	cmd := exec.CommandContext(ctx, s.bin,
		"--nockchain-socket", s.socket,
		"list-notes-by-pubkey", key.String())
	cmd.Env = append(os.Environ(), "RUST_LOG=error")
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.Balance{}, ctxErr
	}
	if err != nil {
		return types.Balance{}, s.runError(err, stderr.String())
	}

	s.log.Debug("wallet output",
		zap.String("key", key.Short()),
		zap.Int("bytes", stdout.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return ParseNotes(stdout.String())
}

func (s *Source) runError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: wallet %s: %v", walletrpc.ErrUnreachable, s.bin, err)
	case errors.As(err, &exitErr):
		s.log.Warn("wallet failed", zap.Int("exit", exitErr.ExitCode()), zap.String("stderr", stderr))
		if isBusy(stderr) {
			return fmt.Errorf("%w: %s", walletrpc.ErrBusy, stderr)
		}
		return fmt.Errorf("%w: wallet exited %d: %s", walletrpc.ErrUnreachable, exitErr.ExitCode(), stderr)
	default:
		return fmt.Errorf("%w: run wallet: %v", walletrpc.ErrUnreachable, err)
	}
}

func isBusy(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, m := range busyMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func (s *Source) statSocket() error {
	if s.socket == "" {
		return fmt.Errorf("%w: no node socket configured", walletrpc.ErrUnreachable)
	}
	if _, err := os.Stat(s.socket); err != nil {
		return fmt.Errorf("%w: node socket: %v", walletrpc.ErrUnreachable, err)
	}
	return nil
}

// Ping checks that the node socket exists and accepts connections.
func (s *Source) Ping(ctx context.Context) error {
	if err := s.statSocket(); err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", s.socket)
	if err != nil {
		return fmt.Errorf("%w: dial node socket: %v", walletrpc.ErrUnreachable, err)
	}
	return conn.Close()
}

// SingleFlight reports true: the wallet locks the node socket.
func (s *Source) SingleFlight() bool { return true }

// Close is a no-op; each lookup owns its process.
func (s *Source) Close() error { return nil }
