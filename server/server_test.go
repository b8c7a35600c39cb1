package server_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/server"
	walletrpctest "github.com/blockberries/walletrpc/testing"
	"github.com/blockberries/walletrpc/types"
)

type outcome struct {
	state, kind string
}

type recorder struct {
	mu  sync.Mutex
	got []outcome
}

func (r *recorder) ObserveRequest(state, kind string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, outcome{state, kind})
}

// captureClient records the query the handler built.
type captureClient struct {
	mu      sync.Mutex
	queries []types.BalanceQuery
	bal     types.Balance
	err     error
}

func (c *captureClient) GetBalance(_ context.Context, q types.BalanceQuery) (types.Balance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	return c.bal, c.err
}

func TestGetBalance_Scenario500(t *testing.T) {
	src := walletrpctest.NewMockSource()
	src.SetBalance(walletrpctest.Key(1), 500, 3)
	h := walletrpctest.NewHarness(t, src)

	resp := h.MustBalance(walletrpctest.EncodedKey(1))
	require.Equal(t, uint64(500), resp.Balance)
	require.Equal(t, uint32(3), resp.Notes)
	require.Equal(t, types.Amount(500).Nocks(), resp.Nocks)
	require.False(t, resp.QueriedAt.IsZero())
	require.Equal(t, int64(1), src.LookupCalls.Load(), "exactly one lookup")
}

func TestGetBalance_ExactLargeBalance(t *testing.T) {
	const n = types.Amount(1<<62 + 12345)
	src := walletrpctest.NewMockSource()
	src.SetBalance(walletrpctest.Key(4), n, 1)
	h := walletrpctest.NewHarness(t, src)

	resp := h.MustBalance(walletrpctest.EncodedKey(4))
	require.Equal(t, uint64(n), resp.Balance)
}

func TestGetBalance_MalformedKeysNeverReachNode(t *testing.T) {
	src := walletrpctest.NewMockSource()
	rec := &recorder{}
	h := walletrpctest.NewHarness(t, src, server.WithRecorder(rec))

	valid := walletrpctest.EncodedKey(1)
	for _, raw := range []string{
		"",
		valid[:20],
		valid + valid,
		"0OIl" + valid[4:],
		"not a key",
	} {
		e := h.MustFail(raw, walletrpc.KindInvalidArgument)
		require.ErrorIs(t, e, types.ErrInvalidPublicKey)
	}
	require.Equal(t, int64(0), src.LookupCalls.Load())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.got, 5)
	for _, o := range rec.got {
		require.Equal(t, outcome{"Rejected", "InvalidArgument"}, o)
	}
}

func TestGetBalance_FailureKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want walletrpc.Kind
	}{
		{"unknown", walletrpc.ErrUnknownKey, walletrpc.KindNotFound},
		{"unreachable", fmt.Errorf("dial unix /tmp/x.sock: %w", walletrpc.ErrUnreachable), walletrpc.KindUnavailable},
		{"busy", walletrpc.ErrBusy, walletrpc.KindUnavailable},
		{"malformed", walletrpc.ErrMalformedResponse, walletrpc.KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := walletrpctest.NewMockSource()
			src.LookupFn = func(context.Context, types.PublicKey) (types.Balance, error) {
				return types.Balance{}, tc.err
			}
			rec := &recorder{}
			h := walletrpctest.NewHarness(t, src, server.WithRecorder(rec))

			h.MustFail(walletrpctest.EncodedKey(2), tc.want)
			require.Equal(t, int64(1), src.LookupCalls.Load(), "no retry inside the handler")
			require.Equal(t, []outcome{{"Failed", tc.want.String()}}, rec.got)
		})
	}
}

func TestGetBalance_Timeout(t *testing.T) {
	src := walletrpctest.NewMockSource()
	src.LookupFn = func(ctx context.Context, key types.PublicKey) (types.Balance, error) {
		if src.LookupCalls.Load() == 1 {
			return walletrpctest.BlockUntilDone(ctx, key)
		}
		return types.Balance{Nicks: 9, Notes: 1}, nil
	}
	h := walletrpctest.NewHarness(t, src, server.WithRequestTimeout(30*time.Millisecond))

	e := h.MustFail(walletrpctest.EncodedKey(3), walletrpc.KindTimeout)
	require.NotEqual(t, walletrpc.KindUnavailable, e.Kind)

	// The connection is still usable.
	resp := h.MustBalance(walletrpctest.EncodedKey(3))
	require.Equal(t, uint64(9), resp.Balance)
}

func TestGetBalance_DeadlineIsEarlierOfCallerAndBound(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client := &captureClient{bal: types.Balance{Nicks: 1}}
	h := server.NewHandler(client,
		server.WithRequestTimeout(10*time.Second),
		server.WithClock(func() time.Time { return now }),
	)
	req := types.GetBalanceRequest{Pubkey: walletrpctest.EncodedKey(1)}

	_, err := h.GetBalance(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithDeadline(context.Background(), now.Add(2*time.Second))
	defer cancel()
	_, err = h.GetBalance(ctx, req)
	require.NoError(t, err)

	require.Len(t, client.queries, 2)
	require.Equal(t, now.Add(10*time.Second), client.queries[0].Deadline)
	require.Equal(t, now.Add(2*time.Second), client.queries[1].Deadline)
	require.Equal(t, walletrpctest.Key(1), client.queries[0].Key)
}

func TestGetBalance_DefaultTimeout(t *testing.T) {
	h := server.NewHandler(&captureClient{}, server.WithRequestTimeout(-1))
	require.Equal(t, server.DefaultRequestTimeout, h.RequestTimeout())
}

func TestGetBalance_RequestID(t *testing.T) {
	client := &captureClient{bal: types.Balance{Nicks: 1}}
	h := server.NewHandler(client)
	req := types.GetBalanceRequest{Pubkey: walletrpctest.EncodedKey(1)}

	ctx := server.ContextWithRequestID(context.Background(), "abc-123")
	_, err := h.GetBalance(ctx, req)
	require.NoError(t, err)
	_, err = h.GetBalance(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, "abc-123", client.queries[0].RequestID)
	require.NotEmpty(t, client.queries[1].RequestID)
	require.NotEqual(t, client.queries[0].RequestID, client.queries[1].RequestID)
}

// Classification survives clients that return plain errors.
func TestGetBalance_UnclassifiedClientError(t *testing.T) {
	client := &captureClient{err: walletrpc.ErrBusy}
	h := server.NewHandler(client)

	_, err := h.GetBalance(context.Background(), types.GetBalanceRequest{Pubkey: walletrpctest.EncodedKey(1)})
	require.Equal(t, walletrpc.KindUnavailable, walletrpc.KindOf(err))
}

func TestGetBalance_LogsInternalErrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	client := &captureClient{err: walletrpc.NewError(walletrpc.KindInternal, "lookup", walletrpc.ErrMalformedResponse)}
	h := server.NewHandler(client, server.WithLogger(zap.New(core)))

	_, err := h.GetBalance(context.Background(), types.GetBalanceRequest{Pubkey: walletrpctest.EncodedKey(1)})
	require.Equal(t, walletrpc.KindInternal, walletrpc.KindOf(err))

	entries := logs.FilterMessage("GetBalance").All()
	require.Len(t, entries, 1)
	require.Equal(t, zap.ErrorLevel, entries[0].Level)
	require.Equal(t, "Failed", entries[0].ContextMap()["state"])
}

func TestGetBalance_ConcurrentDistinctKeys(t *testing.T) {
	src := walletrpctest.NewMockSource()
	for i := 0; i < 32; i++ {
		src.SetBalance(walletrpctest.Key(byte(i)), types.Amount(1000+i), 1)
	}
	h := walletrpctest.NewHarness(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(seed byte) {
			defer wg.Done()
			resp, err := h.Handler().GetBalance(context.Background(),
				types.GetBalanceRequest{Pubkey: walletrpctest.EncodedKey(seed)})
			if assert.NoError(t, err) {
				assert.Equal(t, uint64(1000+int(seed)), resp.Balance)
			}
		}(byte(i))
	}
	wg.Wait()
	require.Equal(t, int64(32), src.LookupCalls.Load())
}
