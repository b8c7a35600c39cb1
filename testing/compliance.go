package walletrpctest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/types"
)

// Fixture describes what a source under test is expected to know.
type Fixture struct {
	// Known maps keys to the balance the source must report.
	Known map[types.PublicKey]types.Balance
	// Unknown is a well-formed key the source has never seen.
	Unknown types.PublicKey
}

// RunSourceCompliance runs a standard suite against a BalanceSource
// implementation.
//
// The factory function should return a fresh source, populated as
// described by the returned Fixture, for each test.
func RunSourceCompliance(t *testing.T, factory func(t *testing.T) (walletrpc.BalanceSource, Fixture)) {
	t.Helper()

	t.Run("known_keys", func(t *testing.T) {
		src, fx := factory(t)
		defer src.Close()
		for key, want := range fx.Known {
			got, err := src.LookupBalance(context.Background(), key)
			if err != nil {
				t.Fatalf("LookupBalance(%s): %v", key.Short(), err)
			}
			if got != want {
				t.Errorf("LookupBalance(%s) = %+v, want %+v", key.Short(), got, want)
			}
		}
	})

	t.Run("unknown_key", func(t *testing.T) {
		src, fx := factory(t)
		defer src.Close()
		_, err := src.LookupBalance(context.Background(), fx.Unknown)
		if !errors.Is(err, walletrpc.ErrUnknownKey) {
			t.Fatalf("expected ErrUnknownKey, got %v", err)
		}
	})

	t.Run("repeatable", func(t *testing.T) {
		src, fx := factory(t)
		defer src.Close()
		for key := range fx.Known {
			a, err1 := src.LookupBalance(context.Background(), key)
			b, err2 := src.LookupBalance(context.Background(), key)
			if err1 != nil || err2 != nil {
				t.Fatalf("LookupBalance: %v / %v", err1, err2)
			}
			if a != b {
				t.Errorf("read-only lookups disagree: %+v != %+v", a, b)
			}
		}
	})

	t.Run("cancelled_context", func(t *testing.T) {
		src, fx := factory(t)
		defer src.Close()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for key := range fx.Known {
				_, _ = src.LookupBalance(ctx, key)
			}
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("LookupBalance ignored a cancelled context")
		}
	})

	t.Run("concurrent", func(t *testing.T) {
		src, fx := factory(t)
		defer src.Close()

		var wg sync.WaitGroup
		errs := make(chan error, 4*len(fx.Known))
		for i := 0; i < 4; i++ {
			for key, want := range fx.Known {
				wg.Add(1)
				go func(key types.PublicKey, want types.Balance) {
					defer wg.Done()
					got, err := src.LookupBalance(context.Background(), key)
					if err != nil {
						errs <- err
						return
					}
					if got != want {
						errs <- errors.New("concurrent lookup returned " + got.Nicks.String() + ", want " + want.Nicks.String())
					}
				}(key, want)
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}
	})

	t.Run("close", func(t *testing.T) {
		src, _ := factory(t)
		if err := src.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})
}
