package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("Completed", "ok", 10*time.Millisecond)
	m.ObserveRequest("Completed", "ok", 20*time.Millisecond)
	m.ObserveRequest("Rejected", "InvalidArgument", time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("Completed", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("Rejected", "InvalidArgument")))
	require.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestObserveLookupAndReconnect(t *testing.T) {
	m := New()
	m.ObserveLookup("Timeout", time.Second)
	m.ObserveReconnect(nil)
	m.ObserveReconnect(errors.New("refused"))
	m.ObserveReconnect(errors.New("refused"))

	require.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("Timeout")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reconnects.WithLabelValues("ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.reconnects.WithLabelValues("error")))
}

func TestServer(t *testing.T) {
	m := New()
	m.ObserveRequest("Completed", "ok", time.Millisecond)

	s, err := Listen(Config{Enabled: true, Address: "127.0.0.1:0"}, m, zap.NewNop())
	require.NoError(t, err)
	go func() { _ = s.Serve() }()
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `walletrpc_rpc_requests_total{kind="ok",state="Completed"} 1`))
}
