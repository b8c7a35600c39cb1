// Package metrics exposes Prometheus collectors for the balance
// gateway and serves them over HTTP.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "walletrpc"

// Config defines the metrics endpoint.
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// Metrics holds the gateway's collectors. It satisfies
// server.Recorder and node.Observer.
type Metrics struct {
	reg *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	lookups         *prometheus.CounterVec
	lookupDuration  *prometheus.HistogramVec
	reconnects      *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the
// standard Go and process collectors.
func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "GetBalance calls by final state and error kind.",
		},
		[]string{"state", "kind"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "GetBalance latency.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)
	m.lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "lookups_total",
			Help:      "Backend balance lookups by outcome.",
		},
		[]string{"kind"},
	)
	m.lookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "lookup_duration_seconds",
			Help:      "Backend balance lookup latency.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)
	m.reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "reconnects_total",
			Help:      "Node reconnect attempts by result.",
		},
		[]string{"result"},
	)

	m.reg.MustRegister(
		m.requests, m.requestDuration,
		m.lookups, m.lookupDuration, m.reconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// ObserveRequest records a finished GetBalance call.
func (m *Metrics) ObserveRequest(state, kind string, d time.Duration) {
	m.requests.WithLabelValues(state, kind).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveLookup records a finished backend call.
func (m *Metrics) ObserveLookup(kind string, d time.Duration) {
	m.lookups.WithLabelValues(kind).Inc()
	m.lookupDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveReconnect records a reconnect attempt.
func (m *Metrics) ObserveReconnect(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reconnects.WithLabelValues(result).Inc()
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Server serves the metrics endpoint.
type Server struct {
	log *zap.Logger
	srv *http.Server
	lis net.Listener
}

// Listen binds the metrics endpoint described by cfg.
func Listen(cfg Config, m *Metrics, log *zap.Logger) (*Server, error) {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return &Server{
		log: log.Named("metrics"),
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		lis: lis,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Serve blocks until the server is shut down.
func (s *Server) Serve() error {
	s.log.Info("serving metrics", zap.String("address", s.Addr()))
	if err := s.srv.Serve(s.lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
