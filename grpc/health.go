package walletgrpc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultHealthInterval is how often the node is probed for the
// health service.
const DefaultHealthInterval = 10 * time.Second

// Pinger reports whether the node behind a service is reachable.
// *node.Client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter keeps the standard gRPC health service in step with
// a Pinger: SERVING while it answers, NOT_SERVING otherwise. The
// overall status ("") and each named service are reported together.
type HealthReporter struct {
	srv      *health.Server
	pinger   Pinger
	interval time.Duration
	services []string
	log      *zap.Logger

	once sync.Once
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewHealthReporter creates a reporter for services. Non-positive
// intervals use DefaultHealthInterval.
func NewHealthReporter(p Pinger, interval time.Duration, log *zap.Logger, services ...string) *HealthReporter {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthReporter{
		srv:      health.NewServer(),
		pinger:   p,
		interval: interval,
		services: append([]string{""}, services...),
		log:      log.Named("health"),
		stop:     make(chan struct{}),
	}
}

// Register adds the health service to gs.
func (r *HealthReporter) Register(gs grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(gs, r.srv)
}

// Start begins probing. The first probe runs immediately.
func (r *HealthReporter) Start() {
	select {
	case <-r.stop:
		return
	default:
	}
	r.wg.Add(1)
	go r.run()
}

// Stop ends probing and reports NOT_SERVING from then on.
func (r *HealthReporter) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
	r.srv.Shutdown()
}

func (r *HealthReporter) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.probe()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.probe()
		}
	}
}

func (r *HealthReporter) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := r.pinger.Ping(ctx); err != nil {
		r.log.Warn("node health check failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	for _, svc := range r.services {
		r.srv.SetServingStatus(svc, status)
	}
}
