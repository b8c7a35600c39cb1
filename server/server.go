package server

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/types"
)

// DefaultRequestTimeout bounds a single GetBalance end to end when the
// caller does not impose a tighter deadline.
const DefaultRequestTimeout = 120 * time.Second

// BalanceClient is the node query client the handler routes to.
// *node.Client implements it.
type BalanceClient interface {
	GetBalance(ctx context.Context, q types.BalanceQuery) (types.Balance, error)
}

// Recorder receives the outcome of every call. The metrics package
// provides one.
type Recorder interface {
	ObserveRequest(state, kind string, d time.Duration)
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.log = l.Named("handler") }
}

// WithRequestTimeout sets the per-call deadline bound. Non-positive
// values keep the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithRecorder installs a Recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.rec = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// Handler serves GetBalance. It holds no per-call state and is safe
// for concurrent use; the injected client is the only shared
// resource.
type Handler struct {
	client  BalanceClient
	log     *zap.Logger
	rec     Recorder
	timeout time.Duration
	now     func() time.Time
}

// NewHandler creates a handler routing lookups to client.
func NewHandler(client BalanceClient, opts ...Option) *Handler {
	h := &Handler{
		client:  client,
		log:     zap.NewNop(),
		timeout: DefaultRequestTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RequestTimeout returns the configured per-call deadline bound.
func (h *Handler) RequestTimeout() time.Duration {
	return h.timeout
}

// GetBalance decodes the requested key, issues exactly one lookup and
// returns the node's answer.
//
// Errors are *walletrpc.Error values whose Kind is stable across
// releases. Malformed keys fail with InvalidArgument before the node
// is contacted. Internal errors carry detail for logging; transports
// must not forward it to callers.
func (h *Handler) GetBalance(ctx context.Context, req types.GetBalanceRequest) (types.GetBalanceResponse, error) {
	start := h.now()
	c := newCall()
	reqID := RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	log := h.log.With(zap.String("request_id", reqID))

	key, err := types.DecodePublicKey(req.Pubkey)
	if err != nil {
		c.advance(stateRejected)
		werr := walletrpc.NewError(walletrpc.KindInvalidArgument, "decode", err)
		h.finish(log, c, werr, start)
		return types.GetBalanceResponse{}, werr
	}
	c.advance(stateValidated)

	q := types.BalanceQuery{
		Key:       key,
		Deadline:  h.deadline(ctx, start),
		RequestID: reqID,
	}

	c.advance(stateQueried)
	bal, err := h.client.GetBalance(ctx, q)
	if err != nil {
		c.advance(stateFailed)
		werr, ok := walletrpc.AsError(err)
		if !ok {
			werr = walletrpc.NewError(walletrpc.Classify(err), "lookup", err)
		}
		h.finish(log, c, werr, start)
		return types.GetBalanceResponse{}, werr
	}

	c.advance(stateCompleted)
	resp := types.NewGetBalanceResponse(bal, h.now())
	log.Debug("balance served",
		zap.String("key", key.Short()),
		zap.Uint64("nicks", resp.Balance),
		zap.Uint32("notes", resp.Notes))
	h.finish(log, c, nil, start)
	return resp, nil
}

// deadline is the earlier of the caller's deadline and start plus the
// configured bound.
func (h *Handler) deadline(ctx context.Context, start time.Time) time.Time {
	d := start.Add(h.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func (h *Handler) finish(log *zap.Logger, c *call, err *walletrpc.Error, start time.Time) {
	elapsed := h.now().Sub(start)
	kind := "ok"
	if err != nil {
		kind = err.Kind.String()
	}
	if h.rec != nil {
		h.rec.ObserveRequest(c.state.String(), kind, elapsed)
	}

	switch {
	case err == nil:
		log.Info("GetBalance", zap.Stringer("state", c.state), zap.Duration("elapsed", elapsed))
	case err.Kind == walletrpc.KindInternal:
		log.Error("GetBalance", zap.Stringer("state", c.state), zap.Duration("elapsed", elapsed), zap.Error(err))
	default:
		log.Info("GetBalance", zap.Stringer("state", c.state), zap.String("kind", kind),
			zap.Duration("elapsed", elapsed), zap.Error(err))
	}
}

type requestIDKey struct{}

// ContextWithRequestID attaches a caller-supplied request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id attached to ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
