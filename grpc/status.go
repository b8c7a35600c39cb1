package walletgrpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/types"
)

// wireMessages is what a client sees for each failure kind. Handler
// errors carry node addresses and backend output, which stay in logs.
var wireMessages = map[walletrpc.Kind]string{
	walletrpc.KindInvalidArgument: "invalid public key",
	walletrpc.KindNotFound:        "unknown public key",
	walletrpc.KindUnavailable:     "node unavailable",
	walletrpc.KindTimeout:         "deadline exceeded",
	walletrpc.KindCanceled:        "canceled",
	walletrpc.KindInternal:        "internal error",
}

// keyFaults refine the invalid-argument message. Their text names the
// rule that failed and never the input.
var keyFaults = []error{types.ErrEmptyPublicKey, types.ErrPublicKeyCharset, types.ErrPublicKeyLength}

// wireMessage returns the client-facing text for err.
func wireMessage(kind walletrpc.Kind, err error) string {
	if kind == walletrpc.KindInvalidArgument {
		for _, fault := range keyFaults {
			if errors.Is(err, fault) {
				return fault.Error()
			}
		}
	}
	if msg, ok := wireMessages[kind]; ok {
		return msg
	}
	return wireMessages[walletrpc.KindInternal]
}

// CodeOf maps a failure kind to its gRPC code.
func CodeOf(kind walletrpc.Kind) codes.Code {
	switch kind {
	case walletrpc.KindInvalidArgument:
		return codes.InvalidArgument
	case walletrpc.KindNotFound:
		return codes.NotFound
	case walletrpc.KindUnavailable:
		return codes.Unavailable
	case walletrpc.KindTimeout:
		return codes.DeadlineExceeded
	case walletrpc.KindCanceled:
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// KindOfCode is the inverse of CodeOf, used by clients.
func KindOfCode(code codes.Code) walletrpc.Kind {
	switch code {
	case codes.InvalidArgument:
		return walletrpc.KindInvalidArgument
	case codes.NotFound:
		return walletrpc.KindNotFound
	case codes.Unavailable, codes.ResourceExhausted:
		return walletrpc.KindUnavailable
	case codes.DeadlineExceeded:
		return walletrpc.KindTimeout
	case codes.Canceled:
		return walletrpc.KindCanceled
	default:
		return walletrpc.KindInternal
	}
}

// StatusFromError converts a handler error into a gRPC status error.
// Only the code and a fixed message per kind cross the wire.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	kind := walletrpc.KindOf(err)
	return status.Error(CodeOf(kind), wireMessage(kind, err))
}

// ErrorFromStatus converts an error returned by a gRPC call into a
// *walletrpc.Error so callers can switch on Kind.
func ErrorFromStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return walletrpc.NewError(walletrpc.KindTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return walletrpc.NewError(walletrpc.KindCanceled, op, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return walletrpc.NewError(walletrpc.KindInternal, op, err)
	}
	return walletrpc.NewError(KindOfCode(st.Code()), op, errors.New(st.Message()))
}

// sourceStatus converts a BalanceSource outcome into a gRPC status
// error for the BalanceSource service.
func sourceStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, walletrpc.ErrUnknownKey):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, walletrpc.ErrBusy):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, walletrpc.ErrUnreachable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// sourceError is the inverse of sourceStatus: it turns a failed
// LookupBalance call back into the BalanceSource outcome set.
func sourceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", walletrpc.ErrUnreachable, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", walletrpc.ErrUnknownKey, st.Message())
	case codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %s", walletrpc.ErrBusy, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", walletrpc.ErrUnreachable, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", st.Message(), context.DeadlineExceeded)
	case codes.Canceled:
		return fmt.Errorf("%s: %w", st.Message(), context.Canceled)
	default:
		return fmt.Errorf("%w: %s: %s", walletrpc.ErrMalformedResponse, st.Code(), st.Message())
	}
}
