// Package walletgrpc provides the gRPC transport for the balance
// gateway, using cramberry for deterministic binary serialization.
//
// No protobuf code generation is required. Request and response types
// from walletrpc/types are serialized directly via cramberry struct
// tags; callers select the codec with the "cramberry" content subtype.
package walletgrpc

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const codecName = "cramberry"

// CramberryCodec implements grpc/encoding.Codec using cramberry
// for deterministic binary serialization.
type CramberryCodec struct{}

func (CramberryCodec) Marshal(v any) ([]byte, error) {
	data, err := cramberry.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cramberry marshal: %w", err)
	}
	return data, nil
}

func (CramberryCodec) Unmarshal(data []byte, v any) error {
	if err := cramberry.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cramberry unmarshal: %w", err)
	}
	return nil
}

func (CramberryCodec) Name() string { return codecName }

// callCodec selects the cramberry codec for a single call, leaving
// the connection's default (protobuf) to standard services such as
// health checking.
func callCodec() grpc.CallOption {
	return grpc.CallContentSubtype(codecName)
}

func init() {
	encoding.RegisterCodec(CramberryCodec{})
}
