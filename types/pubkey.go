package types

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeySize is the length in bytes of a serialized public key:
// a Cheetah curve point (two 48-byte coordinates) plus an
// infinity flag.
const PublicKeySize = 97

// maxEncodedLen bounds the textual form before decoding is attempted.
// 97 bytes never need more than 133 base58 digits.
const maxEncodedLen = 2 * PublicKeySize

var (
	// ErrInvalidPublicKey is wrapped by every decoding failure.
	ErrInvalidPublicKey = errors.New("invalid public key")

	ErrEmptyPublicKey   = fmt.Errorf("%w: empty", ErrInvalidPublicKey)
	ErrPublicKeyCharset = fmt.Errorf("%w: not base58", ErrInvalidPublicKey)
	ErrPublicKeyLength  = fmt.Errorf("%w: wrong length", ErrInvalidPublicKey)
)

// PublicKey identifies an account. It is immutable and always
// PublicKeySize bytes.
type PublicKey [PublicKeySize]byte

// DecodePublicKey parses the base58 text form of a public key.
// The encoding carries no checksum; the length check is the only
// structural guarantee.
func DecodePublicKey(raw string) (PublicKey, error) {
	var pk PublicKey
	if raw == "" {
		return pk, ErrEmptyPublicKey
	}
	if len(raw) > maxEncodedLen {
		return pk, fmt.Errorf("%w: %d characters", ErrPublicKeyLength, len(raw))
	}
	b, err := base58.Decode(raw)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrPublicKeyCharset, err)
	}
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("%w: got %d bytes, want %d", ErrPublicKeyLength, len(b), PublicKeySize)
	}
	if base58.Encode(b) != raw {
		return pk, fmt.Errorf("%w: non-canonical encoding", ErrPublicKeyLength)
	}
	copy(pk[:], b)
	return pk, nil
}

// MustDecodePublicKey is like DecodePublicKey but panics on error.
// Intended for tests and constants.
func MustDecodePublicKey(raw string) PublicKey {
	pk, err := DecodePublicKey(raw)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 text form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// Short returns an abbreviated form for logs.
func (pk PublicKey) Short() string {
	s := pk.String()
	if len(s) <= 16 {
		return s
	}
	return s[:8] + "…" + s[len(s)-8:]
}
