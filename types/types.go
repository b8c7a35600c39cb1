// Package types defines the data exchanged between the balance
// gateway, its callers and the node.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. Transport concerns (gRPC codec
// registration) are handled in the transport packages.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// NicksPerNock is the number of base units (nicks) in one nock.
const NicksPerNock = 1 << 16

// nickFracScale is 10^16 / 2^16 = 5^16, so a nick fraction converts
// to a 16-digit decimal fraction without rounding.
const nickFracScale = 152587890625

// Amount is a quantity of chain currency in nicks.
//
// The maximum supply (2^32 nocks) is 2^48 nicks, comfortably within
// uint64.
type Amount uint64

// Nocks returns the amount in nocks as an exact decimal string
// (e.g. 98304 nicks → "1.5").
func (a Amount) Nocks() string {
	whole := uint64(a) / NicksPerNock
	frac := uint64(a) % NicksPerNock
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	digits := fmt.Sprintf("%016d", frac*nickFracScale)
	return strconv.FormatUint(whole, 10) + "." + strings.TrimRight(digits, "0")
}

func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// Balance is what the node reports for a key: the total of all notes
// it owns and how many notes backed that total.
type Balance struct {
	Nicks Amount `cramberry:"1"`
	Notes uint32 `cramberry:"2"`
}
