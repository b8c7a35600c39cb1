package wallet

import (
	"bufio"
	"fmt"
	"math/bits"
	"regexp"
	"strconv"
	"strings"

	"github.com/blockberries/walletrpc"
	"github.com/blockberries/walletrpc/types"
)

var (
	assetsLine   = regexp.MustCompile(`^- assets: (\d+)\s*$`)
	assetsPrefix = "- assets:"
)

// ParseNotes sums the "- assets: N" lines printed by
// list-notes-by-pubkey. Blank lines and lines carrying ANSI escapes
// (log output) are skipped.
//
// Output without any note is reported as ErrUnknownKey. Empty output,
// unparsable amounts and totals that overflow 64 bits are
// ErrMalformedResponse.
func ParseNotes(out string) (types.Balance, error) {
	if strings.TrimSpace(out) == "" {
		return types.Balance{}, fmt.Errorf("%w: empty wallet output", walletrpc.ErrMalformedResponse)
	}

	var (
		total uint64
		notes uint32
	)
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.Contains(line, "\x1b") {
			continue
		}
		m := assetsLine.FindStringSubmatch(line)
		if m == nil {
			if strings.HasPrefix(line, assetsPrefix) {
				return types.Balance{}, fmt.Errorf("%w: bad assets line %q", walletrpc.ErrMalformedResponse, line)
			}
			continue
		}
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return types.Balance{}, fmt.Errorf("%w: assets %q: %v", walletrpc.ErrMalformedResponse, m[1], err)
		}
		var carry uint64
		total, carry = bits.Add64(total, n, 0)
		if carry != 0 {
			return types.Balance{}, fmt.Errorf("%w: note total overflows 64 bits", walletrpc.ErrMalformedResponse)
		}
		notes++
	}
	if err := sc.Err(); err != nil {
		return types.Balance{}, fmt.Errorf("%w: %v", walletrpc.ErrMalformedResponse, err)
	}
	if notes == 0 {
		return types.Balance{}, walletrpc.ErrUnknownKey
	}
	return types.Balance{Nicks: types.Amount(total), Notes: notes}, nil
}
