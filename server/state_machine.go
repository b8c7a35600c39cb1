// Package server provides the RPC service handler: the per-call
// orchestration of key decoding, node lookup and error
// classification, independent of the transport that carries it.
package server

import "fmt"

// callState is a state in the per-call state machine of GetBalance.
type callState uint32

const (
	// stateReceived: request accepted, key not yet decoded.
	stateReceived callState = iota
	// stateRejected: key failed to decode. Terminal; the node was
	// not contacted.
	stateRejected
	// stateValidated: key decoded, lookup about to be issued.
	stateValidated
	// stateQueried: lookup issued, waiting for the node.
	stateQueried
	// stateCompleted: node answered with a balance. Terminal.
	stateCompleted
	// stateFailed: lookup failed. Terminal.
	stateFailed
)

func (s callState) String() string {
	switch s {
	case stateReceived:
		return "Received"
	case stateRejected:
		return "Rejected"
	case stateValidated:
		return "Validated"
	case stateQueried:
		return "Queried"
	case stateCompleted:
		return "Completed"
	case stateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// terminal reports whether no further transition is allowed.
func (s callState) terminal() bool {
	return s == stateRejected || s == stateCompleted || s == stateFailed
}

// transitions lists the legal successor states.
var transitions = map[callState][]callState{
	stateReceived:  {stateRejected, stateValidated},
	stateValidated: {stateQueried},
	stateQueried:   {stateCompleted, stateFailed},
}

// call tracks one GetBalance invocation. It is owned by a single
// goroutine and needs no locking.
type call struct {
	state callState
}

func newCall() *call {
	return &call{state: stateReceived}
}

// advance moves the call to next. Panics on an illegal transition:
// that is a programming error in the handler, not a request error.
func (c *call) advance(next callState) {
	for _, s := range transitions[c.state] {
		if s == next {
			c.state = next
			return
		}
	}
	panic(fmt.Sprintf("walletrpc: GetBalance transition %s -> %s", c.state, next))
}
