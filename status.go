package avail

import "github.com/centrifuge/go-substrate-rpc-client/v4/types"

// SubmissionState is the explicit lifecycle of a submitted transfer:
//
//	Pending -> Included -> FinalizedSuccess | FinalizedFailure
//	Pending -> Rejected                     (dropped / invalid / usurped)
//
// Included is informational; only the last three states are terminal.
type SubmissionState int

const (
	StatePending SubmissionState = iota
	StateIncluded
	StateFinalizedSuccess
	StateFinalizedFailure
	StateRejected
)

func (s SubmissionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateIncluded:
		return "included"
	case StateFinalizedSuccess:
		return "finalized"
	case StateFinalizedFailure:
		return "finalized-failed"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

func (s SubmissionState) Terminal() bool {
	switch s {
	case StateFinalizedSuccess, StateFinalizedFailure, StateRejected:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal step in the
// lifecycle above. Terminal states accept no further transitions.
func (s SubmissionState) CanTransition(next SubmissionState) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StateIncluded, StateFinalizedSuccess, StateFinalizedFailure:
		return true
	case StateRejected:
		return s == StatePending
	case StatePending:
		return s == StatePending
	}
	return false
}

// TxStatus is one status notification delivered by the chain backend while a
// submission is being watched.
type TxStatus struct {
	State     SubmissionState
	BlockHash types.Hash

	// DispatchErr carries the humanized module error for a
	// StateFinalizedFailure notification, or the rejection reason for
	// StateRejected.
	DispatchErr string
}
