package avail

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/rpc/author"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// watch pumps author-subscription statuses into onStatus until a terminal
// status is delivered, then unsubscribes. Runs in its own goroutine per
// submission.
func (c *Connection) watch(sub *author.ExtrinsicStatusSubscription, callBytes, signer []byte, onStatus func(TxStatus)) {
	defer sub.Unsubscribe()

	for {
		select {
		case status, ok := <-sub.Chan():
			if !ok {
				return
			}
			ts := c.mapStatus(status, callBytes, signer)
			if ts == nil {
				continue
			}
			onStatus(*ts)
			if ts.State.Terminal() {
				return
			}
		case err := <-sub.Err():
			onStatus(TxStatus{
				State:       StateRejected,
				DispatchErr: fmt.Sprintf("status subscription failed: %v", err),
			})
			return
		}
	}
}

// mapStatus translates a raw extrinsic status into the submission lifecycle.
// Ready/broadcast style statuses carry no information a caller acts on and
// map to nil.
func (c *Connection) mapStatus(status types.ExtrinsicStatus, callBytes, signer []byte) *TxStatus {
	switch {
	case status.IsInBlock:
		return &TxStatus{State: StateIncluded, BlockHash: status.AsInBlock}

	case status.IsFinalized:
		dispatchErr, err := c.extrinsicDispatchError(status.AsFinalized, callBytes, signer)
		if err != nil {
			// finalized, but the outcome cannot be confirmed; report the
			// check failure instead of guessing success
			return &TxStatus{
				State:       StateFinalizedFailure,
				BlockHash:   status.AsFinalized,
				DispatchErr: fmt.Sprintf("finalized in %v but event check failed: %v", status.AsFinalized.Hex(), err),
			}
		}
		if dispatchErr != "" {
			return &TxStatus{State: StateFinalizedFailure, BlockHash: status.AsFinalized, DispatchErr: dispatchErr}
		}
		return &TxStatus{State: StateFinalizedSuccess, BlockHash: status.AsFinalized}

	case status.IsDropped:
		return &TxStatus{State: StateRejected, DispatchErr: "transaction dropped from the pool"}
	case status.IsInvalid:
		return &TxStatus{State: StateRejected, DispatchErr: "transaction marked invalid"}
	case status.IsUsurped:
		return &TxStatus{
			State:       StateRejected,
			DispatchErr: fmt.Sprintf("transaction usurped by %v", status.AsUsurped.Hex()),
		}
	case status.IsFinalityTimeout:
		return &TxStatus{
			State:       StateRejected,
			DispatchErr: fmt.Sprintf("finality timeout at block %v", status.AsFinalityTimeout.Hex()),
		}
	}
	return nil
}
