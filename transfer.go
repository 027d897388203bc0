package avail

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Chain is the connector capability the transfer flow consumes. *Connection
// is the production implementation.
type Chain interface {
	Info() ChainInfo
	AccountBalance(pubKey []byte) (*big.Int, error)
	EstimateFee(kp signature.KeyringPair, recipient []byte, amount *big.Int) (*big.Int, error)
	SubmitTransfer(kp signature.KeyringPair, recipient []byte, amount *big.Int, onStatus func(TxStatus)) (types.Hash, error)
}

var _ Chain = (*Connection)(nil)

const defaultFinalizationTimeout = 5 * time.Minute

// TransferExecutor drives one balance transfer from validated inputs to a
// terminal Result.
type TransferExecutor struct {
	chain   Chain
	log     zerolog.Logger
	timeout time.Duration
}

type ExecutorOption func(*TransferExecutor)

func WithLogger(log zerolog.Logger) ExecutorOption {
	return func(e *TransferExecutor) { e.log = log }
}

// WithTimeout bounds how long Send waits for a terminal status after
// submission before resolving as a timeout failure.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *TransferExecutor) { e.timeout = d }
}

func NewTransferExecutor(chain Chain, opts ...ExecutorOption) *TransferExecutor {
	e := &TransferExecutor{
		chain:   chain,
		log:     zerolog.Nop(),
		timeout: defaultFinalizationTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Send submits one transfer of amountText (in the chain's display unit) from
// the account behind seedPhrase to recipient, and waits for a terminal
// status. It always returns a Result: every failure along the way, including
// submission errors, is converted into Result{Success: false} rather than
// escaping as an error.
func (e *TransferExecutor) Send(ctx context.Context, seedPhrase, recipient, amountText string) Result {
	info := e.chain.Info()
	f := Formatter{Decimals: info.Decimals, Symbol: info.TokenSymbol}

	// 1. derive the signing pair - offline, fails fast on a bad phrase
	kp, err := DeriveKeyring(seedPhrase, info.SS58Prefix)
	if err != nil {
		return failure(err)
	}

	// 2. scale the display amount into the chain's smallest unit
	amount, err := ParseAmount(amountText, info.Decimals)
	if err != nil {
		return failure(err)
	}

	// 3. the recipient must be encoded for this network
	dest, err := DecodeAddress(recipient, info.SS58Prefix)
	if err != nil {
		return failure(err)
	}

	// 4. balance and fee; query failures propagate instead of posing as zero
	balance, err := e.chain.AccountBalance(kp.PublicKey)
	if err != nil {
		return failure(errors.Wrap(err, "balance query failed"))
	}
	fee, err := e.chain.EstimateFee(kp, dest, amount)
	if err != nil {
		return failure(errors.Wrap(err, "fee estimation failed"))
	}

	// 5. never submit what the sender cannot cover
	needed := new(big.Int).Add(amount, fee)
	if balance.Cmp(needed) < 0 {
		return failure(errors.Wrapf(ErrInsufficientBalance,
			"have %s, need %s (amount %s + estimated fee %s)",
			f.Format(balance), f.Format(needed), f.Format(amount), f.Format(fee)))
	}

	e.log.Info().
		Str("from", kp.Address).
		Str("to", recipient).
		Str("amount", f.Format(amount)).
		Str("estimated_fee", f.Format(fee)).
		Msg("submitting transfer")

	// 6. submit and resolve exactly once at the first terminal status;
	// anything delivered after resolution is a no-op
	done := make(chan Result, 1)
	var once sync.Once
	resolve := func(r Result) {
		once.Do(func() { done <- r })
	}

	// the connector invokes the callback from a single goroutine, so the
	// lifecycle state needs no locking
	state := StatePending
	txHash, err := e.chain.SubmitTransfer(kp, dest, amount, func(st TxStatus) {
		if !state.CanTransition(st.State) {
			return
		}
		state = st.State
		switch st.State {
		case StateIncluded:
			e.log.Info().Str("block", st.BlockHash.Hex()).Msg("transfer included in block")
		case StateFinalizedSuccess:
			resolve(Result{
				Success:   true,
				BlockHash: st.BlockHash.Hex(),
				Amount:    f.Format(amount),
				Fee:       f.Format(fee),
			})
		case StateFinalizedFailure, StateRejected:
			resolve(Result{ErrorMessage: st.DispatchErr})
		}
	})
	if err != nil {
		return failure(errors.Wrap(ErrSubmission, err.Error()))
	}

	select {
	case r := <-done:
		if r.Success {
			r.TxHash = txHash.Hex()
			e.log.Info().Str("tx", r.TxHash).Str("block", r.BlockHash).Msg("transfer finalized")
		} else {
			e.log.Warn().Str("error", r.ErrorMessage).Msg("transfer failed")
		}
		return r
	case <-time.After(e.timeout):
		return failure(errors.Wrapf(ErrTimeout, "no terminal status within %s", e.timeout))
	case <-ctx.Done():
		return failure(ctx.Err())
	}
}
