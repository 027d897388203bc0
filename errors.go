package avail

import (
	"github.com/pkg/errors"
)

// Error kinds surfaced by the transfer flow. Callers match with errors.Is;
// wrapped context carries the specifics.
var (
	ErrConnection          = errors.New("chain connection failed")
	ErrInvalidSeed         = errors.New("invalid seed phrase")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSubmission          = errors.New("submission failed")
	ErrTimeout             = errors.New("timed out waiting for finalization")
)

// Result is the terminal record of one transfer attempt. Exactly one Result
// is produced per Send call; failures are carried here rather than returned
// as errors.
type Result struct {
	Success      bool
	TxHash       string
	BlockHash    string
	Amount       string
	Fee          string
	ErrorMessage string
}

func failure(err error) Result {
	return Result{ErrorMessage: err.Error()}
}
