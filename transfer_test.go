package avail

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type chainMock struct {
	mock.Mock
}

func (m *chainMock) Info() ChainInfo {
	return m.Called().Get(0).(ChainInfo)
}

func (m *chainMock) AccountBalance(pubKey []byte) (*big.Int, error) {
	args := m.Called(pubKey)
	if v := args.Get(0); v != nil {
		return v.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *chainMock) EstimateFee(kp signature.KeyringPair, recipient []byte, amount *big.Int) (*big.Int, error) {
	args := m.Called(kp, recipient, amount)
	if v := args.Get(0); v != nil {
		return v.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

// SubmitTransfer replays the scripted statuses through onStatus before
// returning, which makes the orchestrator's select deterministic in tests.
func (m *chainMock) SubmitTransfer(kp signature.KeyringPair, recipient []byte, amount *big.Int, onStatus func(TxStatus)) (types.Hash, error) {
	args := m.Called(kp, recipient, amount)
	if script, ok := args.Get(0).([]TxStatus); ok {
		for _, st := range script {
			onStatus(st)
		}
	}
	return testTxHash, args.Error(1)
}

var testTxHash = hashOf(0xaa)

func hashOf(b byte) types.Hash {
	var h types.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

var testInfo = ChainInfo{
	ChainName:   "Avail Test",
	TokenSymbol: "AVL",
	Decimals:    4,
	SS58Prefix:  42,
}

func newChainMock(t *testing.T, balance, fee int64, script []TxStatus) *chainMock {
	t.Helper()
	m := &chainMock{}
	m.On("Info").Return(testInfo)
	m.On("AccountBalance", mock.Anything).Return(big.NewInt(balance), nil)
	m.On("EstimateFee", mock.Anything, mock.Anything, mock.Anything).Return(big.NewInt(fee), nil)
	m.On("SubmitTransfer", mock.Anything, mock.Anything, mock.Anything).Return(script, nil)
	return m
}

func TestSendFinalizedSuccess(t *testing.T) {
	// balance 10.0000, amount 1.0000, fee 0.0002 -> total needed 1.0002
	m := newChainMock(t, 100000, 2, []TxStatus{
		{State: StateIncluded, BlockHash: hashOf(0x01)},
		{State: StateFinalizedSuccess, BlockHash: hashOf(0x02)},
	})

	res := NewTransferExecutor(m).Send(context.Background(), testMnemonic, testAddress42, "1.0000")

	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, testTxHash.Hex(), res.TxHash)
	assert.Equal(t, hashOf(0x02).Hex(), res.BlockHash)
	assert.Equal(t, "1 AVL", res.Amount)
	assert.Equal(t, "0.0002 AVL", res.Fee)
	m.AssertExpectations(t)
}

func TestSendInsufficientBalance(t *testing.T) {
	// balance 0.5000 cannot cover 1.0000 + 0.0002
	m := newChainMock(t, 5000, 2, nil)

	res := NewTransferExecutor(m).Send(context.Background(), testMnemonic, testAddress42, "1.0000")

	require.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "insufficient balance")
	assert.Contains(t, res.ErrorMessage, "have 0.5 AVL")
	assert.Contains(t, res.ErrorMessage, "need 1.0002 AVL")
	m.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendExactBalanceSubmits(t *testing.T) {
	// balance exactly equal to amount + fee must submit
	m := newChainMock(t, 10002, 2, []TxStatus{
		{State: StateFinalizedSuccess, BlockHash: hashOf(0x03)},
	})

	res := NewTransferExecutor(m).Send(context.Background(), testMnemonic, testAddress42, "1.0000")

	require.True(t, res.Success, res.ErrorMessage)
	m.AssertExpectations(t)
}

func TestSendRejectedResolvesImmediately(t *testing.T) {
	m := newChainMock(t, 100000, 2, []TxStatus{
		{State: StateRejected, DispatchErr: "transaction dropped from the pool"},
	})

	res := NewTransferExecutor(m).Send(context.Background(), testMnemonic, testAddress42, "1.0000")

	require.False(t, res.Success)
	assert.Equal(t, "transaction dropped from the pool", res.ErrorMessage)
}

func TestSendFinalizedDispatchError(t *testing.T) {
	m := newChainMock(t, 100000, 2, []TxStatus{
		{State: StateIncluded, BlockHash: hashOf(0x01)},
		{
			State:       StateFinalizedFailure,
			BlockHash:   hashOf(0x02),
			DispatchErr: "Balances.ExistentialDeposit: Value too low to create account due to existential deposit.",
		},
	})

	res := NewTransferExecutor(m).Send(context.Background(), testMnemonic, testAddress42, "1.0000")

	require.False(t, res.Success)
	assert.Equal(t,
		"Balances.ExistentialDeposit: Value too low to create account due to existential deposit.",
		res.ErrorMessage)
}

func TestSendResolvesExactlyOnce(t *testing.T) {
	// notifications after the first terminal status must be ignored
	m := newChainMock(t, 100000, 2, []TxStatus{
		{State: StateFinalizedSuccess, BlockHash: hashOf(0x01)},
		{State: StateFinalizedFailure, BlockHash: hashOf(0x02), DispatchErr: "late failure"},
		{State: StateFinalizedSuccess, BlockHash: hashOf(0x03)},
	})

	res := NewTransferExecutor(m).Send(context.Background(), testMnemonic, testAddress42, "1.0000")

	require.True(t, res.Success)
	assert.Equal(t, hashOf(0x01).Hex(), res.BlockHash)
}

func TestSendInvalidSeedNoQueries(t *testing.T) {
	m := &chainMock{}
	m.On("Info").Return(testInfo)

	res := NewTransferExecutor(m).Send(context.Background(), "not a mnemonic", testAddress42, "1.0000")

	require.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "invalid seed phrase")
	m.AssertNotCalled(t, "AccountBalance", mock.Anything)
	m.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendWrongNetworkAddressNoBalanceQuery(t *testing.T) {
	m := &chainMock{}
	m.On("Info").Return(ChainInfo{TokenSymbol: "DOT", Decimals: 10, SS58Prefix: 0})

	res := NewTransferExecutor(m).Send(context.Background(), testMnemonic, testAddress42, "1.0000")

	require.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "invalid address")
	m.AssertNotCalled(t, "AccountBalance", mock.Anything)
}

func TestSendBalanceQueryFailurePropagates(t *testing.T) {
	m := &chainMock{}
	m.On("Info").Return(testInfo)
	m.On("AccountBalance", mock.Anything).Return(nil, assert.AnError)

	res := NewTransferExecutor(m).Send(context.Background(), testMnemonic, testAddress42, "1.0000")

	require.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "balance query failed")
	m.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendFeeQueryFailurePropagates(t *testing.T) {
	m := &chainMock{}
	m.On("Info").Return(testInfo)
	m.On("AccountBalance", mock.Anything).Return(big.NewInt(100000), nil)
	m.On("EstimateFee", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)

	res := NewTransferExecutor(m).Send(context.Background(), testMnemonic, testAddress42, "1.0000")

	require.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "fee estimation failed")
	m.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendTimeout(t *testing.T) {
	// a submission that never produces a terminal status resolves as timeout
	m := newChainMock(t, 100000, 2, []TxStatus{
		{State: StateIncluded, BlockHash: hashOf(0x01)},
	})

	executor := NewTransferExecutor(m, WithTimeout(20*time.Millisecond))
	res := executor.Send(context.Background(), testMnemonic, testAddress42, "1.0000")

	require.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "timed out waiting for finalization")
}

func TestSendContextCancel(t *testing.T) {
	m := newChainMock(t, 100000, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewTransferExecutor(m, WithTimeout(time.Minute)).Send(ctx, testMnemonic, testAddress42, "1.0000")

	require.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "context canceled")
}
