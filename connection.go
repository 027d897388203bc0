package avail

import (
	"encoding/json"
	"math/big"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Substrate defaults, used when system_properties omits a field.
const (
	defaultSS58Prefix  = 42
	defaultDecimals    = 12
	defaultTokenSymbol = "UNIT"
)

// ChainInfo is the identity of the connected chain, captured once at Dial.
type ChainInfo struct {
	ChainName   string
	NodeVersion string
	TokenSymbol string
	Decimals    uint32
	SS58Prefix  uint16
}

// Connection wraps the substrate RPC client with the chain state a transfer
// needs: metadata, genesis hash, runtime version and chain identity. It also
// provides locked nonce management - an explicit local lock around retrieving
// and using an account's nonce, which avoids race conditions when several
// transfers are driven through the same account on one connection.
type Connection struct {
	api  *gsrpc.SubstrateAPI
	meta *types.Metadata

	genesisHash types.Hash
	rv          *types.RuntimeVersion
	info        ChainInfo

	transMtx     sync.Mutex
	pendingNonce map[string]uint32

	closeOnce sync.Once
}

// Dial connects to a node endpoint and prefetches everything signing needs.
func Dial(endpoint string) (*Connection, error) {
	c := &Connection{pendingNonce: map[string]uint32{}}

	var err error
	if c.api, err = gsrpc.NewSubstrateAPI(endpoint); err != nil {
		return nil, errors.Wrapf(ErrConnection, "dial %s: %v", endpoint, err)
	}
	if c.meta, err = c.api.RPC.State.GetMetadataLatest(); err != nil {
		return nil, errors.Wrapf(ErrConnection, "fetch metadata: %v", err)
	}
	if c.genesisHash, err = c.api.RPC.Chain.GetBlockHash(0); err != nil {
		return nil, errors.Wrapf(ErrConnection, "fetch genesis hash: %v", err)
	}
	if c.rv, err = c.api.RPC.State.GetRuntimeVersionLatest(); err != nil {
		return nil, errors.Wrapf(ErrConnection, "fetch runtime version: %v", err)
	}
	if c.info, err = c.loadInfo(); err != nil {
		return nil, errors.Wrapf(ErrConnection, "fetch chain properties: %v", err)
	}
	return c, nil
}

// Info returns the chain identity snapshot taken at Dial.
func (c *Connection) Info() ChainInfo {
	return c.info
}

// Formatter returns a display formatter bound to this chain's decimals and
// token symbol.
func (c *Connection) Formatter() Formatter {
	return Formatter{Decimals: c.info.Decimals, Symbol: c.info.TokenSymbol}
}

// Close releases the connection. Idempotent, and safe on a nil or
// never-dialed receiver.
func (c *Connection) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		if c.api != nil && c.api.Client != nil {
			c.api.Client.Close()
		}
	})
}

func (c *Connection) loadInfo() (ChainInfo, error) {
	// no typed wrapper for system_properties in gsrpc; tokenDecimals and
	// tokenSymbol are scalars on most chains but arrays on some, so decode
	// both forms.
	var props struct {
		SS58Format    *uint16         `json:"ss58Format"`
		TokenDecimals json.RawMessage `json:"tokenDecimals"`
		TokenSymbol   json.RawMessage `json:"tokenSymbol"`
	}
	if err := c.api.Client.Call(&props, "system_properties"); err != nil {
		return ChainInfo{}, err
	}

	chainName, err := c.api.RPC.System.Chain()
	if err != nil {
		return ChainInfo{}, err
	}
	nodeVersion, err := c.api.RPC.System.Version()
	if err != nil {
		return ChainInfo{}, err
	}

	info := ChainInfo{
		ChainName:   string(chainName),
		NodeVersion: string(nodeVersion),
		TokenSymbol: firstString(props.TokenSymbol, defaultTokenSymbol),
		Decimals:    firstUint32(props.TokenDecimals, defaultDecimals),
		SS58Prefix:  defaultSS58Prefix,
	}
	if props.SS58Format != nil {
		info.SS58Prefix = *props.SS58Format
	}
	return info, nil
}

func firstUint32(raw json.RawMessage, fallback uint32) uint32 {
	if len(raw) == 0 {
		return fallback
	}
	var n uint32
	if json.Unmarshal(raw, &n) == nil {
		return n
	}
	var arr []uint32
	if json.Unmarshal(raw, &arr) == nil && len(arr) > 0 {
		return arr[0]
	}
	return fallback
}

func firstString(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var arr []string
	if json.Unmarshal(raw, &arr) == nil && len(arr) > 0 {
		return arr[0]
	}
	return fallback
}

// AccountBalance returns the free balance of an account, zero if the account
// does not exist on chain. Query failures propagate to the caller rather than
// masquerading as an empty account.
func (c *Connection) AccountBalance(pubKey []byte) (*big.Int, error) {
	acct, ok, err := c.accountInfo(pubKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return acct.Data.Free.Int, nil
}

func (c *Connection) accountInfo(pubKey []byte) (types.AccountInfo, bool, error) {
	key, err := types.CreateStorageKey(c.meta, "System", "Account", pubKey, nil)
	if err != nil {
		return types.AccountInfo{}, false, err
	}
	var acct types.AccountInfo
	ok, err := c.api.RPC.State.GetStorageLatest(key, &acct)
	if err != nil {
		return types.AccountInfo{}, false, err
	}
	return acct, ok, nil
}

// assumes the caller holds transMtx
func (c *Connection) nextNonce(pubKey []byte) (uint32, error) {
	k := string(pubKey)
	if n, ok := c.pendingNonce[k]; ok {
		c.pendingNonce[k] = n + 1
		return n + 1, nil
	}
	acct, _, err := c.accountInfo(pubKey)
	if err != nil {
		return 0, err
	}
	nonce := uint32(acct.Nonce)
	c.pendingNonce[k] = nonce
	return nonce, nil
}

// newCall packages a call without the argument mangling types.NewCall applies.
func newCall(m *types.Metadata, name string, args ...interface{}) (types.Call, error) {
	ci, err := m.FindCallIndex(name)
	if err != nil {
		return types.Call{}, err
	}

	var a []byte
	for _, arg := range args {
		e, err := codec.Encode(arg)
		if err != nil {
			return types.Call{}, err
		}
		a = append(a, e...)
	}
	return types.Call{CallIndex: ci, Args: a}, nil
}

func (c *Connection) newTransferCall(recipient []byte, amount *big.Int) (types.Call, error) {
	dest, err := types.NewMultiAddressFromAccountID(recipient)
	if err != nil {
		return types.Call{}, err
	}
	// newer runtimes renamed the call
	for _, name := range []string{"Balances.transfer", "Balances.transfer_allow_death"} {
		if _, err := c.meta.FindCallIndex(name); err == nil {
			return newCall(c.meta, name, dest, types.NewUCompact(amount))
		}
	}
	return types.Call{}, errors.New("chain metadata exposes no balance transfer call")
}

func (c *Connection) signedTransfer(kp signature.KeyringPair, call types.Call, nonce uint32) (types.Extrinsic, error) {
	ext := types.NewExtrinsic(call)
	o := types.SignatureOptions{
		BlockHash:          c.genesisHash,
		Era:                types.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        c.genesisHash,
		Nonce:              types.NewUCompactFromUInt(uint64(nonce)),
		SpecVersion:        c.rv.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: c.rv.TransactionVersion,
	}
	if err := ext.Sign(kp, o); err != nil {
		return types.Extrinsic{}, err
	}
	return ext, nil
}

// EstimateFee signs a throwaway transfer with the account's current nonce and
// asks the node's payment_queryInfo for the projected partial fee. Advisory
// only; the chain may charge differently at inclusion. Failures propagate.
func (c *Connection) EstimateFee(kp signature.KeyringPair, recipient []byte, amount *big.Int) (*big.Int, error) {
	call, err := c.newTransferCall(recipient, amount)
	if err != nil {
		return nil, err
	}
	acct, _, err := c.accountInfo(kp.PublicKey)
	if err != nil {
		return nil, err
	}
	ext, err := c.signedTransfer(kp, call, uint32(acct.Nonce))
	if err != nil {
		return nil, err
	}
	enc, err := codec.EncodeToHex(ext)
	if err != nil {
		return nil, err
	}

	var paymentInfo struct {
		PartialFee string `json:"partialFee"`
	}
	if err := c.api.Client.Call(&paymentInfo, "payment_queryInfo", enc); err != nil {
		return nil, err
	}
	fee, err := parseChainUint(paymentInfo.PartialFee)
	if err != nil {
		return nil, errors.Wrapf(err, "parse partialFee %q", paymentInfo.PartialFee)
	}
	return fee, nil
}

// parseChainUint accepts the decimal and 0x-hex encodings nodes use for
// u128 values in JSON responses.
func parseChainUint(s string) (*big.Int, error) {
	n := new(big.Int)
	if len(s) > 2 && s[:2] == "0x" {
		if _, ok := n.SetString(s[2:], 16); !ok {
			return nil, errors.Errorf("not a hex integer: %q", s)
		}
		return n, nil
	}
	if _, ok := n.SetString(s, 10); !ok {
		return nil, errors.Errorf("not a decimal integer: %q", s)
	}
	return n, nil
}

// SubmitTransfer signs and submits a balance transfer, then watches the
// author subscription in the background, pushing one TxStatus per status
// change into onStatus until a terminal status arrives. The returned hash is
// the blake2-256 of the signed encoded extrinsic.
func (c *Connection) SubmitTransfer(kp signature.KeyringPair, recipient []byte, amount *big.Int, onStatus func(TxStatus)) (types.Hash, error) {
	c.transMtx.Lock()
	defer c.transMtx.Unlock()

	call, err := c.newTransferCall(recipient, amount)
	if err != nil {
		return types.Hash{}, err
	}
	nonce, err := c.nextNonce(kp.PublicKey)
	if err != nil {
		return types.Hash{}, err
	}
	ext, err := c.signedTransfer(kp, call, nonce)
	if err != nil {
		return types.Hash{}, err
	}

	extBytes, err := codec.Encode(ext)
	if err != nil {
		return types.Hash{}, err
	}
	callBytes, err := codec.Encode(call)
	if err != nil {
		return types.Hash{}, err
	}
	txHash := types.Hash(blake2b.Sum256(extBytes))

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	// clear the pending nonce either way - will refresh from chain next time
	delete(c.pendingNonce, string(kp.PublicKey))
	if err != nil {
		return types.Hash{}, err
	}

	go c.watch(sub, callBytes, kp.PublicKey, onStatus)
	return txHash, nil
}
