package avail

import (
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	bip39 "github.com/cosmos/go-bip39"
	"github.com/pkg/errors"
	subkey "github.com/vedhavyas/go-subkey/v2"
)

// ValidateMnemonic checks bip39 word count and checksum. Purely offline.
// Decoding the entropy is required here: the library's word-level validity
// check does not verify the checksum.
func ValidateMnemonic(phrase string) bool {
	if _, err := bip39.MnemonicToByteArray(phrase); err != nil {
		return false
	}
	return true
}

// DeriveKeyring derives the sr25519 signing pair for a mnemonic phrase,
// encoding its address under the given SS58 prefix. Deterministic and
// offline; fails with ErrInvalidSeed on a malformed phrase.
func DeriveKeyring(phrase string, ss58Prefix uint16) (signature.KeyringPair, error) {
	if !ValidateMnemonic(phrase) {
		return signature.KeyringPair{}, errors.Wrap(ErrInvalidSeed,
			"mnemonic failed word-count or checksum validation")
	}
	kp, err := signature.KeyringPairFromSecret(phrase, ss58Prefix)
	if err != nil {
		return signature.KeyringPair{}, errors.Wrap(ErrInvalidSeed, err.Error())
	}
	return kp, nil
}

// DecodeAddress decodes an SS58 address and checks that it was encoded for
// the expected network. Returns the raw 32-byte account ID.
func DecodeAddress(address string, ss58Prefix uint16) ([]byte, error) {
	network, pubKey, err := subkey.SS58Decode(address)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidAddress, "%q: %v", address, err)
	}
	if network != ss58Prefix {
		return nil, errors.Wrapf(ErrInvalidAddress,
			"%q is encoded for network %d, expected %d", address, network, ss58Prefix)
	}
	return pubKey, nil
}
