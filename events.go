package avail

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// describeDispatchError resolves a module dispatch error against v14 metadata
// into "section.name: description". Non-module errors, or errors the metadata
// cannot resolve, fall back to a raw numeric form. The first byte of
// ModuleError.Error carries the error variant index.
func describeDispatchError(m *types.Metadata, de types.DispatchError) string {
	if !de.IsModule {
		return "extrinsic failed with a non-module dispatch error"
	}
	me := de.ModuleError
	errIndex := uint8(me.Error[0])
	if m.Version != 14 {
		return fmt.Sprintf("module error %d.%d", me.Index, errIndex)
	}

	for _, mod := range m.AsMetadataV14.Pallets {
		if mod.Index != me.Index {
			continue
		}
		if !mod.HasErrors {
			break
		}
		typ, ok := m.AsMetadataV14.EfficientLookup[mod.Errors.Type.Int64()]
		if !ok {
			break
		}
		for _, variant := range typ.Def.Variant.Variants {
			if uint8(variant.Index) != errIndex {
				continue
			}
			docs := make([]string, 0, len(variant.Docs))
			for _, d := range variant.Docs {
				if s := strings.TrimSpace(string(d)); s != "" {
					docs = append(docs, s)
				}
			}
			if len(docs) == 0 {
				return fmt.Sprintf("%s.%s", mod.Name, variant.Name)
			}
			return fmt.Sprintf("%s.%s: %s", mod.Name, variant.Name, strings.Join(docs, " "))
		}
		break
	}
	return fmt.Sprintf("module error %d.%d", me.Index, errIndex)
}

// extrinsicDispatchError checks the System.Events of a finalized block for an
// ExtrinsicFailed record matching the submitted call and signer. An empty
// string means the extrinsic did not fail.
func (c *Connection) extrinsicDispatchError(blockHash types.Hash, callBytes, signer []byte) (string, error) {
	key, err := types.CreateStorageKey(c.meta, "System", "Events", nil)
	if err != nil {
		return "", err
	}
	raw, err := c.api.RPC.State.GetStorageRaw(key, blockHash)
	if err != nil {
		return "", err
	}

	events := types.EventRecords{}
	if err := types.EventRecordsRaw(*raw).DecodeEventRecords(c.meta, &events); err != nil {
		return "", err
	}
	if len(events.System_ExtrinsicFailed) == 0 {
		return "", nil
	}

	block, err := c.api.RPC.Chain.GetBlock(blockHash)
	if err != nil {
		return "", err
	}

	for i := range events.System_ExtrinsicFailed {
		failed := events.System_ExtrinsicFailed[i]
		idx := failed.Phase.AsApplyExtrinsic
		if idx >= uint32(len(block.Block.Extrinsics)) {
			return "", fmt.Errorf("failed extrinsic index %d outside block bound", idx)
		}
		ext := block.Block.Extrinsics[idx]
		extCallBytes, err := codec.Encode(ext.Method)
		if err != nil {
			return "", err
		}
		// only report the failure if it is the call we sent and we sent it
		if bytes.Equal(extCallBytes, callBytes) && bytes.Equal(ext.Signature.Signer.AsID.ToBytes(), signer) {
			return describeDispatchError(c.meta, failed.DispatchError), nil
		}
	}
	return "", nil
}
