package rollup

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// deriveMapKey implements Solidity's mapping storage-slot convention:
// keccak256(pad32(key) ∥ pad32(slot)). Grounded on
// original_source/ethereum/evm/src/lib.rs's derive_map_key.
func deriveMapKey(key, slot *big.Int) common.Hash {
	buf := make([]byte, 64)
	key.FillBytes(buf[0:32])
	slot.FillBytes(buf[32:64])
	return crypto.Keccak256Hash(buf)
}
