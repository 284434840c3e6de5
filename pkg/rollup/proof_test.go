package rollup

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func logWithData(data []byte) types.Log {
	return types.Log{Data: data}
}

func TestDeriveStateHashKeyMatchesManualSolidityLayout(t *testing.T) {
	nodeNumber := uint64(42)

	buf := make([]byte, 64)
	new(big.Int).SetUint64(nodeNumber).FillBytes(buf[0:32])
	big.NewInt(nodesSlot).FillBytes(buf[32:64])
	want := crypto.Keccak256Hash(buf)

	got := DeriveStateHashKey(nodeNumber)
	if got != want {
		t.Fatalf("DeriveStateHashKey(%d) = %s, want %s", nodeNumber, got, want)
	}
}

func TestDeriveStateHashKeyDiffersAcrossNodeNumbers(t *testing.T) {
	a := DeriveStateHashKey(1)
	b := DeriveStateHashKey(2)
	if a == b {
		t.Fatalf("expected distinct keys for distinct node numbers, both got %s", a)
	}
}

func TestDecodeArbitrumNodeCreatedRejectsShortData(t *testing.T) {
	_, err := decodeArbitrumNodeCreated(logWithData(make([]byte, 32)))
	if err == nil {
		t.Fatalf("expected short NodeCreated log data to be rejected")
	}
}

func TestDecodeArbitrumNodeCreatedParsesFixedOffsets(t *testing.T) {
	data := make([]byte, 7*32)
	word := func(i int) []byte { return data[i*32 : (i+1)*32] }

	new(big.Int).SetUint64(42).FillBytes(word(0))
	copy(word(1), common.HexToHash("0xaa").Bytes())
	copy(word(2), common.HexToHash("0xbb").Bytes())
	new(big.Int).SetUint64(7).FillBytes(word(3))
	new(big.Int).SetUint64(9).FillBytes(word(4))
	word(5)[31] = byte(MachineStatusFinished)
	new(big.Int).SetUint64(100).FillBytes(word(6))

	ev, err := decodeArbitrumNodeCreated(logWithData(data))
	if err != nil {
		t.Fatalf("decodeArbitrumNodeCreated: %v", err)
	}
	if ev.NodeNumber != 42 {
		t.Errorf("NodeNumber = %d, want 42", ev.NodeNumber)
	}
	if ev.GlobalState.BlockHash != common.HexToHash("0xaa") {
		t.Errorf("BlockHash = %s, want 0xaa", ev.GlobalState.BlockHash)
	}
	if ev.GlobalState.SendRoot != common.HexToHash("0xbb") {
		t.Errorf("SendRoot = %s, want 0xbb", ev.GlobalState.SendRoot)
	}
	if ev.GlobalState.InboxPosition != 7 {
		t.Errorf("InboxPosition = %d, want 7", ev.GlobalState.InboxPosition)
	}
	if ev.GlobalState.PositionInMessage != 9 {
		t.Errorf("PositionInMessage = %d, want 9", ev.GlobalState.PositionInMessage)
	}
	if ev.MachineStatus != MachineStatusFinished {
		t.Errorf("MachineStatus = %v, want %v", ev.MachineStatus, MachineStatusFinished)
	}
	if ev.InboxMaxCount != 100 {
		t.Errorf("InboxMaxCount = %d, want 100", ev.InboxMaxCount)
	}
}
