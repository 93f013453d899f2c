package core

import (
	"encoding/hex"
	"fmt"
)

const HashSize = 32

type Hash32 [HashSize]byte

func NewHash32FromBytes(data []byte) (Hash32, error) {
	var h Hash32
	if len(data) != HashSize {
		return h, fmt.Errorf("%w: hash has %d bytes, expected %d", ErrDecode, len(data), HashSize)
	}

	copy(h[:], data)

	return h, nil
}

func NewHash32FromHex(str string) (Hash32, error) {
	data, err := hex.DecodeString(str)
	if err != nil {
		return Hash32{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return NewHash32FromBytes(data)
}

func (h Hash32) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash32) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash32) UnmarshalText(data []byte) error {
	result, err := NewHash32FromHex(string(data))
	if err != nil {
		return err
	}

	*h = result

	return nil
}

// BlockPoint is a confirmed position on the chain as seen by the ouroboros connection
type BlockPoint struct {
	BlockSlot   uint64 `json:"slot"`
	BlockHash   []byte `json:"hash"`
	BlockNumber uint64 `json:"num"`
}

type BlockHeader struct {
	BlockSlot   uint64 `json:"slot"`
	BlockHash   []byte `json:"hash"`
	BlockNumber uint64 `json:"num"`
	EraID       uint8  `json:"era"`
	EraName     string `json:"-"`
}

// BlockDate addresses a slot inside an epoch
type BlockDate struct {
	Epoch uint64 `json:"epoch"`
	Slot  uint64 `json:"slot"`
}

func NewBlockDateFromSlot(absoluteSlot uint64, epochLength uint64) BlockDate {
	return BlockDate{
		Epoch: absoluteSlot / epochLength,
		Slot:  absoluteSlot % epochLength,
	}
}

func (bd BlockDate) AbsoluteSlot(epochLength uint64) uint64 {
	return bd.Epoch*epochLength + bd.Slot
}

func (bd BlockDate) Compare(other BlockDate) int {
	switch {
	case bd.Epoch < other.Epoch:
		return -1
	case bd.Epoch > other.Epoch:
		return 1
	case bd.Slot < other.Slot:
		return -1
	case bd.Slot > other.Slot:
		return 1
	default:
		return 0
	}
}

func (bd BlockDate) Less(other BlockDate) bool {
	return bd.Compare(other) < 0
}

func (bd BlockDate) IsEpochStart() bool {
	return bd.Slot == 0
}

func (bd BlockDate) Next(epochLength uint64) BlockDate {
	if bd.Slot+1 >= epochLength {
		return BlockDate{Epoch: bd.Epoch + 1}
	}

	return BlockDate{Epoch: bd.Epoch, Slot: bd.Slot + 1}
}

func (bd BlockDate) String() string {
	return fmt.Sprintf("%d.%d", bd.Epoch, bd.Slot)
}

// StatePtr is the wallet position on the chain. Nil Position means before genesis.
type StatePtr struct {
	Position *BlockDate `json:"position,omitempty"`
	LastHash Hash32     `json:"lastHash"`
}

func NewStatePtrBeforeGenesis(genesisHash Hash32) StatePtr {
	return StatePtr{LastHash: genesisHash}
}

func NewStatePtr(date BlockDate, hash Hash32) StatePtr {
	return StatePtr{Position: &date, LastHash: hash}
}

func (sp StatePtr) IsBeforeGenesis() bool {
	return sp.Position == nil
}

func (sp StatePtr) LatestBlockDate() BlockDate {
	if sp.Position == nil {
		return BlockDate{}
	}

	return *sp.Position
}

func (sp StatePtr) String() string {
	if sp.Position == nil {
		return fmt.Sprintf("%s: before genesis", sp.LastHash)
	}

	return fmt.Sprintf("%s: %s", sp.LastHash, sp.Position)
}

type Block struct {
	Date BlockDate
	Hash Hash32
	Txs  []*Tx
}

type Tx struct {
	ID      Hash32
	Inputs  []OutputRef
	Outputs []*TxOutput
}

type TxOutput struct {
	Address    string
	RawAddress []byte
	Amount     Coin
}

// RawBlock is an undecoded block as fetched from the network and stored in packs
type RawBlock struct {
	Type uint
	Cbor []byte
}
