package core

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger"
)

const ByronMainnetEpochLength = uint64(21600)

type BlockDecoder interface {
	// DecodeBlock returns nil block for epoch boundary blocks, they occupy no slot
	DecodeBlock(raw *RawBlock) (*Block, error)
}

type LedgerBlockDecoder struct {
	EpochLength uint64
}

var _ BlockDecoder = (*LedgerBlockDecoder)(nil)

func NewLedgerBlockDecoder(epochLength uint64) *LedgerBlockDecoder {
	if epochLength == 0 {
		epochLength = ByronMainnetEpochLength
	}

	return &LedgerBlockDecoder{EpochLength: epochLength}
}

func (d *LedgerBlockDecoder) DecodeBlock(raw *RawBlock) (*Block, error) {
	if raw.Type == ledger.BlockTypeByronEbb {
		return nil, nil
	}

	block, err := ledger.NewBlockFromCbor(raw.Type, raw.Cbor)
	if err != nil {
		return nil, errors.Join(ErrDecode, err)
	}

	hash, err := NewHash32FromHex(block.Hash())
	if err != nil {
		return nil, fmt.Errorf("invalid block hash: %w", err)
	}

	txs, err := getTxs(block.Transactions())
	if err != nil {
		return nil, err
	}

	return &Block{
		Date: NewBlockDateFromSlot(block.SlotNumber(), d.EpochLength),
		Hash: hash,
		Txs:  txs,
	}, nil
}

func getTxs(blockTxs []ledger.Transaction) ([]*Tx, error) {
	var txs []*Tx
	if len(blockTxs) > 0 {
		txs = make([]*Tx, len(blockTxs))
	}

	for i, x := range blockTxs {
		txID, err := NewHash32FromHex(x.Hash())
		if err != nil {
			return nil, fmt.Errorf("invalid tx hash: %w", err)
		}

		txs[i] = &Tx{
			ID:      txID,
			Inputs:  make([]OutputRef, len(x.Inputs())),
			Outputs: make([]*TxOutput, len(x.Outputs())),
		}

		for j, y := range x.Inputs() {
			txs[i].Inputs[j] = OutputRef{
				TxID:  Hash32(y.Id()),
				Index: y.Index(),
			}
		}

		for j, y := range x.Outputs() {
			address := y.Address()
			txs[i].Outputs[j] = &TxOutput{
				Address:    address.String(),
				RawAddress: address.Bytes(),
				Amount:     Coin(y.Amount()),
			}
		}
	}

	return txs, nil
}
