package walletlog

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/igorcrevar/cardano-go-wallet/core"
)

// records are cbor arrays, new fields may only be appended at the end

type blockDateRecord struct {
	_     struct{} `cbor:",toarray"`
	Epoch uint64
	Slot  uint64
}

type statePtrRecord struct {
	_        struct{} `cbor:",toarray"`
	Position *blockDateRecord
	LastHash []byte
}

type bip44PathRecord struct {
	_       struct{} `cbor:",toarray"`
	Account uint32
	Change  uint32
	Index   uint32
}

type addrTagRecord struct {
	_      struct{} `cbor:",toarray"`
	Kind   uint8
	Bip44  *bip44PathRecord
	Random []uint32
}

type utxoRecord struct {
	_          struct{} `cbor:",toarray"`
	TxID       []byte
	Index      uint32
	ObservedAt statePtrRecord
	AddrTag    addrTagRecord
	Amount     uint64
}

type logRecord struct {
	_          struct{} `cbor:",toarray"`
	Kind       uint8
	Checkpoint *statePtrRecord
	Utxo       *utxoRecord
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	return mode
}()

func encodeLogEntry(entry *core.LogEntry) ([]byte, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	record := logRecord{Kind: uint8(entry.Kind)}

	if entry.Checkpoint != nil {
		ptr := newStatePtrRecord(*entry.Checkpoint)
		record.Checkpoint = &ptr
	}

	if entry.Utxo != nil {
		utxo := newUtxoRecord(entry.Utxo)
		record.Utxo = &utxo
	}

	return encMode.Marshal(record)
}

func decodeLogEntry(data []byte) (*core.LogEntry, error) {
	var record logRecord
	if err := cbor.Unmarshal(data, &record); err != nil {
		return nil, errors.Join(core.ErrDecode, err)
	}

	entry := &core.LogEntry{Kind: core.LogEntryKind(record.Kind)}

	if record.Checkpoint != nil {
		ptr, err := record.Checkpoint.toStatePtr()
		if err != nil {
			return nil, err
		}

		entry.Checkpoint = &ptr
	}

	if record.Utxo != nil {
		utxo, err := record.Utxo.toUtxo()
		if err != nil {
			return nil, err
		}

		entry.Utxo = utxo
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	return entry, nil
}

func newStatePtrRecord(ptr core.StatePtr) statePtrRecord {
	record := statePtrRecord{LastHash: ptr.LastHash[:]}
	if ptr.Position != nil {
		record.Position = &blockDateRecord{Epoch: ptr.Position.Epoch, Slot: ptr.Position.Slot}
	}

	return record
}

func (r statePtrRecord) toStatePtr() (core.StatePtr, error) {
	hash, err := core.NewHash32FromBytes(r.LastHash)
	if err != nil {
		return core.StatePtr{}, err
	}

	if r.Position == nil {
		return core.NewStatePtrBeforeGenesis(hash), nil
	}

	return core.NewStatePtr(core.BlockDate{Epoch: r.Position.Epoch, Slot: r.Position.Slot}, hash), nil
}

func newUtxoRecord(utxo *core.Utxo) utxoRecord {
	record := utxoRecord{
		TxID:       utxo.OutputRef.TxID[:],
		Index:      utxo.OutputRef.Index,
		ObservedAt: newStatePtrRecord(utxo.ObservedAt),
		AddrTag: addrTagRecord{
			Kind:   uint8(utxo.AddrTag.Kind),
			Random: utxo.AddrTag.Random,
		},
		Amount: uint64(utxo.Amount),
	}

	if path := utxo.AddrTag.Bip44; path != nil {
		record.AddrTag.Bip44 = &bip44PathRecord{Account: path.Account, Change: path.Change, Index: path.Index}
	}

	return record
}

func (r *utxoRecord) toUtxo() (*core.Utxo, error) {
	txID, err := core.NewHash32FromBytes(r.TxID)
	if err != nil {
		return nil, err
	}

	observedAt, err := r.ObservedAt.toStatePtr()
	if err != nil {
		return nil, err
	}

	tag := core.WalletAddrTag{Kind: core.WalletAddrKind(r.AddrTag.Kind)}

	switch tag.Kind {
	case core.WalletAddrBip44:
		if r.AddrTag.Bip44 == nil {
			return nil, fmt.Errorf("%w: bip44 address tag without path", core.ErrDecode)
		}

		tag.Bip44 = &core.Bip44Path{
			Account: r.AddrTag.Bip44.Account,
			Change:  r.AddrTag.Bip44.Change,
			Index:   r.AddrTag.Bip44.Index,
		}
	case core.WalletAddrRandom:
		tag.Random = core.RandomPath(r.AddrTag.Random)
	case core.WalletAddrAccumulator:
	default:
		return nil, fmt.Errorf("%w: unknown address tag kind %d", core.ErrDecode, r.AddrTag.Kind)
	}

	return &core.Utxo{
		OutputRef:  core.OutputRef{TxID: txID, Index: r.Index},
		ObservedAt: observedAt,
		AddrTag:    tag,
		Amount:     core.Coin(r.Amount),
	}, nil
}
