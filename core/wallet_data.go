package core

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxCoin is the total lovelace supply
const MaxCoin = Coin(45_000_000_000_000_000)

type Coin uint64

func (c Coin) Add(other Coin) (Coin, error) {
	if other > math.MaxUint64-c || c+other > MaxCoin {
		return 0, fmt.Errorf("%w: %d + %d", ErrCoinOverflow, c, other)
	}

	return c + other, nil
}

func SumCoins(coins ...Coin) (result Coin, err error) {
	for _, x := range coins {
		result, err = result.Add(x)
		if err != nil {
			return 0, err
		}
	}

	return result, nil
}

// OutputRef identifies a transaction output
type OutputRef struct {
	TxID  Hash32 `json:"id"`
	Index uint32 `json:"index"`
}

func (or OutputRef) Key() []byte {
	return binary.BigEndian.AppendUint32(append(make([]byte, 0, HashSize+4), or.TxID[:]...), or.Index)
}

func (or OutputRef) String() string {
	return fmt.Sprintf("%s.%d", or.TxID, or.Index)
}

type WalletAddrKind uint8

const (
	WalletAddrBip44 WalletAddrKind = iota + 1
	WalletAddrRandom
	WalletAddrAccumulator
)

type Bip44Path struct {
	Account uint32 `json:"account"`
	Change  uint32 `json:"change"`
	Index   uint32 `json:"index"`
}

// RandomPath is the derivation path stored encrypted inside Byron random-index addresses
type RandomPath []uint32

// WalletAddrTag records how an output was recognized as ours
type WalletAddrTag struct {
	Kind   WalletAddrKind `json:"kind"`
	Bip44  *Bip44Path     `json:"bip44,omitempty"`
	Random RandomPath     `json:"random,omitempty"`
}

func NewBip44AddrTag(path Bip44Path) WalletAddrTag {
	return WalletAddrTag{Kind: WalletAddrBip44, Bip44: &path}
}

func NewRandomAddrTag(path RandomPath) WalletAddrTag {
	return WalletAddrTag{Kind: WalletAddrRandom, Random: path}
}

func NewAccumulatorAddrTag() WalletAddrTag {
	return WalletAddrTag{Kind: WalletAddrAccumulator}
}

func (t WalletAddrTag) String() string {
	switch t.Kind {
	case WalletAddrBip44:
		if t.Bip44 == nil {
			return "bip44(?)"
		}

		return fmt.Sprintf("bip44(%d/%d/%d)", t.Bip44.Account, t.Bip44.Change, t.Bip44.Index)
	case WalletAddrRandom:
		return fmt.Sprintf("random(%v)", []uint32(t.Random))
	case WalletAddrAccumulator:
		return "accumulator"
	default:
		return fmt.Sprintf("unknown(%d)", t.Kind)
	}
}

type Utxo struct {
	OutputRef  OutputRef     `json:"ref"`
	ObservedAt StatePtr      `json:"observedAt"`
	AddrTag    WalletAddrTag `json:"addrTag"`
	Amount     Coin          `json:"amount"`
}

type LogEntryKind uint8

const (
	LogEntryCheckpoint LogEntryKind = iota + 1
	LogEntryReceived
	LogEntrySpent
)

func (k LogEntryKind) String() string {
	switch k {
	case LogEntryCheckpoint:
		return "checkpoint"
	case LogEntryReceived:
		return "received"
	case LogEntrySpent:
		return "spent"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// LogEntry is one event of the wallet log. Checkpoint entries carry a StatePtr,
// Received and Spent entries carry the Utxo.
type LogEntry struct {
	Kind       LogEntryKind
	Checkpoint *StatePtr
	Utxo       *Utxo
}

func NewCheckpointEntry(ptr StatePtr) *LogEntry {
	return &LogEntry{Kind: LogEntryCheckpoint, Checkpoint: &ptr}
}

func NewReceivedEntry(utxo *Utxo) *LogEntry {
	return &LogEntry{Kind: LogEntryReceived, Utxo: utxo}
}

func NewSpentEntry(utxo *Utxo) *LogEntry {
	return &LogEntry{Kind: LogEntrySpent, Utxo: utxo}
}

func (le *LogEntry) Validate() error {
	switch le.Kind {
	case LogEntryCheckpoint:
		if le.Checkpoint == nil {
			return fmt.Errorf("%w: checkpoint entry without state pointer", ErrDecode)
		}
	case LogEntryReceived, LogEntrySpent:
		if le.Utxo == nil {
			return fmt.Errorf("%w: %s entry without utxo", ErrDecode, le.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown log entry kind %d", ErrDecode, le.Kind)
	}

	return nil
}
