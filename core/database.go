package core

import "fmt"

type DbTransactionWriter interface {
	SetStatePtr(walletID string, ptr StatePtr) DbTransactionWriter
	AddUtxo(walletID string, utxo *Utxo) DbTransactionWriter
	RemoveUtxo(walletID string, ref OutputRef) DbTransactionWriter
	Execute() error
}

type WalletDbReader interface {
	GetStatePtr(walletID string) (*StatePtr, error)
	GetUtxo(walletID string, ref OutputRef) (*Utxo, error)
	GetUtxos(walletID string) ([]*Utxo, error)
}

// WalletDb is a read model of the wallet log for query consumers
type WalletDb interface {
	WalletDbReader
	Init(filePath string) error
	Close() error
	OpenTx() DbTransactionWriter
}

// WalletLog is the durable append-only event store of wallets
type WalletLog interface {
	AcquireLock(walletID string) (LogLock, error)
}

type LogLock interface {
	WalletID() string
	OpenReader() (LogReader, error)
	Append(entries []*LogEntry) error
	Release() error
}

type LogReader interface {
	// Next returns nil entry at the end of the log
	Next() (*LogEntry, error)
	Close() error
}

// EpochArchiver stores the blocks of finalized epochs
type EpochArchiver interface {
	BeginEpoch(epochID uint64) (EpochPackBuilder, error)
}

type EpochPackBuilder interface {
	EpochID() uint64
	Append(raw *RawBlock, block *Block) error
	Finalize() error
	Abort()
}

// WalletKeyPrefix is the prefix of every projection key that belongs to the wallet
func WalletKeyPrefix(walletID string) []byte {
	return append([]byte(walletID), 0)
}

func WalletUtxoKey(walletID string, ref OutputRef) []byte {
	return append(WalletKeyPrefix(walletID), ref.Key()...)
}

// ApplyLogEntries stages the writes produced by the given events into dbTx
func ApplyLogEntries(dbTx DbTransactionWriter, walletID string, entries []*LogEntry) error {
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return err
		}

		switch entry.Kind {
		case LogEntryCheckpoint:
			dbTx.SetStatePtr(walletID, *entry.Checkpoint)
		case LogEntryReceived:
			dbTx.AddUtxo(walletID, entry.Utxo)
			dbTx.SetStatePtr(walletID, entry.Utxo.ObservedAt)
		case LogEntrySpent:
			dbTx.RemoveUtxo(walletID, entry.Utxo.OutputRef)
		default:
			return fmt.Errorf("%w: unknown log entry kind %d", ErrDecode, entry.Kind)
		}
	}

	return nil
}
