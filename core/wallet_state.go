package core

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// WalletState is the in-memory view of a wallet, rebuilt from its log.
// It is not safe for concurrent use.
type WalletState struct {
	ptr     StatePtr
	matcher AddressMatcher
	utxos   UtxoSet
	logger  hclog.Logger
}

func NewWalletState(ptr StatePtr, matcher AddressMatcher, utxos UtxoSet, logger hclog.Logger) *WalletState {
	if utxos == nil {
		utxos = NewUtxoSet()
	}

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &WalletState{
		ptr:     ptr,
		matcher: matcher,
		utxos:   utxos,
		logger:  logger,
	}
}

// LoadWalletState acquires the wallet log lock, replays the log and releases the lock
func LoadWalletState(
	walletLog WalletLog, walletID string, initialPtr StatePtr, matcher AddressMatcher, logger hclog.Logger,
) (*WalletState, error) {
	lock, err := walletLog.AcquireLock(walletID)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	return LoadWalletStateWithLock(lock, initialPtr, matcher, logger)
}

// LoadWalletStateWithLock replays the log of an already locked wallet
func LoadWalletStateWithLock(
	lock LogLock, initialPtr StatePtr, matcher AddressMatcher, logger hclog.Logger,
) (*WalletState, error) {
	state := NewWalletState(initialPtr, matcher, nil, logger)

	reader, err := lock.OpenReader()
	if errors.Is(err, ErrLogNotFound) {
		state.logger.Debug("No wallet log, starting fresh", "wallet", lock.WalletID(), "ptr", initialPtr)

		return state, nil
	} else if err != nil {
		return nil, err
	}
	defer reader.Close()

	count := 0

	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, err
		} else if entry == nil {
			break
		}

		if err := state.replay(entry); err != nil {
			return nil, fmt.Errorf("replay of entry %d failed: %w", count, err)
		}

		count++
	}

	state.logger.Debug("Wallet log replayed", "wallet", lock.WalletID(),
		"entries", count, "ptr", state.ptr, "utxos", state.utxos.Len())

	return state, nil
}

func (ws *WalletState) Ptr() StatePtr {
	return ws.ptr
}

func (ws *WalletState) Utxos() UtxoSet {
	return ws.utxos
}

func (ws *WalletState) Matcher() AddressMatcher {
	return ws.matcher
}

func (ws *WalletState) Balance() (Coin, error) {
	return ws.utxos.Balance()
}

// Forward applies blocks in chain order and returns the produced events.
// Nothing is persisted, caller must append the events to the wallet log.
// The batch is applied entirely or not at all.
func (ws *WalletState) Forward(blocks []*Block) ([]*LogEntry, error) {
	if err := ws.validateOrdering(blocks); err != nil {
		return nil, err
	}

	var (
		events []*LogEntry
		ptr    = ws.ptr
		utxos  = ws.utxos.Clone()
	)

	for _, block := range blocks {
		currentPtr := NewStatePtr(block.Date, block.Hash)

		var (
			candidates []*OutputCandidate
			// tx position in the block by id and spending tx position by output
			txIndexes = make(map[Hash32]int, len(block.Txs))
			spentBy   = make(map[OutputRef]int)
		)

		for txIdx, tx := range block.Txs {
			txIndexes[tx.ID] = txIdx

			for _, input := range tx.Inputs {
				if utxo := utxos.Remove(input); utxo != nil {
					events = append(events, NewSpentEntry(utxo))
				} else {
					spentBy[input] = txIdx
				}
			}

			for i, output := range tx.Outputs {
				candidates = append(candidates, &OutputCandidate{
					TxID:   tx.ID,
					Index:  uint32(i),
					Output: output,
				})
			}
		}

		if len(candidates) > 0 {
			found, err := ws.matcher.Lookup(currentPtr, candidates)
			if err != nil {
				return nil, fmt.Errorf("lookup failed for block %s: %w", block.Date, err)
			}

			for _, utxo := range found {
				events = append(events, NewReceivedEntry(utxo))
				utxos.Insert(utxo)
			}

			// outputs spent by a later transaction of the same block
			for _, utxo := range found {
				spenderIdx, isSpent := spentBy[utxo.OutputRef]
				if isSpent && spenderIdx > txIndexes[utxo.OutputRef.TxID] {
					utxos.Remove(utxo.OutputRef)
					events = append(events, NewSpentEntry(utxo))
				}
			}
		}

		ptr = currentPtr

		if block.Date.IsEpochStart() {
			events = append(events, NewCheckpointEntry(ptr))
		}
	}

	ws.ptr = ptr
	ws.utxos = utxos

	return events, nil
}

func (ws *WalletState) validateOrdering(blocks []*Block) error {
	latest := ws.ptr.Position

	for _, block := range blocks {
		if latest != nil && !latest.Less(block.Date) {
			return fmt.Errorf("%w: block %s is not after %s", ErrInvalidOrdering, block.Date, latest)
		}

		latest = &block.Date
	}

	return nil
}

func (ws *WalletState) replay(entry *LogEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	switch entry.Kind {
	case LogEntryCheckpoint:
		ws.ptr = *entry.Checkpoint
	case LogEntryReceived:
		if err := ws.matcher.AcknowledgeAddress(entry.Utxo.AddrTag); err != nil {
			return err
		}

		ws.ptr = entry.Utxo.ObservedAt
		ws.utxos.Insert(entry.Utxo)
	case LogEntrySpent:
		if err := ws.matcher.AcknowledgeAddress(entry.Utxo.AddrTag); err != nil {
			return err
		}

		ws.utxos.Remove(entry.Utxo.OutputRef)
	}

	return nil
}
