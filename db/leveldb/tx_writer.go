package leveldb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/igorcrevar/cardano-go-wallet/core"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

type LevelDbTransactionWriter struct {
	db    *leveldb.DB
	batch leveldb.Batch
	errs  []error
}

var _ core.DbTransactionWriter = (*LevelDbTransactionWriter)(nil)

func (tw *LevelDbTransactionWriter) SetStatePtr(walletID string, ptr core.StatePtr) core.DbTransactionWriter {
	bytes, err := json.Marshal(ptr)
	if err != nil {
		tw.errs = append(tw.errs, fmt.Errorf("could not marshal state pointer: %w", err))
	} else {
		tw.batch.Put(statePtrKey(walletID), bytes)
	}

	return tw
}

func (tw *LevelDbTransactionWriter) AddUtxo(walletID string, utxo *core.Utxo) core.DbTransactionWriter {
	bytes, err := json.Marshal(utxo)
	if err != nil {
		tw.errs = append(tw.errs, fmt.Errorf("could not marshal utxo: %w", err))
	} else {
		tw.batch.Put(utxoKey(walletID, utxo.OutputRef), bytes)
	}

	return tw
}

func (tw *LevelDbTransactionWriter) RemoveUtxo(walletID string, ref core.OutputRef) core.DbTransactionWriter {
	tw.batch.Delete(utxoKey(walletID, ref))

	return tw
}

// Execute writes the batch atomically. Nothing is written if any staged operation failed.
func (tw *LevelDbTransactionWriter) Execute() error {
	defer func() {
		tw.batch.Reset()
		tw.errs = nil
	}()

	if len(tw.errs) > 0 {
		return errors.Join(tw.errs...)
	}

	return tw.db.Write(&tw.batch, &opt.WriteOptions{Sync: true})
}
