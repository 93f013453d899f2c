package boltdb

import (
	"encoding/json"
	"fmt"

	"github.com/igorcrevar/cardano-go-wallet/core"
	bolt "go.etcd.io/bbolt"
)

type BoltDbTransactionWriter struct {
	db         *bolt.DB
	operations []func(tx *bolt.Tx) error
}

var _ core.DbTransactionWriter = (*BoltDbTransactionWriter)(nil)

func (tw *BoltDbTransactionWriter) SetStatePtr(walletID string, ptr core.StatePtr) core.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bolt.Tx) error {
		bytes, err := json.Marshal(ptr)
		if err != nil {
			return fmt.Errorf("could not marshal state pointer: %w", err)
		}

		if err = tx.Bucket(statePtrBucket).Put([]byte(walletID), bytes); err != nil {
			return fmt.Errorf("state pointer write error: %w", err)
		}

		return nil
	})

	return tw
}

func (tw *BoltDbTransactionWriter) AddUtxo(walletID string, utxo *core.Utxo) core.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bolt.Tx) error {
		bytes, err := json.Marshal(utxo)
		if err != nil {
			return fmt.Errorf("could not marshal utxo: %w", err)
		}

		if err = tx.Bucket(utxosBucket).Put(core.WalletUtxoKey(walletID, utxo.OutputRef), bytes); err != nil {
			return fmt.Errorf("utxo write error: %w", err)
		}

		return nil
	})

	return tw
}

func (tw *BoltDbTransactionWriter) RemoveUtxo(walletID string, ref core.OutputRef) core.DbTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bolt.Tx) error {
		if err := tx.Bucket(utxosBucket).Delete(core.WalletUtxoKey(walletID, ref)); err != nil {
			return fmt.Errorf("utxo delete error: %w", err)
		}

		return nil
	})

	return tw
}

// Execute runs every staged operation inside a single bolt transaction
func (tw *BoltDbTransactionWriter) Execute() error {
	defer func() {
		tw.operations = nil
	}()

	return tw.db.Update(func(tx *bolt.Tx) error {
		for _, op := range tw.operations {
			if err := op(tx); err != nil {
				return err
			}
		}

		return nil
	})
}
