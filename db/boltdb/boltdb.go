package boltdb

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/igorcrevar/cardano-go-wallet/core"
	bolt "go.etcd.io/bbolt"
)

type BoltDatabase struct {
	db *bolt.DB
}

var (
	statePtrBucket = []byte("StatePtr")
	utxosBucket    = []byte("Utxos")
)

var _ core.WalletDb = (*BoltDatabase)(nil)

func (bd *BoltDatabase) Init(filePath string) error {
	db, err := bolt.Open(filePath, 0600, nil)
	if err != nil {
		return fmt.Errorf("could not open db: %w", err)
	}

	bd.db = db

	return db.Update(func(tx *bolt.Tx) error {
		for _, bn := range [][]byte{statePtrBucket, utxosBucket} {
			_, err := tx.CreateBucketIfNotExists(bn)
			if err != nil {
				return fmt.Errorf("could not create bucket: %s, err: %w", string(bn), err)
			}
		}

		return nil
	})
}

func (bd *BoltDatabase) Close() error {
	return bd.db.Close()
}

func (bd *BoltDatabase) GetStatePtr(walletID string) (*core.StatePtr, error) {
	var result *core.StatePtr

	if err := bd.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(statePtrBucket).Get([]byte(walletID)); len(data) > 0 {
			return json.Unmarshal(data, &result)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BoltDatabase) GetUtxo(walletID string, ref core.OutputRef) (*core.Utxo, error) {
	var result *core.Utxo

	if err := bd.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(utxosBucket).Get(core.WalletUtxoKey(walletID, ref)); len(data) > 0 {
			return json.Unmarshal(data, &result)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// GetUtxos returns the wallet outputs ordered by their keys
func (bd *BoltDatabase) GetUtxos(walletID string) ([]*core.Utxo, error) {
	var result []*core.Utxo

	prefix := core.WalletKeyPrefix(walletID)

	if err := bd.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(utxosBucket).Cursor()

		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var utxo *core.Utxo

			if err := json.Unmarshal(v, &utxo); err != nil {
				return err
			}

			result = append(result, utxo)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BoltDatabase) OpenTx() core.DbTransactionWriter {
	return &BoltDbTransactionWriter{
		db: bd.db,
	}
}
