package leveldb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/igorcrevar/cardano-go-wallet/core"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDbDatabase struct {
	db *leveldb.DB
}

var (
	statePtrPrefix = []byte("sp_")
	utxoPrefix     = []byte("ut_")
)

var _ core.WalletDb = (*LevelDbDatabase)(nil)

func (lvldb *LevelDbDatabase) Init(filePath string) error {
	db, err := leveldb.OpenFile(filePath, nil)
	if err != nil {
		return fmt.Errorf("could not open db: %w", err)
	}

	lvldb.db = db

	return nil
}

func (lvldb *LevelDbDatabase) Close() error {
	return lvldb.db.Close()
}

func (lvldb *LevelDbDatabase) GetStatePtr(walletID string) (*core.StatePtr, error) {
	var result *core.StatePtr

	if err := lvldb.get(statePtrKey(walletID), &result); err != nil {
		return nil, err
	}

	return result, nil
}

func (lvldb *LevelDbDatabase) GetUtxo(walletID string, ref core.OutputRef) (*core.Utxo, error) {
	var result *core.Utxo

	if err := lvldb.get(utxoKey(walletID, ref), &result); err != nil {
		return nil, err
	}

	return result, nil
}

// GetUtxos returns the wallet outputs ordered by their keys
func (lvldb *LevelDbDatabase) GetUtxos(walletID string) ([]*core.Utxo, error) {
	var result []*core.Utxo

	prefix := append(append([]byte(nil), utxoPrefix...), core.WalletKeyPrefix(walletID)...)

	iter := lvldb.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		var utxo *core.Utxo

		if err := json.Unmarshal(iter.Value(), &utxo); err != nil {
			return nil, err
		}

		result = append(result, utxo)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return result, nil
}

func (lvldb *LevelDbDatabase) OpenTx() core.DbTransactionWriter {
	return &LevelDbTransactionWriter{
		db: lvldb.db,
	}
}

func (lvldb *LevelDbDatabase) get(key []byte, value interface{}) error {
	bytes, err := lvldb.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil
		}

		return err
	}

	return json.Unmarshal(bytes, value)
}

func statePtrKey(walletID string) []byte {
	return append(append([]byte(nil), statePtrPrefix...), walletID...)
}

func utxoKey(walletID string, ref core.OutputRef) []byte {
	return append(append([]byte(nil), utxoPrefix...), core.WalletUtxoKey(walletID, ref)...)
}
