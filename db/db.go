package db

import (
	"fmt"
	"strings"

	"github.com/igorcrevar/cardano-go-wallet/core"
	"github.com/igorcrevar/cardano-go-wallet/db/boltdb"
	"github.com/igorcrevar/cardano-go-wallet/db/leveldb"
)

func NewDatabase(name string) core.WalletDb {
	switch strings.ToLower(name) {
	case core.DatabaseBackendLevelDb:
		return &leveldb.LevelDbDatabase{}
	default:
		return &boltdb.BoltDatabase{}
	}
}

func NewDatabaseInit(name string, filePath string) (core.WalletDb, error) {
	switch strings.ToLower(name) {
	case core.DatabaseBackendBoltDb, core.DatabaseBackendLevelDb:
	default:
		return nil, fmt.Errorf("unsupported database backend: %s", name)
	}

	db := NewDatabase(name)
	if err := db.Init(filePath); err != nil {
		return nil, err
	}

	return db, nil
}
