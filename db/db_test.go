package db

import (
	"path/filepath"
	"testing"

	"github.com/igorcrevar/cardano-go-wallet/core"
	"github.com/igorcrevar/cardano-go-wallet/db/boltdb"
	"github.com/igorcrevar/cardano-go-wallet/db/leveldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(b byte) core.Hash32 {
	var h core.Hash32
	for i := range h {
		h[i] = b
	}

	return h
}

func TestNewDatabase(t *testing.T) {
	assert.IsType(t, &leveldb.LevelDbDatabase{}, NewDatabase("LevelDB"))
	assert.IsType(t, &boltdb.BoltDatabase{}, NewDatabase("boltdb"))
	assert.IsType(t, &boltdb.BoltDatabase{}, NewDatabase(""))
}

func TestNewDatabaseInitFails(t *testing.T) {
	_, err := NewDatabaseInit("boltdb", filepath.Join(t.TempDir(), "missing", "wallet.db"))
	require.Error(t, err)

	filePath := filepath.Join(t.TempDir(), "wallet.db")

	_, err = NewDatabaseInit("levedb", filePath)
	require.ErrorContains(t, err, "unsupported database backend")
	assert.NoFileExists(t, filePath)
}

func TestWalletDb(t *testing.T) {
	for _, name := range []string{"boltdb", "leveldb"} {
		t.Run(name, func(t *testing.T) {
			db, err := NewDatabaseInit(name, filepath.Join(t.TempDir(), "wallet.db"))
			require.NoError(t, err)

			defer db.Close()

			ptr1 := core.NewStatePtr(core.BlockDate{Epoch: 1, Slot: 5}, testHash(1))
			ptr2 := core.NewStatePtr(core.BlockDate{Epoch: 2, Slot: 0}, testHash(2))
			utxo1 := &core.Utxo{
				OutputRef:  core.OutputRef{TxID: testHash(9), Index: 2},
				ObservedAt: ptr1,
				AddrTag:    core.NewRandomAddrTag(core.RandomPath{0x80000000, 4}),
				Amount:     10,
			}
			utxo2 := &core.Utxo{
				OutputRef:  core.OutputRef{TxID: testHash(3), Index: 7},
				ObservedAt: ptr1,
				AddrTag:    core.NewBip44AddrTag(core.Bip44Path{Index: 3}),
				Amount:     20,
			}
			// same key bytes under a wallet whose id is a prefix of the other
			foreign := &core.Utxo{
				OutputRef:  utxo1.OutputRef,
				ObservedAt: ptr2,
				AddrTag:    core.NewAccumulatorAddrTag(),
				Amount:     30,
			}

			missing, err := db.GetStatePtr("w")
			require.NoError(t, err)
			assert.Nil(t, missing)

			require.NoError(t, core.ApplyLogEntries(db.OpenTx(), "w", nil))

			dbTx := db.OpenTx()
			require.NoError(t, core.ApplyLogEntries(dbTx, "w", []*core.LogEntry{
				core.NewReceivedEntry(utxo1),
				core.NewReceivedEntry(utxo2),
			}))
			require.NoError(t, core.ApplyLogEntries(dbTx, "w1", []*core.LogEntry{
				core.NewReceivedEntry(foreign),
				core.NewCheckpointEntry(ptr2),
			}))
			require.NoError(t, dbTx.Execute())

			statePtr, err := db.GetStatePtr("w")
			require.NoError(t, err)
			require.NotNil(t, statePtr)
			assert.Equal(t, ptr1, *statePtr)

			statePtr, err = db.GetStatePtr("w1")
			require.NoError(t, err)
			require.NotNil(t, statePtr)
			assert.Equal(t, ptr2, *statePtr)

			utxos, err := db.GetUtxos("w")
			require.NoError(t, err)
			assert.Equal(t, []*core.Utxo{utxo2, utxo1}, utxos)

			utxo, err := db.GetUtxo("w1", foreign.OutputRef)
			require.NoError(t, err)
			assert.Equal(t, foreign, utxo)

			require.NoError(t, core.ApplyLogEntries(dbTx, "w", []*core.LogEntry{
				core.NewSpentEntry(utxo2),
				core.NewCheckpointEntry(ptr2),
			}))
			require.NoError(t, dbTx.Execute())

			utxo, err = db.GetUtxo("w", utxo2.OutputRef)
			require.NoError(t, err)
			assert.Nil(t, utxo)

			utxos, err = db.GetUtxos("w")
			require.NoError(t, err)
			assert.Equal(t, []*core.Utxo{utxo1}, utxos)

			utxos, err = db.GetUtxos("w2")
			require.NoError(t, err)
			assert.Empty(t, utxos)

			statePtr, err = db.GetStatePtr("w")
			require.NoError(t, err)
			assert.Equal(t, ptr2, *statePtr)
		})
	}
}
