package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockDate(t *testing.T) {
	date := NewBlockDateFromSlot(21600*3+17, ByronMainnetEpochLength)

	assert.Equal(t, BlockDate{Epoch: 3, Slot: 17}, date)
	assert.Equal(t, uint64(21600*3+17), date.AbsoluteSlot(ByronMainnetEpochLength))
	assert.Equal(t, "3.17", date.String())
	assert.False(t, date.IsEpochStart())

	assert.True(t, BlockDate{Epoch: 2, Slot: 100}.Less(date))
	assert.True(t, BlockDate{Epoch: 3, Slot: 16}.Less(date))
	assert.False(t, date.Less(date))
	assert.Equal(t, 0, date.Compare(date))
	assert.Equal(t, 1, BlockDate{Epoch: 4}.Compare(date))
	assert.Equal(t, -1, BlockDate{Epoch: 3, Slot: 1}.Compare(date))

	assert.Equal(t, BlockDate{Epoch: 3, Slot: 18}, date.Next(ByronMainnetEpochLength))
	assert.Equal(t, BlockDate{Epoch: 1, Slot: 0}, BlockDate{Epoch: 0, Slot: 9}.Next(10))
	assert.True(t, BlockDate{Epoch: 1, Slot: 0}.IsEpochStart())
}

func TestStatePtr(t *testing.T) {
	genesis := NewStatePtrBeforeGenesis(testHash(9))

	assert.True(t, genesis.IsBeforeGenesis())
	assert.Equal(t, BlockDate{}, genesis.LatestBlockDate())

	ptr := NewStatePtr(BlockDate{Epoch: 5, Slot: 6}, testHash(1))
	assert.False(t, ptr.IsBeforeGenesis())
	assert.Equal(t, BlockDate{Epoch: 5, Slot: 6}, ptr.LatestBlockDate())
	assert.True(t, strings.Contains(ptr.String(), "5.6"))
}

func TestHash32(t *testing.T) {
	hash, err := NewHash32FromHex(strings.Repeat("ab", HashSize))
	require.NoError(t, err)
	assert.Equal(t, testHash(0xab), hash)

	_, err = NewHash32FromHex("abcd")
	require.ErrorIs(t, err, ErrDecode)

	_, err = NewHash32FromHex("zz")
	require.ErrorIs(t, err, ErrDecode)

	bytes, err := json.Marshal(OutputRef{TxID: hash, Index: 3})
	require.NoError(t, err)
	assert.Contains(t, string(bytes), strings.Repeat("ab", HashSize))

	var ref OutputRef
	require.NoError(t, json.Unmarshal(bytes, &ref))
	assert.Equal(t, OutputRef{TxID: hash, Index: 3}, ref)
}

func TestCoin(t *testing.T) {
	sum, err := SumCoins(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, Coin(6), sum)

	_, err = MaxCoin.Add(1)
	require.ErrorIs(t, err, ErrCoinOverflow)

	_, err = Coin(10).Add(Coin(^uint64(0)))
	require.ErrorIs(t, err, ErrCoinOverflow)

	value, err := MaxCoin.Add(0)
	require.NoError(t, err)
	assert.Equal(t, MaxCoin, value)
}

func TestOutputRefKey(t *testing.T) {
	key := OutputRef{TxID: testHash(1), Index: 0x01020304}.Key()

	require.Len(t, key, HashSize+4)
	assert.Equal(t, []byte{1, 2, 3, 4}, key[HashSize:])
}

func TestUtxoSet(t *testing.T) {
	utxos := NewUtxoSet()
	first := &Utxo{OutputRef: OutputRef{TxID: testHash(2), Index: 1}, Amount: 5}
	second := &Utxo{OutputRef: OutputRef{TxID: testHash(1), Index: 7}, Amount: 7}
	third := &Utxo{OutputRef: OutputRef{TxID: testHash(2), Index: 0}, Amount: 11}

	for _, x := range []*Utxo{first, second, third} {
		utxos.Insert(x)
	}

	assert.Equal(t, []*Utxo{second, third, first}, utxos.Sorted())

	balance, err := utxos.Balance()
	require.NoError(t, err)
	assert.Equal(t, Coin(23), balance)

	clone := utxos.Clone()
	assert.Equal(t, second, clone.Remove(second.OutputRef))
	assert.Nil(t, clone.Remove(second.OutputRef))
	assert.Equal(t, 2, clone.Len())
	assert.Equal(t, 3, utxos.Len())

	utxo, exists := utxos.Get(second.OutputRef)
	assert.True(t, exists)
	assert.Equal(t, second, utxo)
}

func TestLogEntryValidate(t *testing.T) {
	require.NoError(t, NewCheckpointEntry(StatePtr{}).Validate())
	require.NoError(t, NewReceivedEntry(&Utxo{}).Validate())
	require.NoError(t, NewSpentEntry(&Utxo{}).Validate())

	require.ErrorIs(t, (&LogEntry{Kind: LogEntryCheckpoint}).Validate(), ErrDecode)
	require.ErrorIs(t, (&LogEntry{Kind: LogEntryReceived}).Validate(), ErrDecode)
	require.ErrorIs(t, (&LogEntry{Kind: 42}).Validate(), ErrDecode)
}

func TestApplyLogEntries(t *testing.T) {
	db := newRecordingWalletDb()
	ptr := NewStatePtr(BlockDate{Epoch: 1, Slot: 3}, testHash(3))
	received := &Utxo{OutputRef: OutputRef{TxID: testHash(1)}, ObservedAt: ptr, Amount: 4}
	spent := &Utxo{OutputRef: OutputRef{TxID: testHash(2)}, Amount: 1}
	db.utxos[spent.OutputRef] = spent

	dbTx := db.OpenTx()
	require.NoError(t, ApplyLogEntries(dbTx, "w1", []*LogEntry{
		NewSpentEntry(spent),
		NewReceivedEntry(received),
	}))
	require.NoError(t, dbTx.Execute())

	assert.Equal(t, map[OutputRef]*Utxo{received.OutputRef: received}, db.utxos)
	assert.Equal(t, ptr, db.ptrs["w1"])

	require.ErrorIs(t, ApplyLogEntries(db.OpenTx(), "w1", []*LogEntry{{Kind: LogEntrySpent}}), ErrDecode)
}
