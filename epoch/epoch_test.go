package epoch

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/igorcrevar/cardano-go-wallet/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

const (
	testEpochLength   = uint64(6)
	testBoundaryBlock = uint(0)
	testMainBlock     = uint(1)
)

// slotDecoder reads the absolute slot from the first 8 bytes of the block
type slotDecoder struct{}

func (slotDecoder) DecodeBlock(raw *core.RawBlock) (*core.Block, error) {
	if raw.Type == testBoundaryBlock {
		return nil, nil
	}

	if len(raw.Cbor) < 8 {
		return nil, core.ErrDecode
	}

	return &core.Block{
		Date: core.NewBlockDateFromSlot(binary.BigEndian.Uint64(raw.Cbor), testEpochLength),
		Hash: core.Hash32(blake2b.Sum256(raw.Cbor)),
	}, nil
}

func testRawBlock(absoluteSlot uint64) *core.RawBlock {
	data := binary.BigEndian.AppendUint64(nil, absoluteSlot)
	data = append(data, bytes.Repeat([]byte{byte(absoluteSlot)}, 40)...)

	return &core.RawBlock{Type: testMainBlock, Cbor: data}
}

func writeTestPack(t *testing.T, storage *Storage, raws ...*core.RawBlock) PackHash {
	t.Helper()

	writer, err := storage.NewPackWriter()
	require.NoError(t, err)

	for _, raw := range raws {
		require.NoError(t, writer.Append(raw))
	}

	packHash, err := writer.Finalize()
	require.NoError(t, err)

	return packHash
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	storage, err := NewStorage(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	return storage
}

func TestPackWriterAndReader(t *testing.T) {
	storage := newTestStorage(t)
	raws := []*core.RawBlock{
		{Type: testBoundaryBlock, Cbor: []byte{0x82, 0x01}},
		testRawBlock(1),
		{Type: testMainBlock, Cbor: nil},
	}

	packHash := writeTestPack(t, storage, raws...)

	content, err := os.ReadFile(storage.packFilePath(packHash))
	require.NoError(t, err)
	assert.Equal(t, PackHash(blake2b.Sum256(content)), packHash)

	reader, err := storage.OpenPack(packHash)
	require.NoError(t, err)

	defer reader.Close()

	for _, expected := range raws {
		raw, err := reader.Next()
		require.NoError(t, err)
		require.NotNil(t, raw)
		assert.Equal(t, expected.Type, raw.Type)
		assert.Equal(t, len(expected.Cbor), len(raw.Cbor))
		assert.True(t, bytes.Equal(expected.Cbor, raw.Cbor))
	}

	raw, err := reader.Next()
	require.NoError(t, err)
	assert.Nil(t, raw)

	readHash, err := reader.Finalize()
	require.NoError(t, err)
	assert.Equal(t, packHash, readHash)
}

func TestPackWriterAbort(t *testing.T) {
	storage := newTestStorage(t)

	writer, err := storage.NewPackWriter()
	require.NoError(t, err)
	require.NoError(t, writer.Append(testRawBlock(1)))

	writer.Abort()

	entries, err := os.ReadDir(storage.packDir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.Error(t, writer.Append(testRawBlock(2)))
}

func TestPackReaderTruncated(t *testing.T) {
	storage := newTestStorage(t)
	packHash := writeTestPack(t, storage, testRawBlock(1), testRawBlock(2))

	path := storage.packFilePath(packHash)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, content[:len(content)-3], 0600))

	reader, err := storage.OpenPack(packHash)
	require.NoError(t, err)

	defer reader.Close()

	_, err = reader.Next()
	require.NoError(t, err)

	_, err = reader.Next()
	require.ErrorIs(t, err, core.ErrDecode)
}

func TestCreateFromKnownRefPack(t *testing.T) {
	storage := newTestStorage(t)
	packHash := writeTestPack(t, storage, testRawBlock(6), testRawBlock(8))

	refPack := NewRefPack()
	refPack.PushBack(testHash(1))
	refPack.PushBackMissing()
	refPack.PushBack(testHash(2))

	require.NoError(t, storage.CreateFromKnownRefPack(1, packHash, refPack))

	readHash, readRefPack, err := storage.Read(1)
	require.NoError(t, err)
	assert.Equal(t, packHash, readHash)
	assert.Equal(t, refPack, readRefPack)

	hash, exists, err := storage.GetBlockHash(core.BlockDate{Epoch: 1, Slot: 2})
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, testHash(2), hash)

	_, exists, err = storage.GetBlockHash(core.BlockDate{Epoch: 1, Slot: 1})
	require.NoError(t, err)
	assert.False(t, exists)

	_, exists, err = storage.GetBlockHash(core.BlockDate{Epoch: 1, Slot: 5})
	require.NoError(t, err)
	assert.False(t, exists)

	// no temporary files are left behind
	entries, err := os.ReadDir(storage.epochDir(1))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	epochs, err := storage.ListEpochs()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, epochs)
}

func TestCreateByRebuilding(t *testing.T) {
	storage := newTestStorage(t)

	// epoch 2 starts at absolute slot 12, blocks in relative slots 0, 2 and 5
	raws := []*core.RawBlock{
		{Type: testBoundaryBlock, Cbor: []byte{0x01}},
		testRawBlock(12),
		testRawBlock(14),
		testRawBlock(17),
	}
	packHash := writeTestPack(t, storage, raws...)

	require.NoError(t, storage.CreateByRebuilding(2, packHash, slotDecoder{}))

	_, refPack, err := storage.Read(2)
	require.NoError(t, err)
	require.Equal(t, 6, refPack.Len())

	for slot, raw := range map[int]*core.RawBlock{0: raws[1], 2: raws[2], 5: raws[3]} {
		hash, exists := refPack.Get(slot)
		assert.True(t, exists)
		assert.Equal(t, core.Hash32(blake2b.Sum256(raw.Cbor)), hash)
	}

	for _, slot := range []int{1, 3, 4} {
		_, exists := refPack.Get(slot)
		assert.False(t, exists)
	}
}

func TestCreateByRebuildingIntegrityMismatch(t *testing.T) {
	// offsets: pack header is 5 bytes, record header is block type (2) and length (4)
	for name, offset := range map[string]int{
		"pack magic":    0,
		"block type":    6,
		"record length": 8,
		"block slot":    11,
		"last byte":     -1,
	} {
		t.Run(name, func(t *testing.T) {
			storage := newTestStorage(t)
			packHash := writeTestPack(t, storage, testRawBlock(12), testRawBlock(14))

			path := storage.packFilePath(packHash)
			content, err := os.ReadFile(path)
			require.NoError(t, err)

			if offset < 0 {
				offset += len(content)
			}

			content[offset] ^= 0xff
			require.NoError(t, os.WriteFile(path, content, 0600))

			err = storage.CreateByRebuilding(2, packHash, slotDecoder{})
			require.ErrorIs(t, err, core.ErrIntegrityMismatch)

			_, err = os.Stat(storage.epochDir(2))
			assert.True(t, os.IsNotExist(err))

			epochs, err := storage.ListEpochs()
			require.NoError(t, err)
			assert.Empty(t, epochs)
		})
	}
}

func TestCreateFromKnownRefPackWithoutRefPack(t *testing.T) {
	storage := newTestStorage(t)
	packHash := writeTestPack(t, storage, testRawBlock(6))

	require.Error(t, storage.CreateFromKnownRefPack(1, packHash, nil))

	epochs, err := storage.ListEpochs()
	require.NoError(t, err)
	assert.Empty(t, epochs)
}

func TestCreateByRebuildingInvalidOrder(t *testing.T) {
	storage := newTestStorage(t)

	for _, raws := range [][]*core.RawBlock{
		{testRawBlock(14), testRawBlock(13)},
		{testRawBlock(14), testRawBlock(14)},
		{testRawBlock(12), testRawBlock(18)},
	} {
		packHash := writeTestPack(t, storage, raws...)

		err := storage.CreateByRebuilding(2, packHash, slotDecoder{})
		require.ErrorIs(t, err, core.ErrDecode)
	}
}

func TestReadPackPointer(t *testing.T) {
	storage := newTestStorage(t)

	require.NoError(t, os.MkdirAll(storage.epochDir(3), 0755))

	for _, content := range []string{"abcd", "zz", ""} {
		require.NoError(t, os.WriteFile(storage.packPointerFilePath(3), []byte(content), 0600))

		_, err := storage.ReadPackPointer(3)
		require.ErrorIs(t, err, core.ErrDecode)
	}

	packHash := PackHash(testHash(7))
	require.NoError(t, os.WriteFile(storage.packPointerFilePath(3), []byte(packHash.String()+"\n"), 0600))

	readHash, err := storage.ReadPackPointer(3)
	require.NoError(t, err)
	assert.Equal(t, packHash, readHash)

	_, err = storage.ReadPackPointer(4)
	assert.True(t, os.IsNotExist(err))
}

func TestBuilder(t *testing.T) {
	storage := newTestStorage(t)
	decoder := slotDecoder{}

	epochBuilder, err := storage.BeginEpoch(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), epochBuilder.EpochID())

	raws := []*core.RawBlock{{Type: testBoundaryBlock, Cbor: []byte{0x01}}, testRawBlock(13), testRawBlock(16)}
	for _, raw := range raws {
		block, err := decoder.DecodeBlock(raw)
		require.NoError(t, err)
		require.NoError(t, epochBuilder.Append(raw, block))
	}

	require.NoError(t, epochBuilder.Finalize())

	packHash, refPack, err := storage.Read(2)
	require.NoError(t, err)
	assert.Equal(t, 5, refPack.Len())

	// rebuilding the same pack gives the same refpack
	rebuilt, err := storage.rebuildRefPack(2, packHash, decoder)
	require.NoError(t, err)
	assert.Equal(t, refPack, rebuilt)

	aborted, err := storage.BeginEpoch(3)
	require.NoError(t, err)
	require.NoError(t, aborted.Append(testRawBlock(18), nil))
	aborted.Abort()

	entries, err := os.ReadDir(storage.packDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(storage.packFilePath(packHash)), entries[0].Name())

	epochBuilder, err = storage.BeginEpoch(4)
	require.NoError(t, err)

	block, err := decoder.DecodeBlock(testRawBlock(13))
	require.NoError(t, err)
	require.ErrorIs(t, epochBuilder.Append(testRawBlock(13), block), core.ErrDecode)
	epochBuilder.Abort()
}
