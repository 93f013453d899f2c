package core

import (
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerBlockDecoder_EpochBoundaryBlock(t *testing.T) {
	decoder := NewLedgerBlockDecoder(0)
	assert.Equal(t, ByronMainnetEpochLength, decoder.EpochLength)

	block, err := decoder.DecodeBlock(&RawBlock{Type: ledger.BlockTypeByronEbb, Cbor: []byte{0x80}})
	require.NoError(t, err)
	assert.Nil(t, block)
}

func TestLedgerBlockDecoder_InvalidCbor(t *testing.T) {
	decoder := NewLedgerBlockDecoder(ByronMainnetEpochLength)

	_, err := decoder.DecodeBlock(&RawBlock{Type: ledger.BlockTypeByronMain, Cbor: []byte{0xff, 0x00, 0x13}})
	require.ErrorIs(t, err, ErrDecode)
}
