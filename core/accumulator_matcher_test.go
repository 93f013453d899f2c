package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorMatcher(t *testing.T) {
	matcher := NewAccumulatorMatcher([]string{
		"addr1v9kganeshgdqyhwnyn9stxxgl7r4y2ejfyqjn88n7ncapvs4sugsd",
		"addr_test1vqeux7xwusdju9dvsj8h7mca9aup2k439kfmwy773xxc2hcu7zy99",
	})
	ptr := NewStatePtr(BlockDate{Epoch: 400, Slot: 20}, testHash(4))

	found, err := matcher.Lookup(ptr, []*OutputCandidate{
		{TxID: testHash(1), Index: 0, Output: testOutput("addr_test1vqeux7xwusdju9dvsj8h7mca9aup2k439kfmwy773xxc2hcu7zy99", 2_000_000)},
		{TxID: testHash(1), Index: 1, Output: testOutput("addr_test1other", 1)},
	})
	require.NoError(t, err)
	require.Len(t, found, 1)

	assert.Equal(t, &Utxo{
		OutputRef:  OutputRef{TxID: testHash(1), Index: 0},
		ObservedAt: ptr,
		AddrTag:    NewAccumulatorAddrTag(),
		Amount:     2_000_000,
	}, found[0])

	require.NoError(t, matcher.AcknowledgeAddress(found[0].AddrTag))

	found, err = NewAccumulatorMatcher(nil).Lookup(ptr, []*OutputCandidate{
		{TxID: testHash(1), Index: 0, Output: testOutput("addr_test1other", 1)},
	})
	require.NoError(t, err)
	assert.Empty(t, found)
}
