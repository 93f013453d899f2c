package core

import (
	"strings"
	"sync"
)

// addressPrefixMatcher owns every output whose address starts with its prefix
type addressPrefixMatcher struct {
	prefix       string
	acknowledged []WalletAddrTag
	lookups      int
}

func newAddressPrefixMatcher(prefix string) *addressPrefixMatcher {
	return &addressPrefixMatcher{prefix: prefix}
}

func (m *addressPrefixMatcher) Lookup(ptr StatePtr, candidates []*OutputCandidate) ([]*Utxo, error) {
	m.lookups++

	var result []*Utxo

	for _, candidate := range candidates {
		if strings.HasPrefix(candidate.Output.Address, m.prefix) {
			result = append(result, newMatchedUtxo(ptr, candidate, NewAccumulatorAddrTag()))
		}
	}

	return result, nil
}

func (m *addressPrefixMatcher) AcknowledgeAddress(tag WalletAddrTag) error {
	m.acknowledged = append(m.acknowledged, tag)

	return nil
}

// memoryWalletLog keeps wallet logs in memory
type memoryWalletLog struct {
	mutex   sync.Mutex
	held    map[string]bool
	entries map[string][]*LogEntry
}

var _ WalletLog = (*memoryWalletLog)(nil)

func newMemoryWalletLog() *memoryWalletLog {
	return &memoryWalletLog{
		held:    map[string]bool{},
		entries: map[string][]*LogEntry{},
	}
}

func (l *memoryWalletLog) AcquireLock(walletID string) (LogLock, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.held[walletID] {
		return nil, ErrLockBusy
	}

	l.held[walletID] = true

	return &memoryLogLock{log: l, walletID: walletID}, nil
}

type memoryLogLock struct {
	log      *memoryWalletLog
	walletID string
	released bool
}

func (l *memoryLogLock) WalletID() string {
	return l.walletID
}

func (l *memoryLogLock) OpenReader() (LogReader, error) {
	l.log.mutex.Lock()
	defer l.log.mutex.Unlock()

	if l.released {
		return nil, ErrLockReleased
	}

	entries, exists := l.log.entries[l.walletID]
	if !exists {
		return nil, ErrLogNotFound
	}

	return &memoryLogReader{entries: append([]*LogEntry(nil), entries...)}, nil
}

func (l *memoryLogLock) Append(entries []*LogEntry) error {
	l.log.mutex.Lock()
	defer l.log.mutex.Unlock()

	if l.released {
		return ErrLockReleased
	}

	l.log.entries[l.walletID] = append(l.log.entries[l.walletID], entries...)

	return nil
}

func (l *memoryLogLock) Release() error {
	l.log.mutex.Lock()
	defer l.log.mutex.Unlock()

	if !l.released {
		l.released = true
		delete(l.log.held, l.walletID)
	}

	return nil
}

type memoryLogReader struct {
	entries []*LogEntry
}

func (r *memoryLogReader) Next() (*LogEntry, error) {
	if len(r.entries) == 0 {
		return nil, nil
	}

	entry := r.entries[0]
	r.entries = r.entries[1:]

	return entry, nil
}

func (r *memoryLogReader) Close() error {
	return nil
}

func testHash(b byte) Hash32 {
	var h Hash32
	for i := range h {
		h[i] = b
	}

	return h
}

func testBlock(epoch, slot uint64, txs ...*Tx) *Block {
	return &Block{
		Date: BlockDate{Epoch: epoch, Slot: slot},
		Hash: testHash(byte(epoch*31 + slot + 1)),
		Txs:  txs,
	}
}

func testTx(id byte, inputs []OutputRef, outputs ...*TxOutput) *Tx {
	return &Tx{
		ID:      testHash(id),
		Inputs:  inputs,
		Outputs: outputs,
	}
}

func testOutput(address string, amount Coin) *TxOutput {
	return &TxOutput{
		Address:    address,
		RawAddress: []byte(address),
		Amount:     amount,
	}
}
