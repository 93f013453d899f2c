package core

import (
	"errors"
	"fmt"
)

const (
	DefaultBip44GapLimit = 20

	Bip44ExternalChain = 0
	Bip44InternalChain = 1
)

// AddressDeriver derives the raw address bytes for a bip44 path
type AddressDeriver interface {
	DeriveAddress(path Bip44Path) ([]byte, error)
}

type bip44Chain struct {
	account uint32
	change  uint32
}

// Bip44Matcher keeps GapLimit derived addresses past the highest used index of every
// configured account and chain
type Bip44Matcher struct {
	deriver   AddressDeriver
	gapLimit  uint32
	addresses map[string]Bip44Path
	// next index to derive per chain
	derived map[bip44Chain]uint32
}

var _ AddressMatcher = (*Bip44Matcher)(nil)

func NewBip44Matcher(deriver AddressDeriver, accounts []uint32, gapLimit uint32) (*Bip44Matcher, error) {
	if gapLimit == 0 {
		gapLimit = DefaultBip44GapLimit
	}

	if len(accounts) == 0 {
		accounts = []uint32{0}
	}

	m := &Bip44Matcher{
		deriver:   deriver,
		gapLimit:  gapLimit,
		addresses: make(map[string]Bip44Path),
		derived:   make(map[bip44Chain]uint32, len(accounts)*2),
	}

	for _, account := range accounts {
		for _, change := range []uint32{Bip44ExternalChain, Bip44InternalChain} {
			if err := m.extendWindow(bip44Chain{account: account, change: change}, 0); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Bip44Matcher) Lookup(ptr StatePtr, candidates []*OutputCandidate) ([]*Utxo, error) {
	var found []*Utxo

	for _, candidate := range candidates {
		path, exists := m.addresses[string(candidate.Output.RawAddress)]
		if !exists {
			continue
		}

		tag := NewBip44AddrTag(path)
		// window moves inside the same block, later outputs may use the next indexes
		if err := m.AcknowledgeAddress(tag); err != nil {
			return nil, err
		}

		found = append(found, newMatchedUtxo(ptr, candidate, tag))
	}

	return found, nil
}

func (m *Bip44Matcher) AcknowledgeAddress(tag WalletAddrTag) error {
	if tag.Kind != WalletAddrBip44 || tag.Bip44 == nil {
		return nil
	}

	chain := bip44Chain{account: tag.Bip44.Account, change: tag.Bip44.Change}

	return m.extendWindow(chain, tag.Bip44.Index+1)
}

// IsKnownAddress reports whether the raw address is currently inside the window
func (m *Bip44Matcher) IsKnownAddress(rawAddress []byte) bool {
	_, exists := m.addresses[string(rawAddress)]

	return exists
}

func (m *Bip44Matcher) extendWindow(chain bip44Chain, firstUnused uint32) error {
	target := firstUnused + m.gapLimit

	for next := m.derived[chain]; next < target; next++ {
		path := Bip44Path{Account: chain.account, Change: chain.change, Index: next}

		address, err := m.deriver.DeriveAddress(path)
		if err != nil {
			return errors.Join(ErrAddressDerivation, fmt.Errorf("path %d/%d/%d: %w", path.Account, path.Change, path.Index, err))
		}

		m.addresses[string(address)] = path
		m.derived[chain] = next + 1
	}

	return nil
}
