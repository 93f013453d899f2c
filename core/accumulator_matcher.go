package core

// AccumulatorMatcher matches outputs paid to a fixed set of addresses
type AccumulatorMatcher struct {
	addressesOfInterest map[string]bool
}

var _ AddressMatcher = (*AccumulatorMatcher)(nil)

func NewAccumulatorMatcher(addresses []string) *AccumulatorMatcher {
	addressesOfInterest := make(map[string]bool, len(addresses))
	for _, x := range addresses {
		addressesOfInterest[x] = true
	}

	return &AccumulatorMatcher{
		addressesOfInterest: addressesOfInterest,
	}
}

func (m *AccumulatorMatcher) Lookup(ptr StatePtr, candidates []*OutputCandidate) ([]*Utxo, error) {
	var found []*Utxo

	for _, candidate := range candidates {
		if m.addressesOfInterest[candidate.Output.Address] {
			found = append(found, newMatchedUtxo(ptr, candidate, NewAccumulatorAddrTag()))
		}
	}

	return found, nil
}

func (m *AccumulatorMatcher) AcknowledgeAddress(WalletAddrTag) error {
	return nil
}
