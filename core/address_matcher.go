package core

type OutputCandidate struct {
	TxID   Hash32
	Index  uint32
	Output *TxOutput
}

func (oc *OutputCandidate) OutputRef() OutputRef {
	return OutputRef{TxID: oc.TxID, Index: oc.Index}
}

// AddressMatcher decides which transaction outputs belong to the wallet.
// Implementations: RandomDerivationMatcher, Bip44Matcher, AccumulatorMatcher.
type AddressMatcher interface {
	// Lookup returns the wallet owned candidates stamped with ptr.
	// Implementations may update their own caches but nothing else.
	Lookup(ptr StatePtr, candidates []*OutputCandidate) ([]*Utxo, error)
	// AcknowledgeAddress tells the matcher an address is in use, so that sequential
	// matchers can move their search window.
	AcknowledgeAddress(tag WalletAddrTag) error
}

func newMatchedUtxo(ptr StatePtr, candidate *OutputCandidate, tag WalletAddrTag) *Utxo {
	return &Utxo{
		OutputRef:  candidate.OutputRef(),
		ObservedAt: ptr,
		AddrTag:    tag,
		Amount:     candidate.Output.Amount,
	}
}
