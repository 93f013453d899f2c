package core

import (
	"bytes"
	"sort"
)

type UtxoSet map[OutputRef]*Utxo

func NewUtxoSet() UtxoSet {
	return make(UtxoSet)
}

func (us UtxoSet) Insert(utxo *Utxo) {
	us[utxo.OutputRef] = utxo
}

// Remove deletes the entry and returns it, nil if the set did not contain it
func (us UtxoSet) Remove(ref OutputRef) *Utxo {
	utxo, exists := us[ref]
	if !exists {
		return nil
	}

	delete(us, ref)

	return utxo
}

func (us UtxoSet) Get(ref OutputRef) (*Utxo, bool) {
	utxo, exists := us[ref]

	return utxo, exists
}

func (us UtxoSet) Len() int {
	return len(us)
}

func (us UtxoSet) Balance() (Coin, error) {
	var (
		total Coin
		err   error
	)

	for _, utxo := range us {
		if total, err = total.Add(utxo.Amount); err != nil {
			return 0, err
		}
	}

	return total, nil
}

func (us UtxoSet) Clone() UtxoSet {
	result := make(UtxoSet, len(us))
	for k, v := range us {
		result[k] = v
	}

	return result
}

// Sorted returns utxos ordered by output reference
func (us UtxoSet) Sorted() []*Utxo {
	result := make([]*Utxo, 0, len(us))
	for _, v := range us {
		result = append(result, v)
	}

	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].OutputRef.Key(), result[j].OutputRef.Key()) < 0
	})

	return result
}
