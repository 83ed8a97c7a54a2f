package chainmon

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Transaction is the monitor's derived view of a confirmed transaction: its
// hash, and the monitored-address-relevant sums of its inputs and outputs.
// A coinbase transaction has an empty TIn.
type Transaction struct {
	Hash string
	TIn  map[string]int64
	TOut map[string]int64
}

// isCoinbase reports whether tx is a coinbase transaction: exactly one
// input referencing the all-zero previous outpoint.
func isCoinbase(tx *wire.MsgTx) bool {
	if len(tx.TxIn) != 1 {
		return false
	}
	prev := tx.TxIn[0].PreviousOutPoint
	return prev.Index == wire.MaxPrevOutIndex && prev.Hash == (chainhash.Hash{})
}

// buildTransaction parses tx into a Transaction, resolving input addresses
// through cache and grouping outputs by standard address. Non-standard
// outputs are dropped from TOut; non-standard inputs (sentinel entries in
// the cache) contribute nothing to TIn. Uses TxHash (the txid) rather than
// WitnessHash so segwit transactions are identified consistently with the
// rest of the system.
func buildTransaction(tx *wire.MsgTx, cache *TxOutCache) (*Transaction, error) {
	t := &Transaction{
		Hash: tx.TxHash().String(),
		TIn:  make(map[string]int64),
		TOut: make(map[string]int64),
	}

	t.TOut = sumOutputs(tx, cache)

	if isCoinbase(tx) {
		return t, nil
	}

	for _, txIn := range tx.TxIn {
		prevTxid := txIn.PreviousOutPoint.Hash
		out, err := cache.Lookup(&prevTxid, int(txIn.PreviousOutPoint.Index))
		if err != nil {
			return nil, err
		}
		if !out.Standard {
			continue
		}
		t.TIn[out.Address] += out.Value
	}

	return t, nil
}

// sumOutputs groups tx's own outputs by standard address, using the same
// script-parsing rules as the cache so that both a transaction's outputs and
// a later spender's cached view of them agree.
func sumOutputs(tx *wire.MsgTx, cache *TxOutCache) map[string]int64 {
	sums := make(map[string]int64)
	for _, out := range parseTxOuts(tx, cache.client.Params()) {
		if !out.Standard {
			continue
		}
		sums[out.Address] += out.Value
	}
	return sums
}
