package chainmon

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheCapacity is the default number of transactions kept in a
// TxOutCache.
const DefaultCacheCapacity = 20000

// TxOut is one previously-seen transaction output: either a standard,
// address-bearing output, or a non-standard one (Standard is false and
// Address/Value are meaningless).
type TxOut struct {
	Address  string
	Value    int64
	Standard bool
}

// TxOutCache is a bounded, LRU-ordered mapping from txid to the ordered list
// of its outputs, used to resolve a spent input's address without
// re-fetching the whole previous transaction on every lookup.
// It never fails silently: a lookup miss fetches through to the ChainClient
// and any fetch error is returned to the caller.
type TxOutCache struct {
	client ChainClient
	cache  *lru.Cache
}

// NewTxOutCache builds a cache of the given capacity backed by client for
// cache misses.
func NewTxOutCache(client ChainClient, capacity int) (*TxOutCache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	inner, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &TxOutCache{client: client, cache: inner}, nil
}

// Lookup returns output n of transaction txid, fetching and parsing the
// transaction on a cache miss. Insertion order reflects recency of access:
// golang-lru's Get/Add both bump the entry to the most-recently-used
// position, and the cache never exceeds its configured capacity.
func (c *TxOutCache) Lookup(txid *chainhash.Hash, n int) (TxOut, error) {
	key := txid.String()

	if cached, ok := c.cache.Get(key); ok {
		outs := cached.([]TxOut)
		if n < 0 || n >= len(outs) {
			return TxOut{}, errOutputIndexRange(txid, n)
		}
		return outs[n], nil
	}

	tx, err := c.client.RawTx(txid)
	if err != nil {
		return TxOut{}, err
	}

	outs := parseTxOuts(tx, c.client.Params())
	c.cache.Add(key, outs)

	if n < 0 || n >= len(outs) {
		return TxOut{}, errOutputIndexRange(txid, n)
	}
	return outs[n], nil
}

// Len returns the number of transactions currently cached.
func (c *TxOutCache) Len() int {
	return c.cache.Len()
}

// Purge empties the cache.
func (c *TxOutCache) Purge() {
	c.cache.Purge()
}

// parseTxOuts converts every output of tx into a TxOut, dropping to the
// non-standard sentinel (Standard=false) any scriptPubKey that doesn't
// resolve to exactly one standard address.
func parseTxOuts(tx *wire.MsgTx, params *chaincfg.Params) []TxOut {
	outs := make([]TxOut, len(tx.TxOut))

	for i, txOut := range tx.TxOut {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(txOut.PkScript, params)
		if err != nil || len(addrs) != 1 {
			outs[i] = TxOut{Standard: false}
			continue
		}

		outs[i] = TxOut{
			Address:  addrs[0].EncodeAddress(),
			Value:    txOut.Value,
			Standard: true,
		}
	}

	return outs
}

func errOutputIndexRange(txid *chainhash.Hash, n int) error {
	return fmt.Errorf("%w: output %d out of range for tx %s", ErrProtocolError, n, txid)
}
