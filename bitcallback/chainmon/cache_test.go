package chainmon

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payToAddrTx(t *testing.T, params *chaincfg.Params, addr string, value int64) *wire.MsgTx {
	t.Helper()
	decoded, err := btcutil.DecodeAddress(addr, params)
	require.NoError(t, err)

	script, err := txscript.PayToAddrScript(decoded)
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(value, script))
	return tx
}

func TestTxOutCacheLookupParsesAndCaches(t *testing.T) {
	client := newFakeChainClient(&chaincfg.MainNetParams)
	addr := "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"
	tx := payToAddrTx(t, client.params, addr, 5000)
	txid := tx.TxHash()
	client.rawTxs[txid] = tx

	cache, err := NewTxOutCache(client, 10)
	require.NoError(t, err)

	out, err := cache.Lookup(&txid, 0)
	require.NoError(t, err)
	assert.True(t, out.Standard)
	assert.Equal(t, addr, out.Address)
	assert.Equal(t, int64(5000), out.Value)
	assert.Equal(t, 1, cache.Len())

	// Second lookup is served from cache: removing the backing raw tx must
	// not break it.
	delete(client.rawTxs, txid)
	out2, err := cache.Lookup(&txid, 0)
	require.NoError(t, err)
	assert.Equal(t, out, out2)
}

func TestTxOutCacheLookupOutOfRangeIsProtocolError(t *testing.T) {
	client := newFakeChainClient(&chaincfg.MainNetParams)
	tx := payToAddrTx(t, client.params, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", 1)
	txid := tx.TxHash()
	client.rawTxs[txid] = tx

	cache, err := NewTxOutCache(client, 10)
	require.NoError(t, err)

	_, err = cache.Lookup(&txid, 5)
	assert.ErrorIs(t, err, ErrProtocolError)
}

func TestTxOutCacheEvictsLeastRecentlyUsed(t *testing.T) {
	client := newFakeChainClient(&chaincfg.MainNetParams)
	addr := "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"

	cache, err := NewTxOutCache(client, 2)
	require.NoError(t, err)

	tx1 := payToAddrTx(t, client.params, addr, 1)
	tx2 := payToAddrTx(t, client.params, addr, 2)
	tx3 := payToAddrTx(t, client.params, addr, 3)
	id1, id2, id3 := tx1.TxHash(), tx2.TxHash(), tx3.TxHash()
	client.rawTxs[id1] = tx1
	client.rawTxs[id2] = tx2
	client.rawTxs[id3] = tx3

	_, err = cache.Lookup(&id1, 0)
	require.NoError(t, err)
	_, err = cache.Lookup(&id2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	// A third, distinct entry must evict the least recently used (id1),
	// keeping the cache at its configured capacity.
	_, err = cache.Lookup(&id3, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	delete(client.rawTxs, id1)
	_, err = cache.Lookup(&id1, 0)
	assert.Error(t, err, "evicted entry should have required a re-fetch that now fails")
}
