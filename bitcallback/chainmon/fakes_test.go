package chainmon

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/secnot/bitcallback/bitcallback/command"
)

// fakeChainClient is a hand-written ChainClient fake, in the style of
// chainntnfs' mock backends: blocks and raw transactions are registered by
// hash ahead of time, and TipHeight is whatever the test sets.
type fakeChainClient struct {
	params *chaincfg.Params
	tip    int32

	blocksByHeight map[int32]*chainhash.Hash
	blocks         map[chainhash.Hash]*wire.MsgBlock
	rawTxs         map[chainhash.Hash]*wire.MsgTx
}

func newFakeChainClient(params *chaincfg.Params) *fakeChainClient {
	return &fakeChainClient{
		params:         params,
		blocksByHeight: make(map[int32]*chainhash.Hash),
		blocks:         make(map[chainhash.Hash]*wire.MsgBlock),
		rawTxs:         make(map[chainhash.Hash]*wire.MsgTx),
	}
}

func (f *fakeChainClient) TipHeight() (int32, error) { return f.tip, nil }

func (f *fakeChainClient) BlockHash(height int32) (*chainhash.Hash, error) {
	h, ok := f.blocksByHeight[height]
	if !ok {
		return nil, ErrProtocolError
	}
	return h, nil
}

func (f *fakeChainClient) Block(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	b, ok := f.blocks[*hash]
	if !ok {
		return nil, ErrProtocolError
	}
	return b, nil
}

func (f *fakeChainClient) RawTx(txid *chainhash.Hash) (*wire.MsgTx, error) {
	tx, ok := f.rawTxs[*txid]
	if !ok {
		return nil, ErrProtocolError
	}
	return tx, nil
}

func (f *fakeChainClient) Params() *chaincfg.Params { return f.params }

func (f *fakeChainClient) setBlock(height int32, txs ...*wire.MsgTx) *chainhash.Hash {
	block := &wire.MsgBlock{Transactions: txs}
	hash := block.BlockHash()
	f.blocksByHeight[height] = &hash
	f.blocks[hash] = block
	for _, tx := range txs {
		txid := tx.TxHash()
		f.rawTxs[txid] = tx
	}
	return &hash
}

// fakeStore is an in-memory chainmon.Store fake.
type fakeStore struct {
	active  []command.SubscriptionData
	expired []int64
	cursor  int32
}

func (s *fakeStore) ActiveSubscriptions() ([]command.SubscriptionData, error) {
	return s.active, nil
}

func (s *fakeStore) ExpireSubscriptions(ids []int64) error {
	s.expired = append(s.expired, ids...)
	return nil
}

func (s *fakeStore) LoadCursor() (int32, error) { return s.cursor, nil }

func (s *fakeStore) SaveCursor(height int32) error {
	s.cursor = height
	return nil
}
