package chainmon

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// bitcoindInWarmupCode is the RPC error code bitcoind returns while it is
// still replaying the block index (RPC_IN_WARMUP). It is bitcoind-specific
// and not modeled as a named constant in btcd's btcjson package.
const bitcoindInWarmupCode = -28

// ChainClient is a thin, read-only abstraction over a JSON-RPC node.
// Chain selection is fixed at construction. All methods may fail with
// ErrConnectionFailed or ErrNodeWarmingUp (retryable) or ErrProtocolError
// (not retryable for the current request, does not invalidate the client).
type ChainClient interface {
	TipHeight() (int32, error)
	BlockHash(height int32) (*chainhash.Hash, error)
	Block(hash *chainhash.Hash) (*wire.MsgBlock, error)
	RawTx(txid *chainhash.Hash) (*wire.MsgTx, error)
	Params() *chaincfg.Params
}

// RPCClient implements ChainClient over btcd's rpcclient in HTTP POST mode,
// matching the polling, non-websocket style of a bitcoind JSON-RPC proxy.
type RPCClient struct {
	conn   *rpcclient.Client
	params *chaincfg.Params
}

// NewRPCClient dials a node's JSON-RPC endpoint. url is the node's
// host:port, e.g. "127.0.0.1:8332" (the BITCOIND_URL config value, §6); the
// RPC credentials are passed separately as user and pass. chain selects the
// chaincfg.Params fixed for the lifetime of the client.
func NewRPCClient(url, user, pass string, disableTLS bool, chain string) (*RPCClient, error) {
	params, err := ParamsForChain(chain)
	if err != nil {
		return nil, err
	}

	connCfg := &rpcclient.ConnConfig{
		Host:         url,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   disableTLS,
	}

	conn, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, classifyErr(err)
	}

	return &RPCClient{conn: conn, params: params}, nil
}

// ParamsForChain resolves the chaincfg.Params for CHAIN ∈ {mainnet, testnet,
// regtest}.
func ParamsForChain(chain string) (*chaincfg.Params, error) {
	switch chain {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("chainmon: unknown chain %q", chain)
	}
}

// Params returns the chain parameters fixed at construction.
func (c *RPCClient) Params() *chaincfg.Params {
	return c.params
}

// TipHeight returns the current best block height.
func (c *RPCClient) TipHeight() (int32, error) {
	height, err := c.conn.GetBlockCount()
	if err != nil {
		return 0, classifyErr(err)
	}
	return int32(height), nil
}

// BlockHash returns the hash of the block at height.
func (c *RPCClient) BlockHash(height int32) (*chainhash.Hash, error) {
	hash, err := c.conn.GetBlockHash(int64(height))
	if err != nil {
		return nil, classifyErr(err)
	}
	return hash, nil
}

// Block returns the full block (with transactions) for hash.
func (c *RPCClient) Block(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	block, err := c.conn.GetBlock(hash)
	if err != nil {
		return nil, classifyErr(err)
	}
	return block, nil
}

// RawTx returns the raw transaction identified by txid.
func (c *RPCClient) RawTx(txid *chainhash.Hash) (*wire.MsgTx, error) {
	tx, err := c.conn.GetRawTransaction(txid)
	if err != nil {
		return nil, classifyErr(err)
	}
	return tx.MsgTx(), nil
}

// Shutdown releases the underlying connection.
func (c *RPCClient) Shutdown() {
	c.conn.Shutdown()
}

// classifyErr maps a raw rpcclient/btcjson error onto the taxonomy in §4.2
// and §7: transient connectivity problems and warm-up become retryable
// sentinels, everything else (malformed responses, unexpected RPC errors)
// becomes a protocol error.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}

	if rpcErr, ok := err.(*btcjson.RPCError); ok {
		if rpcErr.Code == bitcoindInWarmupCode {
			return ErrNodeWarmingUp
		}
		return ErrProtocolError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no route to host"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "i/o timeout"):
		return ErrConnectionFailed
	}

	return ErrProtocolError
}
