package chainmon

// TransactionMonitor advances a block cursor, loads the block that is
// exactly confirmations-1 behind the tip, and returns transactions that
// touch a monitored address set.
type TransactionMonitor struct {
	client        ChainClient
	confirmations int32
	currentBlock  int32
	monitored     map[string]struct{}
	cache         *TxOutCache
}

// NewTransactionMonitor builds a monitor starting at startBlock. A
// non-positive startBlock is interpreted as tip+startBlock+1, clamped to
// >= 0.
func NewTransactionMonitor(client ChainClient, confirmations int32, startBlock int32, cacheCapacity int) (*TransactionMonitor, error) {
	if confirmations <= 0 {
		confirmations = 1
	}

	if startBlock <= 0 {
		tip, err := client.TipHeight()
		if err != nil {
			return nil, err
		}
		startBlock = tip + startBlock + 1
		if startBlock < 0 {
			startBlock = 0
		}
	}

	cache, err := NewTxOutCache(client, cacheCapacity)
	if err != nil {
		return nil, err
	}

	return &TransactionMonitor{
		client:        client,
		confirmations: confirmations,
		currentBlock:  startBlock,
		monitored:     make(map[string]struct{}),
		cache:         cache,
	}, nil
}

// CurrentBlock returns the cursor: the height of the next block this
// monitor will consider once it has accrued enough confirmations.
func (m *TransactionMonitor) CurrentBlock() int32 {
	return m.currentBlock
}

// AddAddr starts monitoring addr. Idempotent.
func (m *TransactionMonitor) AddAddr(addr string) {
	m.monitored[addr] = struct{}{}
}

// DelAddr stops monitoring addr. Tolerant of an address that isn't
// currently monitored.
func (m *TransactionMonitor) DelAddr(addr string) {
	delete(m.monitored, addr)
}

// IsMonitored reports whether addr is currently being watched.
func (m *TransactionMonitor) IsMonitored(addr string) bool {
	_, ok := m.monitored[addr]
	return ok
}

// GetConfirmed loads at most one newly-confirmed block and returns the
// transactions within it that touch a monitored address, advancing the
// cursor by exactly one block in the process.
func (m *TransactionMonitor) GetConfirmed() ([]Transaction, error) {
	tip, err := m.client.TipHeight()
	if err != nil {
		return nil, err
	}

	if m.currentBlock >= tip {
		return nil, nil
	}

	target := m.currentBlock - m.confirmations + 1

	hash, err := m.client.BlockHash(target)
	if err != nil {
		return nil, err
	}

	block, err := m.client.Block(hash)
	if err != nil {
		return nil, err
	}

	var matched []Transaction
	for _, tx := range block.Transactions {
		t, err := buildTransaction(tx, m.cache)
		if err != nil {
			return nil, err
		}
		if m.touchesMonitored(t) {
			matched = append(matched, *t)
		}
	}

	m.currentBlock++

	return matched, nil
}

func (m *TransactionMonitor) touchesMonitored(t *Transaction) bool {
	for addr := range t.TOut {
		if m.IsMonitored(addr) {
			return true
		}
	}
	for addr := range t.TIn {
		if m.IsMonitored(addr) {
			return true
		}
	}
	return false
}
