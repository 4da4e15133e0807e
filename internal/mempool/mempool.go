// Package mempool holds the bounded set of pending, signature-valid
// transactions awaiting inclusion in a block. Grounded on the teacher's
// internal/mempool/mempool.go map-behind-a-mutex shape, generalized from
// its fee-less FIFO admission to the spec's replace-by-fee and
// one-pending-tx-per-(from,nonce) rules (§4.3 C5).
package mempool

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/ledger"
)

// Sentinel errors returned by AddTransaction.
var (
	ErrInvalidSignature   = errors.New("mempool: transaction signature is invalid")
	ErrZeroAddress        = errors.New("mempool: from/to address must not be zero")
	ErrReplaceByFeeTooLow = errors.New("mempool: replacement gas price must exceed the existing transaction's")
	ErrMempoolFull        = errors.New("mempool: at capacity")
)

type senderNonce struct {
	from  chaintypes.Address
	nonce uint64
}

// Mempool is a bounded tx_hash→Transaction map with replace-by-fee
// semantics and at most one pending transaction per (from, nonce).
type Mempool struct {
	mu      sync.Mutex
	maxSize int
	byHash  map[chaintypes.Hash]*ledger.Transaction
	bySlot  map[senderNonce]chaintypes.Hash
	logger  *zap.SugaredLogger
}

// New creates an empty Mempool bounded at maxSize entries.
func New(maxSize int, logger *zap.SugaredLogger) *Mempool {
	return &Mempool{
		maxSize: maxSize,
		byHash:  make(map[chaintypes.Hash]*ledger.Transaction),
		bySlot:  make(map[senderNonce]chaintypes.Hash),
		logger:  logger,
	}
}

// AddTransaction runs the spec's ordered admission checks and, on success,
// inserts tx and returns its hash.
//
//  1. signature validity (recover(hash,sig)==from, recomputed hash matches)
//  2. from != to, both non-zero
//  3. replace-by-fee on (from, nonce)
//  4. capacity
func (m *Mempool) AddTransaction(tx *ledger.Transaction) (chaintypes.Hash, error) {
	if !tx.IsSignatureValid() {
		return chaintypes.Hash{}, ErrInvalidSignature
	}
	if tx.From == tx.To || tx.From.IsZero() || tx.To.IsZero() {
		return chaintypes.Hash{}, ErrZeroAddress
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := senderNonce{from: tx.From, nonce: tx.Nonce}
	if existingHash, ok := m.bySlot[key]; ok {
		existing := m.byHash[existingHash]
		if tx.GasPrice.Cmp(existing.GasPrice) <= 0 {
			return chaintypes.Hash{}, ErrReplaceByFeeTooLow
		}
		delete(m.byHash, existingHash)
		if m.logger != nil {
			m.logger.Debugw("mempool replace-by-fee", "from", tx.From.String(), "nonce", tx.Nonce, "evicted", existingHash.String())
		}
	} else if len(m.byHash) >= m.maxSize {
		return chaintypes.Hash{}, ErrMempoolFull
	}

	m.byHash[tx.Hash] = tx
	m.bySlot[key] = tx.Hash
	if m.logger != nil {
		m.logger.Debugw("mempool admitted transaction", "hash", tx.Hash.String(), "from", tx.From.String(), "nonce", tx.Nonce)
	}
	return tx.Hash, nil
}

// GetAllTransactions returns a snapshot of pending transactions sorted by
// hash ascending, so callers that need determinism get it for free (the
// spec permits "unspecified order" but the orchestrator and tests benefit
// from a stable one).
func (m *Mempool) GetAllTransactions() []*ledger.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*ledger.Transaction, 0, len(m.byHash))
	for _, tx := range m.byHash {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash.Less(out[j].Hash) })
	return out
}

// Len reports the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// ClearAll empties the mempool. Called by the orchestrator after a block
// commits; granularity is "clear everything", not "clear only included
// transactions" (§4.3).
func (m *Mempool) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash = make(map[chaintypes.Hash]*ledger.Transaction)
	m.bySlot = make(map[senderNonce]chaintypes.Hash)
}
