// Package consensus holds the slot clock, block template construction,
// header validation, and best-block tracking. Grounded on the teacher's
// internal/consensus/consensus_engine.go/proposer.go/validation.go
// service split (ProposerService-style template construction,
// ValidationService-style ordered checks), generalized from the
// teacher's SHA-256/height-increments-every-second model to the spec's
// slot-clock/stake-weighted-proposer design (§4.2 C10).
package consensus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/cryptoutil"
	"github.com/empower1/chainnode/internal/execution"
	"github.com/empower1/chainnode/internal/ledger"
	"github.com/empower1/chainnode/internal/validatorset"
)

// Sentinel errors.
var (
	ErrNotMyTurn          = errors.New("consensus: local key is not the proposer for this slot")
	ErrInvalidIndex       = errors.New("consensus: block index does not extend the current chain tip")
	ErrInvalidParentHash  = errors.New("consensus: parent hash does not match the current chain tip")
	ErrWrongProposer      = errors.New("consensus: header proposer does not match the slot's selected proposer")
	ErrBlockTooFarFuture  = errors.New("consensus: block timestamp is more than 30s in the future")
	ErrTransactionsRoot   = errors.New("consensus: transactions root does not match the block's transactions")
	ErrHeaderHashMismatch = errors.New("consensus: header does not recompute to its claimed hash")
)

// futureToleranceSeconds is the maximum amount of clock drift a received
// block's timestamp may have relative to this node's clock (§4.2 check 4).
const futureToleranceSeconds = 30

// Engine holds the slot clock and chain-tip bookkeeping a single node
// needs to build, finalize, and validate blocks. All state is guarded by
// a single mutex; callers are expected to honor the fixed lock order
// described in §5 (consensus before executor/mempool/storage).
type Engine struct {
	mu sync.Mutex

	slotDuration time.Duration
	genesisTime  time.Time

	currentSlot        uint64
	currentBlockNumber uint64
	currentBlockHash   chaintypes.Hash

	proposerSelection *validatorset.Set
	localKey          *cryptoutil.PrivateKey
	localAddress      chaintypes.Address

	logger *zap.SugaredLogger
}

// NewEngine builds an Engine at genesis: block number 0, zero parent
// hash. localKey may be nil for a pure Attestor with no signing identity.
func NewEngine(slotDuration time.Duration, genesisTime time.Time, selection *validatorset.Set, localKey *cryptoutil.PrivateKey, logger *zap.SugaredLogger) *Engine {
	e := &Engine{
		slotDuration:      slotDuration,
		genesisTime:       genesisTime,
		proposerSelection: selection,
		localKey:          localKey,
		logger:            logger,
	}
	if localKey != nil {
		e.localAddress = cryptoutil.DeriveAddress(localKey.Public())
	}
	return e
}

// CurrentSlot computes floor((now-genesis_time)/slot_duration). Slot 0
// begins at genesis; a now before genesis clamps to slot 0.
func (e *Engine) CurrentSlot(now time.Time) uint64 {
	elapsed := now.Sub(e.genesisTime)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / e.slotDuration)
}

// ShouldProduceBlock reports whether the live slot clock has advanced
// past the engine's tracked slot AND the local key is that slot's
// selected proposer.
func (e *Engine) ShouldProduceBlock(now time.Time) bool {
	if e.localKey == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	slot := e.CurrentSlot(now)
	if slot <= e.currentSlot {
		return false
	}
	proposer, err := e.proposerSelection.SelectProposer(slot)
	if err != nil {
		return false
	}
	return proposer == e.localAddress
}

// CreateBlock builds an unfinalized block template for the current slot:
// index = current+1, parent = current tip, proposer = the slot's
// selected proposer, state_root left zero for the executor to fill,
// transactions_root computed over txs (§4.2 create_block).
func (e *Engine) CreateBlock(txs []*ledger.Transaction) (*ledger.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot := e.CurrentSlot(time.Now())
	proposer, err := e.proposerSelection.SelectProposer(slot)
	if err != nil {
		return nil, fmt.Errorf("consensus: cannot create block: %w", err)
	}

	block := ledger.NewBlock(
		e.currentBlockNumber+1,
		e.currentBlockHash,
		slot,
		time.Now().Unix(),
		proposer,
		txs,
	)
	return block, nil
}

// FinalizeBlock sets header.state_root from the execution result, and,
// if the local key matches the header's proposer, signs header.Hash()
// and attaches the signature.
func (e *Engine) FinalizeBlock(block *ledger.Block, result execution.Result) (*ledger.Block, error) {
	block.Header.StateRoot = result.StateRoot

	if e.localKey != nil && block.Header.Proposer == e.localAddress {
		if err := block.Header.Sign(e.localKey); err != nil {
			return nil, fmt.Errorf("consensus: failed to sign finalized block: %w", err)
		}
	}
	return block, nil
}

// ValidateBlock runs the ordered structural checks of §4.2, returning the
// first failure. Signature verification is the orchestrator's
// responsibility and happens before this call (§4.6 step 1).
func (e *Engine) ValidateBlock(block *ledger.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if block.Header.Index != e.currentBlockNumber+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidIndex, e.currentBlockNumber+1, block.Header.Index)
	}
	if block.Header.ParentHash != e.currentBlockHash {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidParentHash, e.currentBlockHash, block.Header.ParentHash)
	}
	expectedProposer, err := e.proposerSelection.SelectProposer(block.Header.Slot)
	if err != nil {
		return fmt.Errorf("consensus: cannot validate block: %w", err)
	}
	if block.Header.Proposer != expectedProposer {
		return fmt.Errorf("%w: expected %s, got %s", ErrWrongProposer, expectedProposer, block.Header.Proposer)
	}
	if block.Header.Timestamp > time.Now().Unix()+futureToleranceSeconds {
		return ErrBlockTooFarFuture
	}
	if block.Header.TransactionsRoot != ledger.ComputeTransactionsRoot(block.Transactions) {
		return ErrTransactionsRoot
	}
	// Step 6 (header.hash() recomputes to the attached value) is vacuous
	// here: this header carries no separately-transmitted hash field to
	// compare against, only fields hash() derives from directly. The
	// orchestrator performs the meaningful version of this check by
	// recovering the signer from ValidatorSignature over Header.Hash()
	// before calling ValidateBlock (§4.6 step 1).
	return nil
}

// UpdateBestBlock advances the engine's tracked chain tip and slot to the
// committed block's values. Must be called exactly once per committed
// block, after the storage write (§4.2 update_best_block).
func (e *Engine) UpdateBestBlock(block *ledger.Block) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentBlockNumber = block.Header.Index
	e.currentBlockHash = block.Header.Hash()
	e.currentSlot = block.Header.Slot

	if e.logger != nil {
		e.logger.Infow("best block updated", "index", e.currentBlockNumber, "hash", e.currentBlockHash.String(), "slot", e.currentSlot)
	}
}

// CurrentBlockNumber returns the engine's tracked chain height.
func (e *Engine) CurrentBlockNumber() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentBlockNumber
}

// LocalAddress returns the address derived from the engine's signing key,
// or the zero address if it has none.
func (e *Engine) LocalAddress() chaintypes.Address {
	return e.localAddress
}
