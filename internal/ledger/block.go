package ledger

import (
	"sort"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/cryptoutil"
)

// BlockHeader carries everything needed to verify a block without
// re-executing it, plus the optional validator signature attached at
// finalization (§3).
type BlockHeader struct {
	Index              uint64
	ParentHash         chaintypes.Hash
	Slot               uint64
	Timestamp          int64
	Proposer           chaintypes.Address
	TransactionsRoot   chaintypes.Hash
	StateRoot          chaintypes.Hash
	ValidatorSignature *cryptoutil.Signature // nil until consensus.Engine.FinalizeBlock
}

// preimage builds the header hash input:
//
//	index(8 BE) ‖ parent_hash(32) ‖ slot(8 BE) ‖ timestamp(8 BE) ‖ proposer(20)
//	‖ transactions_root(32) ‖ state_root(32)
//
// The signature is excluded (§3).
func (h *BlockHeader) preimage() []byte {
	buf := make([]byte, 0, 8+32+8+8+20+32+32)
	buf = append(buf, beUint64(h.Index)...)
	buf = append(buf, h.ParentHash[:]...)
	buf = append(buf, beUint64(h.Slot)...)
	buf = append(buf, beUint64(uint64(h.Timestamp))...)
	buf = append(buf, h.Proposer[:]...)
	buf = append(buf, h.TransactionsRoot[:]...)
	buf = append(buf, h.StateRoot[:]...)
	return buf
}

// Hash computes the header's hash from its preimage.
func (h *BlockHeader) Hash() chaintypes.Hash {
	return cryptoutil.Keccak256(h.preimage())
}

// Sign attaches a validator signature over Hash() to the header.
func (h *BlockHeader) Sign(priv *cryptoutil.PrivateKey) error {
	sig, err := cryptoutil.Sign(priv, h.Hash())
	if err != nil {
		return err
	}
	h.ValidatorSignature = &sig
	return nil
}

// VerifySignature recovers the signer of ValidatorSignature and reports
// whether it matches addr. Returns false if no signature is attached.
func (h *BlockHeader) VerifySignature(addr chaintypes.Address) bool {
	if h.ValidatorSignature == nil {
		return false
	}
	signer, err := cryptoutil.Recover(h.Hash(), *h.ValidatorSignature)
	if err != nil {
		return false
	}
	return signer == addr
}

// Block is a header plus its ordered transaction sequence.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// ComputeTransactionsRoot hashes the concatenation of transaction hashes in
// ascending hash order (not insertion order) for determinism; an empty
// sequence yields the all-zero root (§3).
func ComputeTransactionsRoot(txs []*Transaction) chaintypes.Hash {
	if len(txs) == 0 {
		return chaintypes.Hash{}
	}
	hashes := make([]chaintypes.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })

	buf := make([]byte, 0, len(hashes)*chaintypes.HashLength)
	for _, h := range hashes {
		buf = append(buf, h[:]...)
	}
	return cryptoutil.Keccak256(buf)
}

// NewBlock builds a block whose header's TransactionsRoot is derived from
// txs. StateRoot is left zero — the executor fills it in at commit time
// (§4.2 create_block).
func NewBlock(index uint64, parentHash chaintypes.Hash, slot uint64, timestamp int64, proposer chaintypes.Address, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			Index:            index,
			ParentHash:       parentHash,
			Slot:             slot,
			Timestamp:        timestamp,
			Proposer:         proposer,
			TransactionsRoot: ComputeTransactionsRoot(txs),
		},
		Transactions: txs,
	}
}

// Receipt is a single transaction's execution outcome. Not persisted in
// this spec — reserved for an out-of-scope RPC surface (§3).
type Receipt struct {
	TxHash       chaintypes.Hash
	GasUsed      chaintypes.U256
	Success      bool
	ErrorMessage string
}
