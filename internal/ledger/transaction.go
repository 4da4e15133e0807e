// Package ledger holds the transaction and block wire model: canonical byte
// encoding, hashing, and signature attachment (§3, §4 C4). Grounded on the
// teacher's internal/core/transaction.go prepareDataForHashing/Hash/Sign/
// VerifySignature shape, with the hashing body swapped from the teacher's
// JSON canonicalization onto the spec's fixed-width binary preimage.
package ledger

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/cryptoutil"
)

// Sentinel errors for transaction construction/verification failures.
var (
	ErrSameAddress      = errors.New("ledger: sender and recipient must differ")
	ErrMissingSignature = errors.New("ledger: transaction has no signature attached")
	ErrSignerMismatch   = errors.New("ledger: recovered signer does not match From")
	ErrHashMismatch     = errors.New("ledger: recomputed hash does not match tx.Hash")
	ErrSerialization    = errors.New("ledger: failed to serialize transaction")
	ErrDeserialization  = errors.New("ledger: failed to deserialize transaction")
)

// Transaction is a signed value transfer. Every field listed here
// participates in the canonical preimage except Signature and Hash
// themselves (§3).
type Transaction struct {
	From      chaintypes.Address
	To        chaintypes.Address
	Amount    chaintypes.U256
	GasLimit  chaintypes.U256
	GasPrice  chaintypes.U256
	Timestamp int64
	Nonce     uint64

	Signature cryptoutil.Signature
	Hash      chaintypes.Hash
}

// NewTransaction builds an unsigned, unhashed transaction. Call Sign to
// attach both signature and hash.
func NewTransaction(from, to chaintypes.Address, amount, gasLimit, gasPrice chaintypes.U256, nonce uint64) (*Transaction, error) {
	if from == to {
		return nil, ErrSameAddress
	}
	return &Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		GasLimit:  gasLimit,
		GasPrice:  gasPrice,
		Timestamp: time.Now().UnixNano(),
		Nonce:     nonce,
	}, nil
}

// preimage builds the canonical byte representation used for both hashing
// and signing:
//
//	from(20) ‖ to(20) ‖ amount(32 BE) ‖ gas_limit(32 BE) ‖ gas_price(32 BE)
//	‖ timestamp(8 BE) ‖ nonce(8 BE)
//
// Signature bytes are never part of this preimage (§3).
func (tx *Transaction) preimage() []byte {
	buf := make([]byte, 0, 20+20+32+32+32+8+8)
	buf = append(buf, tx.From[:]...)
	buf = append(buf, tx.To[:]...)
	amount := tx.Amount.Bytes32()
	buf = append(buf, amount[:]...)
	gasLimit := tx.GasLimit.Bytes32()
	buf = append(buf, gasLimit[:]...)
	gasPrice := tx.GasPrice.Bytes32()
	buf = append(buf, gasPrice[:]...)
	buf = append(buf, beUint64(uint64(tx.Timestamp))...)
	buf = append(buf, beUint64(tx.Nonce)...)
	return buf
}

// ComputeHash returns keccak256(preimage). It does not mutate tx or set
// tx.Hash — callers decide when to commit the computed value.
func (tx *Transaction) ComputeHash() chaintypes.Hash {
	return cryptoutil.Keccak256(tx.preimage())
}

// Sign signs tx with priv, setting both Signature and Hash. From must
// already equal the address derived from priv (the caller is responsible
// for constructing the transaction with the signer's own address).
func (tx *Transaction) Sign(priv *cryptoutil.PrivateKey) error {
	h := tx.ComputeHash()
	sig, err := cryptoutil.Sign(priv, h)
	if err != nil {
		return fmt.Errorf("ledger: failed to sign transaction: %w", err)
	}
	tx.Hash = h
	tx.Signature = sig
	return nil
}

// IsSignatureValid checks the invariant recover(hash, signature) == from,
// and that the attached Hash matches a fresh recomputation of the preimage
// (§3, §4.3 step 1).
func (tx *Transaction) IsSignatureValid() bool {
	if tx.Signature == (cryptoutil.Signature{}) {
		return false
	}
	if tx.ComputeHash() != tx.Hash {
		return false
	}
	signer, err := cryptoutil.Recover(tx.Hash, tx.Signature)
	if err != nil {
		return false
	}
	return signer == tx.From
}

// Verify returns a descriptive error in place of IsSignatureValid's bool,
// for callers (mempool admission) that want to report *why* a tx was
// rejected.
func (tx *Transaction) Verify() error {
	if tx.Signature == (cryptoutil.Signature{}) {
		return ErrMissingSignature
	}
	if tx.ComputeHash() != tx.Hash {
		return ErrHashMismatch
	}
	signer, err := cryptoutil.Recover(tx.Hash, tx.Signature)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if signer != tx.From {
		return ErrSignerMismatch
	}
	return nil
}

// Serialize gob-encodes tx. No other package in this module calls it: the
// mempool hands out *Transaction values directly, and the persisted and
// broadcast form is JSON (§6).
func (tx *Transaction) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return buf.Bytes(), nil
}

// DeserializeTransaction is the inverse of Serialize.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return &tx, nil
}

func beUint64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}
