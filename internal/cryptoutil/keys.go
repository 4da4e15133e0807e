// Package cryptoutil provides the chain's cryptographic primitives: secp256k1
// key pairs, keccak-256 digests, and recoverable signatures over a 32-byte
// prehash. Adapted from the teacher's internal/crypto/keys.go PEM
// load/save shape, swapped from P-256/SHA-256 onto the curve and digest the
// spec requires.
package cryptoutil

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/empower1/chainnode/internal/chaintypes"
)

// --- Sentinel errors, matching the teacher's one-var-block-per-file
// convention in internal/crypto/keys.go. ---
var (
	ErrKeyGeneration      = errors.New("cryptoutil: key generation failed")
	ErrInvalidKeyFormat   = errors.New("cryptoutil: invalid key format")
	ErrPEMDecoding        = errors.New("cryptoutil: pem decoding error")
	ErrUnsupportedPEMType = errors.New("cryptoutil: unsupported pem block type")
	ErrSignatureMalformed = errors.New("cryptoutil: signature malformed")
	ErrRecoveryFailed     = errors.New("cryptoutil: signature recovery failed")
)

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey is a secp256k1 verification key.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// Signature is the spec's 65-byte r‖s‖v recoverable signature.
type Signature [65]byte

// MarshalJSON renders sig as a 0x-prefixed hex string, so persisted block
// bodies stay human-inspectable.
func (sig Signature) MarshalJSON() ([]byte, error) {
	return []byte(`"0x` + hex.EncodeToString(sig[:]) + `"`), nil
}

// UnmarshalJSON parses the 0x-prefixed hex string MarshalJSON produces.
func (sig *Signature) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	if len(b) != 65 {
		return fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrInvalidKeyFormat, len(b))
	}
	copy(sig[:], b)
	return nil
}

// GenerateKeyPair creates a new secp256k1 private/public key pair.
func GenerateKeyPair() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes parses a 32-byte scalar into a PrivateKey.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes, got %d", ErrInvalidKeyFormat, len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// Bytes returns the 32-byte scalar of the private key.
func (p *PrivateKey) Bytes() []byte {
	return p.key.Serialize()
}

// Public returns the corresponding public key.
func (p *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: p.key.PubKey()}
}

// UncompressedBytes returns the 65-byte uncompressed SEC1 encoding
// (0x04 ‖ X ‖ Y) used as the hashing input for address derivation.
func (pub *PublicKey) UncompressedBytes() []byte {
	return pub.key.SerializeUncompressed()
}

// PublicKeyFromUncompressedBytes parses a 65-byte uncompressed public key.
func PublicKeyFromUncompressedBytes(b []byte) (*PublicKey, error) {
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	return &PublicKey{key: key}, nil
}

// Keccak256 hashes data with keccak-256 (not SHA3-256 — no NIST padding
// byte), matching the digest every hash in §3 is defined over.
func Keccak256(data ...[]byte) chaintypes.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out chaintypes.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveAddress computes the spec's address: keccak256 of the uncompressed
// public key, last 20 bytes.
func DeriveAddress(pub *PublicKey) chaintypes.Address {
	digest := Keccak256(pub.UncompressedBytes())
	var addr chaintypes.Address
	copy(addr[:], digest[len(digest)-chaintypes.AddressLength:])
	return addr
}

// Sign produces a recoverable signature over a 32-byte prehash. digest is a
// Hash, so its length is always 32 bytes.
func Sign(priv *PrivateKey, digest chaintypes.Hash) (Signature, error) {
	compact := ecdsa.SignCompact(priv.key, digest[:], false)
	// secp256k1's compact format is recoveryID(1) ‖ r(32) ‖ s(32); the spec
	// wants r(32) ‖ s(32) ‖ v(1) with v the recovery parity, so rotate it.
	if len(compact) != 65 {
		return Signature{}, fmt.Errorf("%w: unexpected compact signature length %d", ErrSignatureMalformed, len(compact))
	}
	var sig Signature
	recID := compact[0] - 27
	copy(sig[0:64], compact[1:65])
	sig[64] = recID
	return sig, nil
}

// Recover recovers the signer's address from a signature over a 32-byte
// prehash.
func Recover(digest chaintypes.Hash, sig Signature) (chaintypes.Address, error) {
	if sig[64] > 1 {
		return chaintypes.Address{}, fmt.Errorf("%w: recovery parity must be 0 or 1, got %d", ErrSignatureMalformed, sig[64])
	}
	compact := make([]byte, 65)
	compact[0] = sig[64] + 27
	copy(compact[1:65], sig[0:64])

	pubKey, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return chaintypes.Address{}, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return DeriveAddress(&PublicKey{key: pubKey}), nil
}

// --- PEM persistence for the node's own validator identity, kept in the
// teacher's SavePrivateKeyPEM/LoadPrivateKeyPEM shape. ---

const privateKeyPEMType = "SECP256K1 PRIVATE KEY"

// SavePrivateKeyPEM writes priv to filePath in PEM format, owner-only.
func SavePrivateKeyPEM(priv *PrivateKey, filePath string) error {
	block := &pem.Block{Type: privateKeyPEMType, Bytes: priv.Bytes()}
	return os.WriteFile(filePath, pem.EncodeToMemory(block), 0o600)
}

// LoadPrivateKeyPEM reads a PEM-encoded private key from filePath.
func LoadPrivateKeyPEM(filePath string) (*PrivateKey, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("private key file not found at %q: %w", filePath, err)
		}
		return nil, fmt.Errorf("failed to read private key file %q: %w", filePath, err)
	}
	block, rest := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrPEMDecoding)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: unexpected trailing data after PEM block", ErrPEMDecoding)
	}
	if block.Type != privateKeyPEMType {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrUnsupportedPEMType, privateKeyPEMType, block.Type)
	}
	return PrivateKeyFromBytes(block.Bytes)
}

// GenerateAndSaveKeyPair is a convenience used by chainnoded when its --key
// path does not exist yet: create a fresh identity and persist it.
func GenerateAndSaveKeyPair(filePath string) (*PrivateKey, error) {
	priv, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := SavePrivateKeyPEM(priv, filePath); err != nil {
		return nil, fmt.Errorf("failed to persist generated key: %w", err)
	}
	return priv, nil
}

// Reader is crypto/rand's reader. No function in this package reads it:
// GenerateKeyPair draws its randomness inside secp256k1.GeneratePrivateKey,
// so replacing Reader does not change key generation.
var Reader = rand.Reader
