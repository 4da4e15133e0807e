// Package chaintypes holds the wire-level primitive types shared by every
// other package in chainnode: addresses, hashes, and checked 256-bit
// amounts. Keeping them in one leaf package avoids the import cycles that
// would otherwise tangle ledger, state, and execution together.
package chaintypes

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// AddressLength is the size in bytes of an Address (last 20 bytes of the
// keccak256 digest of an uncompressed public key).
const AddressLength = 20

// HashLength is the size in bytes of a Hash (keccak256 digest).
const HashLength = 32

// Address identifies an account or a validator.
type Address [AddressLength]byte

// ErrInvalidAddressLength is returned by BytesToAddress on malformed input.
var ErrInvalidAddressLength = errors.New("chaintypes: address must be exactly 20 bytes")

// BytesToAddress copies b into a new Address. b must be exactly
// AddressLength bytes.
func BytesToAddress(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, ErrInvalidAddressLength
	}
	copy(a[:], b)
	return a, nil
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns a's contents as a freshly-allocated slice.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// String renders a as a 0x-prefixed hex string.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Less orders addresses ascending, byte by byte. Used wherever the spec
// requires a deterministic iteration order over a validator or account set.
func (a Address) Less(other Address) bool {
	for i := range a {
		if a[i] != other[i] {
			return a[i] < other[i]
		}
	}
	return false
}

// MarshalJSON renders a as a 0x-prefixed hex string, so persisted block
// bodies stay human-inspectable (§4.7).
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON parses the 0x-prefixed hex string MarshalJSON produces.
func (a *Address) UnmarshalJSON(data []byte) error {
	b, err := decodeHexJSON(data, AddressLength)
	if err != nil {
		return fmt.Errorf("chaintypes: invalid address JSON value: %w", err)
	}
	copy(a[:], b)
	return nil
}

// Hash is a keccak256 digest: a transaction hash, a header hash, a
// transactions/state root.
type Hash [HashLength]byte

// BytesToHash copies b into a new Hash. b must be exactly HashLength bytes.
func BytesToHash(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLength {
		return h, errors.New("chaintypes: hash must be exactly 32 bytes")
	}
	copy(h[:], b)
	return h, nil
}

// Bytes returns h's contents as a freshly-allocated slice.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashLength)
	copy(out, h[:])
	return out
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalJSON renders h as a 0x-prefixed hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON parses the 0x-prefixed hex string MarshalJSON produces.
func (h *Hash) UnmarshalJSON(data []byte) error {
	b, err := decodeHexJSON(data, HashLength)
	if err != nil {
		return fmt.Errorf("chaintypes: invalid hash JSON value: %w", err)
	}
	copy(h[:], b)
	return nil
}

// decodeHexJSON strips the surrounding quotes and 0x prefix from a JSON
// string value and decodes it to exactly wantLen bytes.
func decodeHexJSON(data []byte, wantLen int) ([]byte, error) {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	s = trimHexPrefix(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != wantLen {
		return nil, fmt.Errorf("expected %d bytes, got %d", wantLen, len(b))
	}
	return b, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Less orders hashes ascending, byte by byte. Used to compute the
// transactions root over the ascending-hash-ordered transaction set (§3).
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// U256 is a 256-bit unsigned integer with checked arithmetic, used for
// balances, amounts, gas, and fees. It wraps uint256.Int rather than
// reimplementing checked big-integer math by hand.
type U256 struct {
	v uint256.Int
}

// ErrOverflow is returned by checked arithmetic that would wrap around.
var ErrOverflow = errors.New("chaintypes: u256 arithmetic overflow")

// ErrUnderflow is returned by checked subtraction that would go negative.
var ErrUnderflow = errors.New("chaintypes: u256 arithmetic underflow")

// NewU256FromUint64 builds a U256 from a uint64.
func NewU256FromUint64(v uint64) U256 {
	var u U256
	u.v.SetUint64(v)
	return u
}

// Zero is the additive identity.
func Zero() U256 { return U256{} }

// IsZero reports whether u is zero.
func (u U256) IsZero() bool { return u.v.IsZero() }

// Cmp compares u and other: -1, 0, or 1.
func (u U256) Cmp(other U256) int { return u.v.Cmp(&other.v) }

// Add returns u+other, or ErrOverflow if the result would not fit in 256 bits.
func (u U256) Add(other U256) (U256, error) {
	var out U256
	if out.v.AddOverflow(&u.v, &other.v) {
		return U256{}, ErrOverflow
	}
	return out, nil
}

// Sub returns u-other, or ErrUnderflow if other > u.
func (u U256) Sub(other U256) (U256, error) {
	var out U256
	if out.v.SubOverflow(&u.v, &other.v) {
		return U256{}, ErrUnderflow
	}
	return out, nil
}

// Mul returns u*other, or ErrOverflow if the result would not fit in 256 bits.
func (u U256) Mul(other U256) (U256, error) {
	var out U256
	if out.v.MulOverflow(&u.v, &other.v) {
		return U256{}, ErrOverflow
	}
	return out, nil
}

// Mod returns u mod other. Mod by zero returns zero, matching uint256.Int.
func (u U256) Mod(other U256) U256 {
	var out U256
	out.v.Mod(&u.v, &other.v)
	return out
}

// Bytes32 renders u as a 32-byte big-endian array, the form used in every
// canonical preimage in §3.
func (u U256) Bytes32() [32]byte {
	return u.v.Bytes32()
}

// U256FromBytes32 parses a 32-byte big-endian array back into a U256.
func U256FromBytes32(b [32]byte) U256 {
	var out U256
	out.v.SetBytes(b[:])
	return out
}

func (u U256) String() string { return u.v.Dec() }

// GobEncode/GobDecode let U256 travel through gob encoding (as in
// ledger.Transaction.Serialize) despite wrapping an unexported uint256.Int
// field.
func (u U256) GobEncode() ([]byte, error) {
	b := u.v.Bytes32()
	return b[:], nil
}

func (u *U256) GobDecode(data []byte) error {
	var b [32]byte
	copy(b[:], data)
	u.v.SetBytes(b[:])
	return nil
}

// MarshalJSON renders u as a decimal string, matching the block-body JSON
// encoding used by the storage index (§4.7) — JSON numbers cannot hold a
// full 256-bit value without precision loss.
func (u U256) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.v.Dec() + `"`), nil
}

// UnmarshalJSON parses u back from the decimal string MarshalJSON produces.
func (u *U256) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if err := u.v.SetFromDecimal(s); err != nil {
		return fmt.Errorf("chaintypes: invalid U256 JSON value %q: %w", s, err)
	}
	return nil
}
