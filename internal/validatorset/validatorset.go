// Package validatorset holds the stake-weighted validator table and
// deterministic proposer selection. Grounded on the teacher's
// internal/consensus/validator.go Validator shape and
// internal/consensus/pos.go round-robin stub, generalized to the spec's
// seeded-ChaCha20 stake-weighted draw (§4.1 C9), matching the original
// Rust proposer.rs bit for bit.
package validatorset

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"golang.org/x/crypto/chacha20"

	"github.com/empower1/chainnode/internal/chaintypes"
)

// ErrNoActiveValidators is returned by SelectProposer when no validator
// meets the active+stake-floor criteria.
var ErrNoActiveValidators = errors.New("validatorset: no active validators meet the stake floor")

// ErrInvalidValidatorAddress mirrors the teacher's construction guard.
var ErrInvalidValidatorAddress = errors.New("validatorset: validator address must not be zero")

// Validator is a single staked participant.
type Validator struct {
	Address           chaintypes.Address
	StakedAmount      uint64
	IsActive          bool
	LastBlockProposed uint64
	SlashCount        uint32
}

// NewValidator constructs an active Validator with zero history.
func NewValidator(addr chaintypes.Address, stake uint64) (*Validator, error) {
	if addr.IsZero() {
		return nil, ErrInvalidValidatorAddress
	}
	return &Validator{Address: addr, StakedAmount: stake, IsActive: true}, nil
}

// isEligible reports whether v counts toward the active stake table: it
// must be marked active and meet the configured minimum stake.
func (v *Validator) isEligible(minStake uint64) bool {
	return v.IsActive && v.StakedAmount >= minStake
}

// Set is a mapping Address→Validator plus the min_stake floor that
// defines "active" (§3).
type Set struct {
	mu         sync.RWMutex
	validators map[chaintypes.Address]*Validator
	minStake   uint64
	randomSeed [24]byte
}

// NewSet creates an empty Set with the given minStake floor and randomness
// seed. The seed is the node-wide constant the spec calls
// `randomness_seed` — in a reimplementation this would be derived from
// genesis configuration rather than hardcoded (see DESIGN.md open
// questions).
func NewSet(minStake uint64, seed [24]byte) *Set {
	return &Set{
		validators: make(map[chaintypes.Address]*Validator),
		minStake:   minStake,
		randomSeed: seed,
	}
}

// Upsert adds or replaces a validator entry.
func (s *Set) Upsert(v *Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators[v.Address] = v
}

// Get returns the validator at addr, if present.
func (s *Set) Get(addr chaintypes.Address) (*Validator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.validators[addr]
	return v, ok
}

// activeSortedLocked returns the eligible validators sorted by address
// ascending, for deterministic accumulation. Caller must hold s.mu.
func (s *Set) activeSortedLocked() []*Validator {
	active := make([]*Validator, 0, len(s.validators))
	for _, v := range s.validators {
		if v.isEligible(s.minStake) {
			active = append(active, v)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Address.Less(active[j].Address) })
	return active
}

// SelectProposer is pure and deterministic for a given
// (active_validators, randomness_seed, slot): build a 32-byte seed with
// slot.to_le_bytes() copied into seed[0..8], draw one u64 from a
// ChaCha20 stream keyed on that seed, reduce it mod total stake, and walk
// the address-sorted active set accumulating stake until the draw falls
// within a validator's share.
func (s *Set) SelectProposer(slot uint64) (chaintypes.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := s.activeSortedLocked()
	if len(active) == 0 {
		return chaintypes.Address{}, ErrNoActiveValidators
	}

	var totalStake uint64
	for _, v := range active {
		totalStake += v.StakedAmount
	}

	draw := drawU64(s.randomSeed, slot)
	r := draw % totalStake

	var cumulative uint64
	for _, v := range active {
		cumulative += v.StakedAmount
		if cumulative > r {
			return v.Address, nil
		}
	}
	// Unreachable while the stake sum fits in a uint64 (then r < totalStake),
	// but return the last validator rather than the zero address if it wraps.
	return active[len(active)-1].Address, nil
}

// drawU64 builds the per-slot ChaCha20 key/seed and returns one stream
// u64. chacha20.NewUnauthenticatedCipher expects a 32-byte key and a
// 12-byte (or 24-byte for XChaCha20) nonce; the key is slot.to_le_bytes()
// in key[0:8] followed by the full 24-byte configured seed in key[8:32],
// matching the original implementation's single-seed-per-draw
// construction, with an all-zero nonce.
func drawU64(seed [24]byte, slot uint64) uint64 {
	var key [32]byte
	copy(key[8:32], seed[:])
	binary.LittleEndian.PutUint64(key[0:8], slot)

	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce)
	if err != nil {
		// key/nonce sizes are fixed constants above; this cannot fail.
		panic(err)
	}
	var stream [8]byte
	xorStream(c, stream[:])
	return binary.LittleEndian.Uint64(stream[:])
}

func xorStream(c cipher.Stream, dst []byte) {
	src := make([]byte, len(dst))
	c.XORKeyStream(dst, src)
}
