// Package config holds the node-wide configuration struct threaded from
// main, replacing the spec's (and the teacher's) compile-time constants
// (DB_PATH, MIN_STAKE, SLOT_DURATION, a hardcoded randomness seed) with
// values loaded once at startup from CLI flags and a validator config
// file (§6, §9 Design Notes "genesis time").
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/orchestrator"
)

// Sentinel errors.
var (
	ErrInvalidRole           = errors.New("config: role must be Proposer or Attestor")
	ErrValidatorConfigFormat = errors.New("config: validator config file is malformed")
)

// Config is every value a node needs that the spec's original
// implementation held as a compile-time constant.
type Config struct {
	ListenPort          int
	Role                orchestrator.Role
	DBPath              string
	MinStake            uint64
	SlotDuration        time.Duration
	GenesisTime         time.Time
	ValidatorConfigPath string
	PrivateKeyPath      string
}

// Default mirrors the spec's §6 environment constants, as a starting
// point for flag defaults: DB_PATH="blockchain_db", MIN_STAKE=100,
// SLOT_DURATION=10s. GenesisTime is left zero — callers must set it from
// the --genesis flag; it is never defaulted to
// time.Now(), since two nodes must agree on genesis (§9).
func Default() Config {
	return Config{
		ListenPort:   4000,
		Role:         orchestrator.RoleAttestor,
		DBPath:       "blockchain_db",
		MinStake:     100,
		SlotDuration: 10 * time.Second,
	}
}

// ParseRole validates a --role flag value against the two roles the spec
// defines.
func ParseRole(s string) (orchestrator.Role, error) {
	switch orchestrator.Role(s) {
	case orchestrator.RoleProposer, orchestrator.RoleAttestor:
		return orchestrator.Role(s), nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidRole, s)
	}
}

// ValidatorEntry is one (checksummed_address, stake) pair from the
// validator config file (§6).
type ValidatorEntry struct {
	Address chaintypes.Address
	Stake   uint64
}

// LoadValidatorConfig reads the validator config file at path: a bare
// top-level JSON array of [checksummed_address, stake] pairs (§6), e.g.
//
//	[["0xabc...", 100], ["0xdef...", 50]]
//
// Genesis time is not part of this file — two nodes must agree on
// genesis out of band, so it is sourced solely from the --genesis flag
// (§9 Design Notes "genesis time"; see cmd/chainnoded/main.go).
func LoadValidatorConfig(path string) ([]ValidatorEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read validator config %s: %w", path, err)
	}

	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidatorConfigFormat, err)
	}

	entries := make([]ValidatorEntry, 0, len(pairs))
	for _, pair := range pairs {
		var addrHex string
		var stake uint64
		if err := json.Unmarshal(pair[0], &addrHex); err != nil {
			return nil, fmt.Errorf("%w: address entry: %v", ErrValidatorConfigFormat, err)
		}
		if err := json.Unmarshal(pair[1], &stake); err != nil {
			return nil, fmt.Errorf("%w: stake entry: %v", ErrValidatorConfigFormat, err)
		}
		var addr chaintypes.Address
		if err := json.Unmarshal([]byte(`"`+addrHex+`"`), &addr); err != nil {
			return nil, fmt.Errorf("%w: invalid address %q: %v", ErrValidatorConfigFormat, addrHex, err)
		}
		entries = append(entries, ValidatorEntry{Address: addr, Stake: stake})
	}

	return entries, nil
}
