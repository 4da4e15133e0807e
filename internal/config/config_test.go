package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empower1/chainnode/internal/orchestrator"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole("Proposer")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RoleProposer, role)

	_, err = ParseRole("Wizard")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 4000, cfg.ListenPort)
	assert.Equal(t, orchestrator.RoleAttestor, cfg.Role)
	assert.True(t, cfg.GenesisTime.IsZero())
}

func TestLoadValidatorConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validators.json")
	contents := [][2]any{
		{"0x0102030405060708090a0b0c0d0e0f1011121314", 500},
		{"0x1415161718191a1b1c1d1e1f2021222324252627", 250},
	}
	raw, err := json.Marshal(contents)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	entries, err := LoadValidatorConfig(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(500), entries[0].Stake)
	assert.Equal(t, uint64(250), entries[1].Stake)
}

func TestLoadValidatorConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := LoadValidatorConfig(path)
	assert.ErrorIs(t, err, ErrValidatorConfigFormat)
}
