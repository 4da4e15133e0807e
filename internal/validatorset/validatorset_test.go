package validatorset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empower1/chainnode/internal/chaintypes"
)

func TestNewValidator_RejectsZeroAddress(t *testing.T) {
	_, err := NewValidator(chaintypes.Address{}, 100)
	assert.ErrorIs(t, err, ErrInvalidValidatorAddress)
}

func TestSelectProposer_NoActiveValidators(t *testing.T) {
	set := NewSet(100, [24]byte{})
	_, err := set.SelectProposer(0)
	assert.ErrorIs(t, err, ErrNoActiveValidators)
}

func TestSelectProposer_DeterministicForSameSlot(t *testing.T) {
	set := NewSet(100, [24]byte{1, 2, 3})
	for i := byte(1); i <= 5; i++ {
		v, err := NewValidator(chaintypes.Address{i}, uint64(100*i))
		require.NoError(t, err)
		set.Upsert(v)
	}

	p1, err := set.SelectProposer(42)
	require.NoError(t, err)
	p2, err := set.SelectProposer(42)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestSelectProposer_ExcludesInactiveAndUnderStaked(t *testing.T) {
	set := NewSet(100, [24]byte{})

	low, err := NewValidator(chaintypes.Address{1}, 50)
	require.NoError(t, err)
	set.Upsert(low)

	inactive, err := NewValidator(chaintypes.Address{2}, 1000)
	require.NoError(t, err)
	inactive.IsActive = false
	set.Upsert(inactive)

	eligible, err := NewValidator(chaintypes.Address{3}, 500)
	require.NoError(t, err)
	set.Upsert(eligible)

	for slot := uint64(0); slot < 20; slot++ {
		proposer, err := set.SelectProposer(slot)
		require.NoError(t, err)
		assert.Equal(t, eligible.Address, proposer)
	}
}

func TestSelectProposer_VariesAcrossSlots(t *testing.T) {
	set := NewSet(1, [24]byte{9, 9, 9})
	for i := byte(1); i <= 10; i++ {
		v, err := NewValidator(chaintypes.Address{i}, 100)
		require.NoError(t, err)
		set.Upsert(v)
	}

	seen := make(map[chaintypes.Address]bool)
	for slot := uint64(0); slot < 50; slot++ {
		p, err := set.SelectProposer(slot)
		require.NoError(t, err)
		seen[p] = true
	}
	assert.Greater(t, len(seen), 1, "proposer selection should draw more than one distinct validator over many slots")
}

func TestSelectProposer_WeightedTowardHigherStake(t *testing.T) {
	set := NewSet(1, [24]byte{})
	whale, err := NewValidator(chaintypes.Address{1}, 99_000)
	require.NoError(t, err)
	set.Upsert(whale)
	minnow, err := NewValidator(chaintypes.Address{2}, 1_000)
	require.NoError(t, err)
	set.Upsert(minnow)

	whaleWins := 0
	const slots = 300
	for slot := uint64(0); slot < slots; slot++ {
		p, err := set.SelectProposer(slot)
		require.NoError(t, err)
		if p == whale.Address {
			whaleWins++
		}
	}
	// Not a strict statistical assertion, just a sanity check that stake
	// weighting favors the heavier validator by a wide margin.
	assert.Greater(t, whaleWins, slots/2)
}
