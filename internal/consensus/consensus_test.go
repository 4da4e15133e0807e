package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/cryptoutil"
	"github.com/empower1/chainnode/internal/execution"
	"github.com/empower1/chainnode/internal/validatorset"
)

func TestCurrentSlot_ClampsBeforeGenesis(t *testing.T) {
	genesis := time.Now().Add(time.Hour)
	e := NewEngine(10*time.Second, genesis, validatorset.NewSet(1, [24]byte{}), nil, nil)
	assert.Equal(t, uint64(0), e.CurrentSlot(time.Now()))
}

func TestCurrentSlot_AdvancesWithElapsedTime(t *testing.T) {
	genesis := time.Now().Add(-25 * time.Second)
	e := NewEngine(10*time.Second, genesis, validatorset.NewSet(1, [24]byte{}), nil, nil)
	assert.Equal(t, uint64(2), e.CurrentSlot(time.Now()))
}

func TestCreateBlock_ExtendsTipAndSetsProposer(t *testing.T) {
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	addr := cryptoutil.DeriveAddress(priv.Public())

	set := validatorset.NewSet(1, [24]byte{})
	v, err := validatorset.NewValidator(addr, 100)
	require.NoError(t, err)
	set.Upsert(v)

	e := NewEngine(10*time.Second, time.Now().Add(-time.Minute), set, priv, nil)

	block, err := e.CreateBlock(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), block.Header.Index)
	assert.Equal(t, chaintypes.Hash{}, block.Header.ParentHash)
	assert.Equal(t, addr, block.Header.Proposer)
}

func TestValidateBlock_RejectsWrongIndex(t *testing.T) {
	set := validatorset.NewSet(1, [24]byte{})
	v, err := validatorset.NewValidator(chaintypes.Address{1}, 100)
	require.NoError(t, err)
	set.Upsert(v)

	e := NewEngine(10*time.Second, time.Now().Add(-time.Minute), set, nil, nil)

	block, err := e.CreateBlock(nil)
	require.NoError(t, err)
	block.Header.Index = 5

	err = e.ValidateBlock(block)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestValidateBlock_RejectsWrongProposer(t *testing.T) {
	set := validatorset.NewSet(1, [24]byte{})
	v1, err := validatorset.NewValidator(chaintypes.Address{1}, 100)
	require.NoError(t, err)
	set.Upsert(v1)

	e := NewEngine(10*time.Second, time.Now().Add(-time.Minute), set, nil, nil)
	block, err := e.CreateBlock(nil)
	require.NoError(t, err)
	block.Header.Proposer = chaintypes.Address{0xff}

	err = e.ValidateBlock(block)
	assert.ErrorIs(t, err, ErrWrongProposer)
}

func TestValidateBlock_RejectsFarFutureTimestamp(t *testing.T) {
	set := validatorset.NewSet(1, [24]byte{})
	v, err := validatorset.NewValidator(chaintypes.Address{1}, 100)
	require.NoError(t, err)
	set.Upsert(v)

	e := NewEngine(10*time.Second, time.Now().Add(-time.Minute), set, nil, nil)
	block, err := e.CreateBlock(nil)
	require.NoError(t, err)
	block.Header.Timestamp = time.Now().Add(time.Hour).Unix()

	err = e.ValidateBlock(block)
	assert.ErrorIs(t, err, ErrBlockTooFarFuture)
}

func TestValidateBlock_AcceptsWellFormedBlock(t *testing.T) {
	set := validatorset.NewSet(1, [24]byte{})
	v, err := validatorset.NewValidator(chaintypes.Address{1}, 100)
	require.NoError(t, err)
	set.Upsert(v)

	e := NewEngine(10*time.Second, time.Now().Add(-time.Minute), set, nil, nil)
	block, err := e.CreateBlock(nil)
	require.NoError(t, err)

	assert.NoError(t, e.ValidateBlock(block))
}

func TestFinalizeBlock_SignsWhenLocalIsProposer(t *testing.T) {
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	addr := cryptoutil.DeriveAddress(priv.Public())

	set := validatorset.NewSet(1, [24]byte{})
	v, err := validatorset.NewValidator(addr, 100)
	require.NoError(t, err)
	set.Upsert(v)

	e := NewEngine(10*time.Second, time.Now().Add(-time.Minute), set, priv, nil)
	block, err := e.CreateBlock(nil)
	require.NoError(t, err)

	result := execution.Result{StateRoot: chaintypes.Hash{0xaa}}
	block, err = e.FinalizeBlock(block, result)
	require.NoError(t, err)

	assert.Equal(t, result.StateRoot, block.Header.StateRoot)
	require.NotNil(t, block.Header.ValidatorSignature)
	assert.True(t, block.Header.VerifySignature(addr))
}

func TestUpdateBestBlock_AdvancesTip(t *testing.T) {
	set := validatorset.NewSet(1, [24]byte{})
	v, err := validatorset.NewValidator(chaintypes.Address{1}, 100)
	require.NoError(t, err)
	set.Upsert(v)

	e := NewEngine(10*time.Second, time.Now().Add(-time.Minute), set, nil, nil)
	block, err := e.CreateBlock(nil)
	require.NoError(t, err)

	e.UpdateBestBlock(block)
	assert.Equal(t, block.Header.Index, e.CurrentBlockNumber())

	next, err := e.CreateBlock(nil)
	require.NoError(t, err)
	assert.Equal(t, block.Header.Index+1, next.Header.Index)
	assert.Equal(t, block.Header.Hash(), next.Header.ParentHash)
}
