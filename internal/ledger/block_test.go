package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/cryptoutil"
)

func TestComputeTransactionsRoot_EmptyIsZero(t *testing.T) {
	assert.Equal(t, chaintypes.Hash{}, ComputeTransactionsRoot(nil))
}

func TestComputeTransactionsRoot_OrderIndependent(t *testing.T) {
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	to := chaintypes.Address{7}

	tx1 := newSignedTx(t, priv, to, 0)
	tx2 := newSignedTx(t, priv, to, 1)

	rootAB := ComputeTransactionsRoot([]*Transaction{tx1, tx2})
	rootBA := ComputeTransactionsRoot([]*Transaction{tx2, tx1})
	assert.Equal(t, rootAB, rootBA)
}

func TestBlockHeader_SignAndVerify(t *testing.T) {
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	proposer := cryptoutil.DeriveAddress(priv.Public())

	block := NewBlock(1, chaintypes.Hash{}, 0, 1000, proposer, nil)
	require.NoError(t, block.Header.Sign(priv))

	assert.True(t, block.Header.VerifySignature(proposer))
	assert.False(t, block.Header.VerifySignature(chaintypes.Address{0xff}))
}

func TestBlockHeader_VerifySignature_NoneAttached(t *testing.T) {
	var h BlockHeader
	assert.False(t, h.VerifySignature(chaintypes.Address{}))
}

func TestNewBlock_TransactionsRootMatchesComputed(t *testing.T) {
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	to := chaintypes.Address{7}
	tx := newSignedTx(t, priv, to, 0)

	block := NewBlock(1, chaintypes.Hash{}, 0, 1000, chaintypes.Address{1}, []*Transaction{tx})
	assert.Equal(t, ComputeTransactionsRoot([]*Transaction{tx}), block.Header.TransactionsRoot)
}

func TestBlockHeader_HashChangesWithFields(t *testing.T) {
	h1 := BlockHeader{Index: 1, Slot: 1, Timestamp: 100}
	h2 := h1
	h2.Slot = 2
	assert.NotEqual(t, h1.Hash(), h2.Hash())
}
