package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/cryptoutil"
	"github.com/empower1/chainnode/internal/ledger"
)

func newTx(t *testing.T, priv *cryptoutil.PrivateKey, to chaintypes.Address, nonce uint64, gasPrice uint64) *ledger.Transaction {
	t.Helper()
	from := cryptoutil.DeriveAddress(priv.Public())
	tx, err := ledger.NewTransaction(from, to, chaintypes.NewU256FromUint64(1), chaintypes.NewU256FromUint64(21_160), chaintypes.NewU256FromUint64(gasPrice), nonce)
	require.NoError(t, err)
	require.NoError(t, tx.Sign(priv))
	return tx
}

func TestAddTransaction_Admits(t *testing.T) {
	mp := New(10, nil)
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	to := chaintypes.Address{5}

	tx := newTx(t, priv, to, 0, 1_000_000_000)
	hash, err := mp.AddTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash, hash)
	assert.Equal(t, 1, mp.Len())
}

func TestAddTransaction_RejectsInvalidSignature(t *testing.T) {
	mp := New(10, nil)
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	to := chaintypes.Address{5}

	tx := newTx(t, priv, to, 0, 1_000_000_000)
	tx.Amount = chaintypes.NewU256FromUint64(99999)

	_, err = mp.AddTransaction(tx)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestAddTransaction_ReplaceByFee(t *testing.T) {
	mp := New(10, nil)
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	to := chaintypes.Address{5}

	low := newTx(t, priv, to, 0, 1_000_000_000)
	_, err = mp.AddTransaction(low)
	require.NoError(t, err)

	high := newTx(t, priv, to, 0, 2_000_000_000)
	hash, err := mp.AddTransaction(high)
	require.NoError(t, err)
	assert.Equal(t, high.Hash, hash)
	assert.Equal(t, 1, mp.Len())

	all := mp.GetAllTransactions()
	require.Len(t, all, 1)
	assert.Equal(t, high.Hash, all[0].Hash)
}

func TestAddTransaction_ReplaceByFeeTooLowRejected(t *testing.T) {
	mp := New(10, nil)
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	to := chaintypes.Address{5}

	high := newTx(t, priv, to, 0, 2_000_000_000)
	_, err = mp.AddTransaction(high)
	require.NoError(t, err)

	low := newTx(t, priv, to, 0, 1_000_000_000)
	_, err = mp.AddTransaction(low)
	assert.ErrorIs(t, err, ErrReplaceByFeeTooLow)
	assert.Equal(t, 1, mp.Len())
}

func TestAddTransaction_CapacityEnforced(t *testing.T) {
	mp := New(1, nil)
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	to := chaintypes.Address{5}

	first := newTx(t, priv, to, 0, 1_000_000_000)
	_, err = mp.AddTransaction(first)
	require.NoError(t, err)

	other, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	second := newTx(t, other, to, 0, 1_000_000_000)
	_, err = mp.AddTransaction(second)
	assert.ErrorIs(t, err, ErrMempoolFull)
}

func TestClearAll(t *testing.T) {
	mp := New(10, nil)
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	to := chaintypes.Address{5}

	_, err = mp.AddTransaction(newTx(t, priv, to, 0, 1_000_000_000))
	require.NoError(t, err)
	mp.ClearAll()
	assert.Equal(t, 0, mp.Len())
}

func TestGetAllTransactions_SortedByHash(t *testing.T) {
	mp := New(10, nil)
	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	to := chaintypes.Address{5}

	tx1 := newTx(t, priv, to, 0, 1_000_000_000)
	tx2 := newTx(t, priv, to, 1, 1_000_000_000)
	_, err = mp.AddTransaction(tx1)
	require.NoError(t, err)
	_, err = mp.AddTransaction(tx2)
	require.NoError(t, err)

	all := mp.GetAllTransactions()
	require.Len(t, all, 2)
	assert.True(t, all[0].Hash.Less(all[1].Hash) || all[0].Hash == all[1].Hash)
}
