package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empower1/chainnode/internal/chaintypes"
)

func TestNew_EmptyRootIsZero(t *testing.T) {
	st := New(nil)
	assert.Equal(t, chaintypes.Hash{}, st.Root())
}

func TestGetAccount_TouchesButDoesNotStore(t *testing.T) {
	st := New(nil)
	addr := chaintypes.Address{1}

	acc := st.GetAccount(addr)
	assert.True(t, acc.Balance.IsZero())
	assert.Equal(t, uint64(0), acc.Nonce)
	// Reading alone must not create a persisted account or move the root.
	assert.Equal(t, chaintypes.Hash{}, st.Root())
}

func TestSetAccount_ChangesRootAndPersists(t *testing.T) {
	st := New(nil)
	addr := chaintypes.Address{2}

	acc := st.GetAccount(addr)
	acc.Balance = chaintypes.NewU256FromUint64(100)
	acc.Nonce = 1
	st.SetAccount(acc)

	got := st.GetAccount(addr)
	assert.Equal(t, uint64(1), got.Nonce)
	assert.Equal(t, 0, got.Balance.Cmp(chaintypes.NewU256FromUint64(100)))
	assert.NotEqual(t, chaintypes.Hash{}, st.Root())
}

func TestSetAccount_EmptyAccountIsPruned(t *testing.T) {
	st := New(nil)
	addr := chaintypes.Address{3}

	acc := st.GetAccount(addr)
	acc.Balance = chaintypes.NewU256FromUint64(5)
	acc.Nonce = 1
	st.SetAccount(acc)
	nonEmptyRoot := st.Root()
	require.NotEqual(t, chaintypes.Hash{}, nonEmptyRoot)

	acc.Balance = chaintypes.Zero()
	acc.Nonce = 0
	st.SetAccount(acc)

	assert.Equal(t, chaintypes.Hash{}, st.Root())
	assert.Len(t, st.Snapshot(), 0)
}

func TestSetAccount_ZeroAmountTransferToUntouchedAddressDoesNotCreateAccount(t *testing.T) {
	st := New(nil)
	addr := chaintypes.Address{4}

	// An account fetched fresh and written back unchanged (balance 0,
	// nonce 0) must never appear in a snapshot.
	acc := st.GetAccount(addr)
	st.SetAccount(acc)

	assert.Len(t, st.Snapshot(), 0)
}

func TestRoot_DeterministicAcrossInsertionOrder(t *testing.T) {
	a := chaintypes.Address{1}
	b := chaintypes.Address{2}

	st1 := New(nil)
	st1.SetAccount(Account{Address: a, Balance: chaintypes.NewU256FromUint64(10), Nonce: 1})
	st1.SetAccount(Account{Address: b, Balance: chaintypes.NewU256FromUint64(20), Nonce: 2})

	st2 := New(nil)
	st2.SetAccount(Account{Address: b, Balance: chaintypes.NewU256FromUint64(20), Nonce: 2})
	st2.SetAccount(Account{Address: a, Balance: chaintypes.NewU256FromUint64(10), Nonce: 1})

	assert.Equal(t, st1.Root(), st2.Root())
}
