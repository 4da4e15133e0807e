// Package state manages the global account map and its deterministic root
// hash. Grounded on the teacher's internal/state/contract_state.go —
// mutex-guarded map, dedicated logger, NewX constructor shape — stripped of
// the teacher's UTXO set, smart-contract storage, and AI wealth-level
// fields (all Non-goals here) and rebuilt around the spec's §3
// {address, balance, nonce} account.
package state

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/cryptoutil"
)

// Account is the per-address balance and nonce. Created on first touch with
// zero balance and zero nonce; removed once both are zero again (§3, §9).
type Account struct {
	Address chaintypes.Address
	Balance chaintypes.U256
	Nonce   uint64
}

// isEmpty reports whether the account has reverted to its zero-touch state
// and should be pruned from the map.
func (a Account) isEmpty() bool {
	return a.Balance.IsZero() && a.Nonce == 0
}

// State is the mapping Address→Account plus its cached root.
//
// State-cleanup convention (§9): once an account's balance and nonce both
// return to zero it is deleted from the map entirely, which keeps the root
// stable against no-op accounts. One subtle consequence, preserved on
// purpose: a transfer of amount 0 to a never-before-seen address does NOT
// create that account, because SetAccount deletes empty accounts rather
// than inserting them.
type State struct {
	mu       sync.RWMutex
	accounts map[chaintypes.Address]*Account
	root     chaintypes.Hash
	logger   *zap.SugaredLogger
}

// New creates an empty State. The root of an empty state is the all-zero
// hash (§3).
func New(logger *zap.SugaredLogger) *State {
	return &State{
		accounts: make(map[chaintypes.Address]*Account),
		logger:   logger,
	}
}

// GetAccount returns the account at addr, or a fresh zero-balance,
// zero-nonce account if addr has none; that fresh account is not stored
// until it is passed to SetAccount. The returned value is a copy; mutate
// and pass back through SetAccount.
func (s *State) GetAccount(addr chaintypes.Address) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAccountLocked(addr)
}

func (s *State) getAccountLocked(addr chaintypes.Address) Account {
	if acc, ok := s.accounts[addr]; ok {
		return *acc
	}
	return Account{Address: addr}
}

// SetAccount writes acc back into the map, recomputing the root. If acc has
// reverted to zero balance and zero nonce it is removed instead of stored,
// per the state-cleanup convention above.
func (s *State) SetAccount(acc Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setAccountLocked(acc)
	s.recomputeRootLocked()
}

func (s *State) setAccountLocked(acc Account) {
	if acc.isEmpty() {
		delete(s.accounts, acc.Address)
		return
	}
	stored := acc
	s.accounts[acc.Address] = &stored
}

// Root returns the current cached state root.
func (s *State) Root() chaintypes.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// recomputeRootLocked recomputes root = keccak256(concat over accounts
// sorted ascending by address of: address(20) ‖ balance(32 BE) ‖ nonce(8 BE)).
// Called with s.mu held for writing.
func (s *State) recomputeRootLocked() {
	if len(s.accounts) == 0 {
		s.root = chaintypes.Hash{}
		return
	}
	addrs := make([]chaintypes.Address, 0, len(s.accounts))
	for addr := range s.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })

	buf := make([]byte, 0, len(addrs)*(chaintypes.AddressLength+32+8))
	for _, addr := range addrs {
		acc := s.accounts[addr]
		buf = append(buf, addr[:]...)
		balanceBytes := acc.Balance.Bytes32()
		buf = append(buf, balanceBytes[:]...)
		buf = append(buf, encodeUint64BE(acc.Nonce)...)
	}
	s.root = cryptoutil.Keccak256(buf)
	if s.logger != nil {
		s.logger.Debugw("state root recomputed", "accounts", len(addrs), "root", s.root.String())
	}
}

func encodeUint64BE(v uint64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// Snapshot returns a deep copy of every live account. The execution
// engine does not call it (its simulate pass reads through GetAccount);
// the tests use it to inspect the account map.
func (s *State) Snapshot() map[chaintypes.Address]Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[chaintypes.Address]Account, len(s.accounts))
	for addr, acc := range s.accounts {
		out[addr] = *acc
	}
	return out
}
