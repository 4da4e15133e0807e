// Package execution is the state-transition and block-execution engine:
// ApplyTransaction (C7), the atomic one-tx primitive, and the Engine that
// wraps it for simulate/commit passes over a whole block (C8). Grounded on
// the original Rust state_transition.rs/execution_engine.rs for exact
// check ordering, and on the teacher's internal/state package for the
// buffer-then-write-back locking idiom.
package execution

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/gas"
	"github.com/empower1/chainnode/internal/ledger"
	"github.com/empower1/chainnode/internal/state"
)

// Typed state-transition errors, in the order ApplyTransaction checks them.
type (
	// ErrGasPriceTooLow is returned when tx.GasPrice < config.MinGasPrice.
	ErrGasPriceTooLow struct{ GasPrice, MinGasPrice chaintypes.U256 }
	// ErrInvalidGasLimit is returned when gas_limit falls outside
	// [intrinsic_gas, block_gas_limit].
	ErrInvalidGasLimit struct{ GasLimit, Intrinsic, BlockGasLimit chaintypes.U256 }
	// ErrInsufficientGas is returned when gas_limit < intrinsic_gas.
	ErrInsufficientGas struct{ Provided, Required chaintypes.U256 }
	// ErrSameAddress is returned when from == to.
	ErrSameAddress struct{}
	// ErrInsufficientBalance is returned when the sender cannot cover
	// amount + gas_limit*gas_price.
	ErrInsufficientBalance struct{ Has, Needs chaintypes.U256 }
	// ErrInvalidNonce is returned when tx.Nonce != sender.Nonce.
	ErrInvalidNonce struct{ Expected, Got uint64 }
	// ErrBalanceOverflow is returned when recipient.balance+amount would
	// overflow U256.
	ErrBalanceOverflow struct{}
)

func (e ErrGasPriceTooLow) Error() string {
	return fmt.Sprintf("execution: gas price %s below minimum %s", e.GasPrice, e.MinGasPrice)
}
func (e ErrInvalidGasLimit) Error() string {
	return fmt.Sprintf("execution: gas limit %s outside [%s, %s]", e.GasLimit, e.Intrinsic, e.BlockGasLimit)
}
func (e ErrInsufficientGas) Error() string {
	return fmt.Sprintf("execution: insufficient gas: provided %s, required %s", e.Provided, e.Required)
}
func (e ErrSameAddress) Error() string { return "execution: sender and recipient must differ" }
func (e ErrInsufficientBalance) Error() string {
	return fmt.Sprintf("execution: insufficient balance: has %s, needs %s", e.Has, e.Needs)
}
func (e ErrInvalidNonce) Error() string {
	return fmt.Sprintf("execution: invalid nonce: expected %d, got %d", e.Expected, e.Got)
}
func (e ErrBalanceOverflow) Error() string { return "execution: recipient balance would overflow" }

// ApplyTransaction is the atomic state-transition primitive (§4.4). On
// success it commits both account updates to st and returns the gas used;
// on any failure st is left bitwise unchanged and a typed error is
// returned.
//
// Ordered checks, abort on first failure: gas price floor, gas limit
// bounds, gas limit vs intrinsic, same-address, sender balance, nonce
// match, recipient overflow.
func ApplyTransaction(st *state.State, tx *ledger.Transaction, cfg gas.Config) (chaintypes.U256, error) {
	if !cfg.ValidateGasPrice(tx.GasPrice) {
		return chaintypes.U256{}, ErrGasPriceTooLow{GasPrice: tx.GasPrice, MinGasPrice: cfg.MinGasPrice}
	}
	intrinsic := cfg.IntrinsicCost()
	if !cfg.ValidateGasLimit(tx.GasLimit) {
		return chaintypes.U256{}, ErrInvalidGasLimit{GasLimit: tx.GasLimit, Intrinsic: intrinsic, BlockGasLimit: cfg.BlockGasLimit}
	}
	if tx.GasLimit.Cmp(intrinsic) < 0 {
		return chaintypes.U256{}, ErrInsufficientGas{Provided: tx.GasLimit, Required: intrinsic}
	}
	if tx.From == tx.To {
		return chaintypes.U256{}, ErrSameAddress{}
	}

	sender := st.GetAccount(tx.From)

	// maxCost reserves against the worst case (the full gas_limit) purely
	// for the balance-sufficiency check; it is never what gets deducted.
	maxGasCost, err := tx.GasLimit.Mul(tx.GasPrice)
	if err != nil {
		return chaintypes.U256{}, ErrInsufficientBalance{Has: sender.Balance, Needs: sender.Balance}
	}
	maxCost, err := tx.Amount.Add(maxGasCost)
	if err != nil {
		return chaintypes.U256{}, ErrInsufficientBalance{Has: sender.Balance, Needs: sender.Balance}
	}
	if sender.Balance.Cmp(maxCost) < 0 {
		return chaintypes.U256{}, ErrInsufficientBalance{Has: sender.Balance, Needs: maxCost}
	}

	if tx.Nonce != sender.Nonce {
		return chaintypes.U256{}, ErrInvalidNonce{Expected: sender.Nonce, Got: tx.Nonce}
	}

	recipient := st.GetAccount(tx.To)
	newRecipientBalance, err := recipient.Balance.Add(tx.Amount)
	if err != nil {
		return chaintypes.U256{}, ErrBalanceOverflow{}
	}

	// Only actual gas × price is ever deducted — gas_used is always
	// intrinsic_gas in this design, never the reserved gas_limit; the
	// difference is implicitly refunded by never having been charged.
	gasUsed := intrinsic
	actualGasCost, err := gasUsed.Mul(tx.GasPrice)
	if err != nil {
		return chaintypes.U256{}, ErrInsufficientBalance{Has: sender.Balance, Needs: maxCost}
	}
	actualTotalCost, err := tx.Amount.Add(actualGasCost)
	if err != nil {
		return chaintypes.U256{}, ErrInsufficientBalance{Has: sender.Balance, Needs: maxCost}
	}
	newSenderBalance, err := sender.Balance.Sub(actualTotalCost)
	if err != nil {
		// actualTotalCost <= maxCost <= sender.Balance was already checked
		// above; this branch is unreachable but kept so Sub's error is
		// never silently dropped.
		return chaintypes.U256{}, ErrInsufficientBalance{Has: sender.Balance, Needs: actualTotalCost}
	}

	sender.Balance = newSenderBalance
	sender.Nonce++
	recipient.Balance = newRecipientBalance

	st.SetAccount(sender)
	st.SetAccount(recipient)

	return gasUsed, nil
}

// Receipt is alias of ledger.Receipt for package-local readability.
type Receipt = ledger.Receipt

// Result is the outcome of executing a whole block of transactions.
type Result struct {
	Receipts     []Receipt
	TotalGasUsed chaintypes.U256
	StateRoot    chaintypes.Hash
}

// Engine wraps the state manager and gas config to run simulate/commit
// passes over candidate and finalized transaction batches (§4.5 C8).
type Engine struct {
	state  *state.State
	gasCfg gas.Config
	logger *zap.SugaredLogger
}

// NewEngine builds an Engine over st using cfg as the gas policy.
func NewEngine(st *state.State, cfg gas.Config, logger *zap.SugaredLogger) *Engine {
	return &Engine{state: st, gasCfg: cfg, logger: logger}
}

// SimulateExecuteBlock is a pure preflight filter: it walks txs in input
// order, maintaining a per-sender temporary nonce and balance, and admits
// a transaction only if it would plausibly succeed. No state is mutated.
func (e *Engine) SimulateExecuteBlock(txs []*ledger.Transaction) []*ledger.Transaction {
	tempNonce := make(map[chaintypes.Address]uint64)
	tempBalance := make(map[chaintypes.Address]chaintypes.U256)
	seen := make(map[chaintypes.Address]bool)

	minGasLimit := chaintypes.NewU256FromUint64(21_000)
	admitted := make([]*ledger.Transaction, 0, len(txs))

	for _, tx := range txs {
		if !seen[tx.From] {
			acc := e.state.GetAccount(tx.From)
			tempNonce[tx.From] = acc.Nonce
			tempBalance[tx.From] = acc.Balance
			seen[tx.From] = true
		}

		if tx.Nonce != tempNonce[tx.From] {
			continue
		}
		if tx.GasLimit.Cmp(minGasLimit) < 0 {
			continue
		}
		cost, err := tx.GasLimit.Mul(tx.GasPrice)
		if err != nil {
			continue
		}
		need, err := tx.Amount.Add(cost)
		if err != nil {
			continue
		}
		if tempBalance[tx.From].Cmp(need) < 0 {
			continue
		}

		remaining, err := tempBalance[tx.From].Sub(need)
		if err != nil {
			continue
		}
		tempBalance[tx.From] = remaining
		tempNonce[tx.From]++
		admitted = append(admitted, tx)
	}

	if e.logger != nil {
		e.logger.Debugw("simulated block execution", "candidates", len(txs), "admitted", len(admitted))
	}
	return admitted
}

// ExecuteBlockCommit applies every transaction in block order via
// ApplyTransaction. Failures do not abort the block: a failed transaction
// produces a failed Receipt and burns its full gas limit, and the block's
// state root reflects whatever state exists after every attempt (§4.5).
func (e *Engine) ExecuteBlockCommit(txs []*ledger.Transaction) Result {
	receipts := make([]Receipt, 0, len(txs))
	totalGasUsed := chaintypes.Zero()

	for _, tx := range txs {
		gasUsed, err := ApplyTransaction(e.state, tx, e.gasCfg)
		if err != nil {
			receipts = append(receipts, Receipt{
				TxHash:       tx.Hash,
				GasUsed:      tx.GasLimit,
				Success:      false,
				ErrorMessage: err.Error(),
			})
			if sum, addErr := totalGasUsed.Add(tx.GasLimit); addErr == nil {
				totalGasUsed = sum
			}
			if e.logger != nil {
				e.logger.Warnw("transaction failed during commit", "hash", tx.Hash.String(), "error", err)
			}
			continue
		}
		receipts = append(receipts, Receipt{TxHash: tx.Hash, GasUsed: gasUsed, Success: true})
		if sum, addErr := totalGasUsed.Add(gasUsed); addErr == nil {
			totalGasUsed = sum
		}
	}

	return Result{
		Receipts:     receipts,
		TotalGasUsed: totalGasUsed,
		StateRoot:    e.state.Root(),
	}
}
