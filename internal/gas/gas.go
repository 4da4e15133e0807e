// Package gas holds the fixed cost model every transaction pays. Adapted
// from the teacher's internal/gas.go GasTank (a WASM instruction-metering
// tank for the teacher's VM, a Non-goal here) down to the flat
// config-plus-calculator the spec describes in §4.4 — there is no calldata
// or opcode model in this design, so gas per transaction is a constant.
package gas

import "github.com/empower1/chainnode/internal/chaintypes"

// Config is the node-wide gas policy. cmd/chainnoded passes DefaultConfig();
// config.Config carries no gas fields.
type Config struct {
	IntrinsicGas   chaintypes.U256
	GasPerByte     chaintypes.U256
	MinGasPrice    chaintypes.U256
	BlockGasLimit  chaintypes.U256
}

// intrinsicDataBytes is the fixed "calldata size" this design charges for,
// since transactions carry no payload yet (§4.4: "there is no calldata
// model yet").
const intrinsicDataBytes = 40

// DefaultConfig returns the spec's §4.4 constants:
// intrinsic_gas=21_000, gas_per_byte=4, min_gas_price=1e9, block_gas_limit=1e6.
func DefaultConfig() Config {
	return Config{
		IntrinsicGas:  chaintypes.NewU256FromUint64(21_000),
		GasPerByte:    chaintypes.NewU256FromUint64(4),
		MinGasPrice:   chaintypes.NewU256FromUint64(1_000_000_000),
		BlockGasLimit: chaintypes.NewU256FromUint64(1_000_000),
	}
}

// IntrinsicCost returns the constant per-transaction gas cost: 21_000 + 4×40
// = 21_160, per §4.4.
func (c Config) IntrinsicCost() chaintypes.U256 {
	perByte, err := c.GasPerByte.Mul(chaintypes.NewU256FromUint64(intrinsicDataBytes))
	if err != nil {
		// GasPerByte × 40 cannot overflow for any sane config; a config
		// that manages to overflow here is not a gas price we can charge.
		return c.IntrinsicGas
	}
	total, err := c.IntrinsicGas.Add(perByte)
	if err != nil {
		return c.IntrinsicGas
	}
	return total
}

// ValidateGasPrice reports whether gasPrice meets the configured floor.
func (c Config) ValidateGasPrice(gasPrice chaintypes.U256) bool {
	return gasPrice.Cmp(c.MinGasPrice) >= 0
}

// ValidateGasLimit reports whether gasLimit falls within
// [intrinsic_gas, block_gas_limit].
func (c Config) ValidateGasLimit(gasLimit chaintypes.U256) bool {
	intrinsic := c.IntrinsicCost()
	return gasLimit.Cmp(intrinsic) >= 0 && gasLimit.Cmp(c.BlockGasLimit) <= 0
}
