package gas

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/empower1/chainnode/internal/chaintypes"
)

func TestDefaultConfig_IntrinsicCost(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "21160", cfg.IntrinsicCost().String())
}

func TestValidateGasPrice(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.ValidateGasPrice(cfg.MinGasPrice))
	below, err := cfg.MinGasPrice.Sub(chaintypes.NewU256FromUint64(1))
	assert.NoError(t, err)
	assert.False(t, cfg.ValidateGasPrice(below))
}

func TestValidateGasLimit_Bounds(t *testing.T) {
	cfg := DefaultConfig()
	intrinsic := cfg.IntrinsicCost()

	assert.True(t, cfg.ValidateGasLimit(intrinsic))
	assert.True(t, cfg.ValidateGasLimit(cfg.BlockGasLimit))

	below, err := intrinsic.Sub(chaintypes.NewU256FromUint64(1))
	assert.NoError(t, err)
	assert.False(t, cfg.ValidateGasLimit(below))

	above, err := cfg.BlockGasLimit.Add(chaintypes.NewU256FromUint64(1))
	assert.NoError(t, err)
	assert.False(t, cfg.ValidateGasLimit(above))
}
