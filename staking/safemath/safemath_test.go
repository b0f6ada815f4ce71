package safemath

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var maxUint256 = new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1))

func TestAdd(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		sum, err := Add(uint256.NewInt(2), uint256.NewInt(40))
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(42), sum)
	})

	t.Run("Overflow", func(t *testing.T) {
		_, err := Add(maxUint256, uint256.NewInt(1))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("DoesNotMutateInputs", func(t *testing.T) {
		a := uint256.NewInt(7)
		b := uint256.NewInt(3)
		_, err := Add(a, b)
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(7), a)
		assert.Equal(t, uint256.NewInt(3), b)
	})
}

func TestSub(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		diff, err := Sub(uint256.NewInt(40), uint256.NewInt(2))
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(38), diff)
	})

	t.Run("Underflow", func(t *testing.T) {
		_, err := Sub(uint256.NewInt(1), uint256.NewInt(2))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("ZeroResult", func(t *testing.T) {
		diff, err := Sub(uint256.NewInt(5), uint256.NewInt(5))
		require.NoError(t, err)
		assert.True(t, diff.IsZero())
	})
}

func TestMul(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		product, err := Mul(uint256.NewInt(6), uint256.NewInt(7))
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(42), product)
	})

	t.Run("Overflow", func(t *testing.T) {
		_, err := Mul(maxUint256, uint256.NewInt(2))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("ByZero", func(t *testing.T) {
		product, err := Mul(maxUint256, uint256.NewInt(0))
		require.NoError(t, err)
		assert.True(t, product.IsZero())
	})
}

func TestDiv(t *testing.T) {
	t.Run("TruncatesTowardZero", func(t *testing.T) {
		quotient, err := Div(uint256.NewInt(7), uint256.NewInt(2))
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(3), quotient)
	})

	t.Run("ByZero", func(t *testing.T) {
		_, err := Div(uint256.NewInt(7), uint256.NewInt(0))
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})
}

func TestMulDiv(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		// 50 * 200 / 300 == 33 (rounded down)
		result, err := MulDiv(uint256.NewInt(50), uint256.NewInt(200), uint256.NewInt(300))
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(33), result)
	})

	t.Run("IntermediateOverflow", func(t *testing.T) {
		// max * 2 overflows even though the final quotient would fit.
		_, err := MulDiv(maxUint256, uint256.NewInt(2), uint256.NewInt(4))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("ZeroDenominator", func(t *testing.T) {
		_, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(0))
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})
}
