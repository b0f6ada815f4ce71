// Package safemath provides overflow-checked arithmetic over 256-bit unsigned
// integers. Every reward computation in the engine goes through this package;
// callers never use raw uint256 arithmetic for amounts.
package safemath

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when a checked operation would leave the
	// representable range, in either direction.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrDivisionByZero is returned when a divisor is zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// Add returns a+b in a fresh value, failing on overflow. Inputs are not mutated.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return sum, nil
}

// Sub returns a-b in a fresh value, failing if b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s underflows", ErrOverflow, a, b)
	}
	return diff, nil
}

// Mul returns a*b in a fresh value, failing on overflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, a, b)
	}
	return product, nil
}

// Div returns a/b (truncating toward zero) in a fresh value.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, fmt.Errorf("%w: %s / 0", ErrDivisionByZero, a)
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulDiv returns a*b/den with the intermediate product individually
// overflow-checked. It is the shape of every accumulator computation:
// poolShare, per-unit delta and settled debt are all mul-then-div.
func MulDiv(a, b, den *uint256.Int) (*uint256.Int, error) {
	product, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return Div(product, den)
}
