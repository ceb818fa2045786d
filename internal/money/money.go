// Package money implements overflow-checked arithmetic on int64 minor units.
package money

import (
	"errors"
	"math"
)

// BasisPointsDenominator is 100%.
const BasisPointsDenominator int64 = 10_000

var ErrOverflow = errors.New("money_overflow")

func Add(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

func Sub(a, b int64) (int64, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, ErrOverflow
	}
	return a - b, nil
}

func Mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, ErrOverflow
	}
	product := a * b
	if product/b != a {
		return 0, ErrOverflow
	}
	return product, nil
}

// Sum adds every value, rejecting overflow.
func Sum(values ...int64) (int64, error) {
	var total int64
	for _, v := range values {
		next, err := Add(total, v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// ApplyBps returns floor(amount * bps / 10000) for non-negative inputs.
func ApplyBps(amount, bps int64) (int64, error) {
	product, err := Mul(amount, bps)
	if err != nil {
		return 0, err
	}
	return product / BasisPointsDenominator, nil
}
