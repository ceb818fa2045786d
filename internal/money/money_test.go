package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsOverflow(t *testing.T) {
	_, err := Add(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Add(math.MinInt64, -1)
	assert.ErrorIs(t, err, ErrOverflow)

	got, err := Add(40, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestSubRejectsOverflow(t *testing.T) {
	_, err := Sub(math.MinInt64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	got, err := Sub(10, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(-15), got)
}

func TestMulRejectsOverflow(t *testing.T) {
	_, err := Mul(math.MaxInt64/2+1, 2)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Mul(math.MinInt64, -1)
	assert.ErrorIs(t, err, ErrOverflow)

	got, err := Mul(-3, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(-21), got)
}

func TestApplyBpsFloors(t *testing.T) {
	got, err := ApplyBps(9999, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(999), got)

	got, err = ApplyBps(1, 9999)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestSum(t *testing.T) {
	got, err := Sum(7500, 15000)
	require.NoError(t, err)
	assert.Equal(t, int64(22500), got)

	_, err = Sum(math.MaxInt64, 1, -1)
	assert.ErrorIs(t, err, ErrOverflow)
}
