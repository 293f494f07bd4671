package invigilator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvalArithmeticPrecedence(t *testing.T) {
	v, err := evalArithmetic("2 + 3 * 4")
	require.NoError(t, err)
	require.Equal(t, 14.0, v)
}

func TestEvalArithmeticParens(t *testing.T) {
	v, err := evalArithmetic("(2 + 3) * 4")
	require.NoError(t, err)
	require.Equal(t, 20.0, v)
}

func TestEvalArithmeticUnaryMinus(t *testing.T) {
	v, err := evalArithmetic("-5 + 10")
	require.NoError(t, err)
	require.Equal(t, 5.0, v)
}

func TestEvalArithmeticDivideByZero(t *testing.T) {
	_, err := evalArithmetic("1 / 0")
	require.Error(t, err)
}

func TestEvalArithmeticTrailingGarbage(t *testing.T) {
	_, err := evalArithmetic("1 + 2 foo")
	require.Error(t, err)
}
