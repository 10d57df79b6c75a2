package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleBackend(t *testing.T) {
	b := &ExampleBackend{}

	x, result := 2.0, 0.0
	require.NoError(t, b.Sqrt(&x, &result))
	assert.Equal(t, math.Sqrt2, result)

	x = -2
	assert.ErrorIs(t, b.Sqrt(&x, &result), ErrSqrtOfNegative)

	ms, slept := 1, 0
	require.NoError(t, b.Sleep(&ms, &slept))
	assert.Equal(t, 1, slept)
}
