package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashAndCompare(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", hash)

	require.NoError(t, ComparePassword("correct horse battery staple", hash))
}

func TestComparePasswordWrong(t *testing.T) {
	hash, err := HashPassword("right")
	require.NoError(t, err)

	require.ErrorIs(t, ComparePassword("wrong", hash), ErrWrongPassword)
}

func TestHashPasswordUniqueSalt(t *testing.T) {
	h1, err := HashPassword("same input")
	require.NoError(t, err)
	h2, err := HashPassword("same input")
	require.NoError(t, err)

	require.NotEqual(t, h1, h2)
}
