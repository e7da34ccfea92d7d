package invite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.True(t, IsValid(code), code)
		seen[code] = struct{}{}
	}
	// 36^8 space; 500 draws colliding would point at a broken source.
	assert.Greater(t, len(seen), 495)
}

func TestGenerateUniqueSkipsTakenCodes(t *testing.T) {
	g := NewGenerator()
	calls := 0
	code, err := g.GenerateUnique(context.Background(), func(_ context.Context, _ string) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.True(t, IsValid(code))
	assert.Equal(t, 3, calls)
}

func TestGenerateUniqueFailsLoudly(t *testing.T) {
	g := NewGenerator()
	calls := 0
	_, err := g.GenerateUnique(context.Background(), func(_ context.Context, _ string) (bool, error) {
		calls++
		return false, nil
	})
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
	assert.Equal(t, MaxRetries, calls)
}

func TestGenerateUniquePropagatesCheckerError(t *testing.T) {
	g := NewGenerator()
	boom := errors.New("db down")
	_, err := g.GenerateUnique(context.Background(), func(_ context.Context, _ string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestIsValidAndNormalize(t *testing.T) {
	assert.True(t, IsValid("AB12CD34"))
	assert.False(t, IsValid("ab12cd34"))
	assert.False(t, IsValid("AB12CD3"))
	assert.False(t, IsValid("AB12-D34"))
	assert.Equal(t, "AB12CD34", Normalize("  ab12cd34 "))
}
