package referral

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomCode_UsesAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := RandomCode(DefaultLength)
		require.NoError(t, err)
		require.Len(t, code, DefaultLength)
		for _, r := range code {
			require.True(t, strings.ContainsRune(Alphabet, r), "unexpected rune %q", r)
		}
	}
}

func TestGenerate_SkipsExistingCodes(t *testing.T) {
	g := NewGenerator(0, 0, 0)
	existing := map[string]bool{"AAAAAA": true, "BBBBBB": true}
	candidates := []string{"AAAAAA", "BBBBBB", "CCCCCC"}
	g.random = func(n int) (string, error) {
		c := candidates[0]
		candidates = candidates[1:]
		return c, nil
	}

	var probed []string
	code, err := g.Generate(context.Background(), func(_ context.Context, c string) (bool, error) {
		probed = append(probed, c)
		return existing[c], nil
	})
	require.NoError(t, err)
	assert.Equal(t, "CCCCCC", code)
	assert.Equal(t, []string{"AAAAAA", "BBBBBB", "CCCCCC"}, probed)
	assert.False(t, existing[code])
}

func TestGenerate_FallsBackToLongerCodes(t *testing.T) {
	g := NewGenerator(6, 8, 3)

	var lengths []int
	code, err := g.Generate(context.Background(), func(_ context.Context, c string) (bool, error) {
		lengths = append(lengths, len(c))
		return len(c) == 6, nil
	})
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Equal(t, []int{6, 6, 6, 8}, lengths)
}

func TestGenerate_Exhausted(t *testing.T) {
	g := NewGenerator(6, 8, 2)

	calls := 0
	_, err := g.Generate(context.Background(), func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, calls)
}

func TestGenerate_ProbeError(t *testing.T) {
	g := NewGenerator(0, 0, 0)
	boom := errors.New("db down")

	_, err := g.Generate(context.Background(), func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestGenerate_CanceledContext(t *testing.T) {
	g := NewGenerator(0, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, func(context.Context, string) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGenerator_Defaults(t *testing.T) {
	g := NewGenerator(0, 0, 0)
	assert.Equal(t, DefaultLength, g.Length)
	assert.Equal(t, DefaultFallbackLength, g.FallbackLength)
	assert.Equal(t, DefaultMaxAttempts, g.MaxAttempts)
}
