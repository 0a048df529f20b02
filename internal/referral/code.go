// Package referral generates referral codes that are unique across users.
package referral

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Alphabet is the set of characters referral codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	DefaultLength         = 6
	DefaultFallbackLength = 8
	DefaultMaxAttempts    = 8
)

// ErrExhausted is returned when every candidate collided with an existing code.
var ErrExhausted = errors.New("referral code space exhausted")

// ExistsFunc reports whether a code is already assigned to a user.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator draws random codes and probes them for uniqueness. Once
// MaxAttempts candidates of Length collide it switches to FallbackLength for
// another MaxAttempts tries.
type Generator struct {
	Length         int
	FallbackLength int
	MaxAttempts    int

	random func(n int) (string, error)
}

func NewGenerator(length, fallbackLength, maxAttempts int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	if fallbackLength < length {
		fallbackLength = length + 2
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{
		Length:         length,
		FallbackLength: fallbackLength,
		MaxAttempts:    maxAttempts,
		random:         RandomCode,
	}
}

// Generate returns a code for which exists reported false.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	for _, length := range []int{g.Length, g.FallbackLength} {
		for attempt := 0; attempt < g.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}

			code, err := g.random(length)
			if err != nil {
				return "", err
			}

			taken, err := exists(ctx, code)
			if err != nil {
				return "", fmt.Errorf("probe referral code: %w", err)
			}
			if !taken {
				return code, nil
			}
		}
	}
	return "", ErrExhausted
}

// RandomCode returns n characters drawn uniformly from Alphabet.
func RandomCode(n int) (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		buf[i] = Alphabet[idx.Int64()]
	}
	return string(buf), nil
}
