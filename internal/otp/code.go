package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultDigits is the length of generated passcodes.
const DefaultDigits = 6

// GenerateCode returns a uniformly random numeric code of exactly digits
// characters, zero padded.
func GenerateCode(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("invalid otp length %d", digits)
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
