package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeDigits is the length of a verification code.
const CodeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// NewVerificationCode returns a cryptographically random 6-digit numeric code,
// zero-padded so it always has CodeDigits characters.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}
