package model

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewBarcode generates a 12-digit access barcode. Uniqueness is enforced by
// the members table; callers retry on collision.
func NewBarcode() (string, error) {
	max := big.NewInt(1_000_000_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate barcode: %w", err)
	}
	return fmt.Sprintf("%012d", n), nil
}
