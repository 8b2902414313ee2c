package util

import (
	"crypto/rand"
	"fmt"
)

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// RandomHex returns n random lowercase hex characters.
func RandomHex(n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("negative length %d", n)
	}
	b, err := RandomBytes((n + 1) / 2)
	if err != nil {
		return "", err
	}
	return HexEncode(b)[:n], nil
}
