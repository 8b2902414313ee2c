package util

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize trims surrounding whitespace and returns the NFC form of s.
func Normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
