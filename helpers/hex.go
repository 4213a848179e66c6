package helpers

import (
	"encoding/hex"
	"strings"
)

// MustHex decodes hex ignoring spaces, panics on invalid input. For tests and constants.
func MustHex(s string) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic(err)
	}
	return b
}
