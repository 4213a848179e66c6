package helpers

import (
	"math/rand"
	"time"
)

// RandUnix is seeded from clock, tests should log seed source on failure.
func RandUnix() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
