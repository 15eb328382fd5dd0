// Package random derives seeds for the math/rand generators behind dice
// rolls, bot jitter, and penalty move selection.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// NewSeed draws eight bytes from the operating system's entropy source, so
// processes started at the same instant still roll different dice.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("draw seed bytes: %w", err)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}
