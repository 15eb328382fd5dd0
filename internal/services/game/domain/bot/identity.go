// Package bot provides the synthetic player catalog and the decision engine
// that plays a seat autonomously.
package bot

import (
	"math/rand"
	"strings"
)

// idPrefix marks a player identifier as synthetic.
const idPrefix = "bot:"

// catalog is the fixed set of synthetic identities. They fill empty seats
// in solo rooms and act for disconnected humans. The set is immutable
// shared configuration.
var catalog = []string{
	idPrefix + "ember",
	idPrefix + "quill",
	idPrefix + "sable",
	idPrefix + "tarn",
	idPrefix + "wren",
	idPrefix + "moss",
}

// IsBot reports whether a player identifier names a synthetic player.
func IsBot(player string) bool {
	return strings.HasPrefix(player, idPrefix)
}

// Catalog returns a copy of the synthetic identity catalog.
func Catalog() []string {
	return append([]string(nil), catalog...)
}

// PickIdentities draws n distinct synthetic identities in random order.
// n larger than the catalog is capped at the catalog size.
func PickIdentities(rng *rand.Rand, n int) []string {
	ids := Catalog()
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if n > len(ids) {
		n = len(ids)
	}
	return ids[:n]
}
