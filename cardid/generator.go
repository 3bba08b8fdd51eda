// Package cardid generates, validates and formats card identifiers.
//
// A raw identifier is the 16-character uppercase hexadecimal card number stored
// on a card record: a fixed vendor prefix followed by three 4-digit groups.
// The derived UID shown to users is produced by a Converter and grouped for
// display with FormatUID.
package cardid

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"sync"
)

// VendorPrefix is the fixed vendor/type prefix of every generated identifier.
const VendorPrefix = "02FE"

// RawLength is the length of a raw identifier in characters.
const RawLength = 16

var rawPattern = regexp.MustCompile(`^` + VendorPrefix + `[0-9A-F]{12}$`)

// Generator produces raw card identifiers.
//
// Identifiers are placeholders, not security tokens, so a non-cryptographic
// source is used. Generator is safe for concurrent use.
//
// Example:
//
//	gen := cardid.NewGenerator(nil)
//	raw := gen.Generate() // e.g. "02FE1A2B3C4D5E6F"
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a Generator drawing from src. A nil src uses a
// randomly seeded PCG source.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{rng: rand.New(src)}
}

// Generate returns a fresh raw identifier.
func (g *Generator) Generate() string {
	g.mu.Lock()
	a, b, c := g.group(), g.group(), g.group()
	g.mu.Unlock()
	return fmt.Sprintf("%s%04X%04X%04X", VendorPrefix, a, b, c)
}

// group draws one value uniformly from [0, 65535].
func (g *Generator) group() uint16 {
	return uint16(g.rng.UintN(1 << 16))
}

// Valid reports whether raw has the generated identifier layout.
func Valid(raw string) bool {
	return rawPattern.MatchString(raw)
}
