// Package genome defines the candidate representation for evolutionary
// prompt search: a fixed-length sequence of gene values indexing into a
// session's tag table, plus the codecs between genomes, prompt text, and
// compact wire tokens.
package genome

import (
	"encoding/binary"
	"encoding/hex"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
)

// Genome is an ordered fixed-length sequence of gene values. Each gene is an
// index into the session's tag table; values are validated against the table
// size at construction and mutation time, so Phenotype may index freely.
type Genome []uint16

// Random builds a genome of the given length with genes drawn uniformly from
// [0, tagCount).
func Random(rng *rand.Rand, length, tagCount int) Genome {
	g := make(Genome, length)
	for i := range g {
		g[i] = uint16(rng.Intn(tagCount))
	}
	return g
}

// Clone returns an independent copy of the genome.
func (g Genome) Clone() Genome {
	out := make(Genome, len(g))
	copy(out, g)
	return out
}

// Key returns the canonical map-key form of the genome. It is identical to
// the encoded token, which keeps store keys and button payloads comparable
// in logs.
func (g Genome) Key() string {
	return EncodeToken(g)
}

// Phenotype renders the genome as prompt text: each gene mapped through the
// tag table, joined with ", ", with optional prefix and suffix phrases.
// A gene outside the table range is a programming error and panics.
func (g Genome) Phenotype(tags []string, prefix, suffix string) string {
	parts := make([]string, 0, len(g)+2)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	for _, gene := range g {
		parts = append(parts, tags[gene])
	}
	if suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, ", ")
}

// EncodeToken encodes the genome as hex over big-endian fixed-width genes.
// Round trip property: DecodeToken(EncodeToken(g)) == g.
func EncodeToken(g Genome) string {
	raw := make([]byte, 2*len(g))
	for i, gene := range g {
		binary.BigEndian.PutUint16(raw[2*i:], gene)
	}
	return hex.EncodeToString(raw)
}

// DecodeToken decodes a hex genome token produced by EncodeToken.
func DecodeToken(token string) (Genome, error) {
	raw, err := hex.DecodeString(token)
	if err != nil {
		return nil, errors.Wrap(err, "malformed genome token")
	}
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, errors.Errorf("genome token has invalid length %d", len(raw))
	}
	g := make(Genome, len(raw)/2)
	for i := range g {
		g[i] = binary.BigEndian.Uint16(raw[2*i:])
	}
	return g, nil
}

// InRange reports whether every gene indexes into a table of the given size.
func (g Genome) InRange(tagCount int) bool {
	for _, gene := range g {
		if int(gene) >= tagCount {
			return false
		}
	}
	return true
}
