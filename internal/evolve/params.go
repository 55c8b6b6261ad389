// Package evolve runs the genetic algorithm over tag genomes. Fitness comes
// from a blocking evaluator, so the whole loop lives on its own goroutine
// and is paced by human ratings rather than CPU.
package evolve

import (
	"math"

	"github.com/pkg/errors"
)

// Params are the algorithm constants for one session. They are derived once
// from the genome length and tag table size at session start and are not
// runtime-configurable.
type Params struct {
	GenomeLength int
	TagCount     int

	PopulationSize   int
	ParentGroupSize  int
	SelectionRatio   float64
	CrossoverPoints  int
	MutationRate     float64
	ReinsertionRatio float64
}

// DefaultGenomeLength is the nominal genome length when config leaves it unset.
const DefaultGenomeLength = 10

// Derive computes the fixed algorithm constants for a genome length and tag
// table size. The tuning is scale-dependent: population size and mutation
// rate both follow ln(length) so longer genomes get proportionally larger
// populations and gentler per-gene mutation.
func Derive(genomeLength, tagCount int) (Params, error) {
	if genomeLength < 2 {
		return Params{}, errors.Errorf("genome length must be at least 2, got %d", genomeLength)
	}
	if tagCount < 2 {
		return Params{}, errors.Errorf("tag table must have at least 2 entries, got %d", tagCount)
	}

	logLen := math.Log(float64(genomeLength))

	crossoverPoints := genomeLength / 6
	if crossoverPoints < 1 {
		crossoverPoints = 1
	}

	return Params{
		GenomeLength:     genomeLength,
		TagCount:         tagCount,
		PopulationSize:   int(10 * logLen),
		ParentGroupSize:  3,
		SelectionRatio:   0.7,
		CrossoverPoints:  crossoverPoints,
		MutationRate:     0.05 / logLen,
		ReinsertionRatio: 0.7,
	}, nil
}

// EliteCount is the number of individuals that survive reinsertion
// unconditionally.
func (p Params) EliteCount() int {
	return int(math.Ceil(p.ReinsertionRatio * float64(p.PopulationSize)))
}

// selectionCount is the number of parent candidates chosen each generation.
func (p Params) selectionCount() int {
	n := int(math.Round(p.SelectionRatio * float64(p.PopulationSize)))
	if n < p.ParentGroupSize {
		n = p.ParentGroupSize
	}
	if n > p.PopulationSize {
		n = p.PopulationSize
	}
	return n
}
