package evolve

import (
	"math/rand"
	"sort"

	"musegen/internal/genome"
)

// Scored pairs a genome with its evaluated fitness.
type Scored struct {
	Genome  genome.Genome
	Fitness int
}

// rankDesc sorts a population best-first. Stable so equal-fitness order is
// deterministic for a given input order.
func rankDesc(pop []Scored) {
	sort.SliceStable(pop, func(i, j int) bool {
		return pop[i].Fitness > pop[j].Fitness
	})
}

// selectParentGroups picks the selection-ratio share of the ranked
// population as parent candidates and chunks them into groups, best
// candidates first. A trailing short chunk wraps around to the top of the
// candidate list so every group has exactly ParentGroupSize members.
func selectParentGroups(ranked []Scored, p Params) [][]genome.Genome {
	count := p.selectionCount()
	if count > len(ranked) {
		count = len(ranked)
	}
	candidates := ranked[:count]

	var groups [][]genome.Genome
	for start := 0; start < count; start += p.ParentGroupSize {
		group := make([]genome.Genome, 0, p.ParentGroupSize)
		for i := 0; i < p.ParentGroupSize; i++ {
			group = append(group, candidates[(start+i)%count].Genome)
		}
		groups = append(groups, group)
	}
	return groups
}

// crossover produces one offspring from a parent group by cutting the gene
// sequence at `points` random positions and copying each segment from the
// parents in rotation, starting at the parent with index `lead`.
func crossover(rng *rand.Rand, parents []genome.Genome, lead, points int) genome.Genome {
	length := len(parents[0])
	cuts := crossoverCuts(rng, length, points)

	child := make(genome.Genome, length)
	parent := lead % len(parents)
	prev := 0
	for _, cut := range cuts {
		copy(child[prev:cut], parents[parent][prev:cut])
		prev = cut
		parent = (parent + 1) % len(parents)
	}
	copy(child[prev:], parents[parent][prev:])
	return child
}

// crossoverCuts draws up to `points` distinct cut positions in [1, length),
// ascending.
func crossoverCuts(rng *rand.Rand, length, points int) []int {
	if points > length-1 {
		points = length - 1
	}
	seen := make(map[int]bool, points)
	cuts := make([]int, 0, points)
	for len(cuts) < points {
		cut := 1 + rng.Intn(length-1)
		if seen[cut] {
			continue
		}
		seen[cut] = true
		cuts = append(cuts, cut)
	}
	sort.Ints(cuts)
	return cuts
}

// mutate replaces each gene independently with a uniformly random in-range
// value with probability rate. Mutates in place.
func mutate(rng *rand.Rand, g genome.Genome, rate float64, tagCount int) {
	for i := range g {
		if rng.Float64() < rate {
			g[i] = uint16(rng.Intn(tagCount))
		}
	}
}

// reinsert merges offspring into the old population under an elitist policy:
// the top EliteCount incumbents survive unconditionally, then the remaining
// slots are filled with the best offspring, then with the next-best
// incumbents if offspring run short. Both inputs must be ranked best-first.
func reinsert(ranked, offspring []Scored, p Params) []Scored {
	next := make([]Scored, 0, p.PopulationSize)

	elite := p.EliteCount()
	if elite > len(ranked) {
		elite = len(ranked)
	}
	next = append(next, ranked[:elite]...)

	for _, child := range offspring {
		if len(next) >= p.PopulationSize {
			break
		}
		next = append(next, child)
	}
	for i := elite; len(next) < p.PopulationSize && i < len(ranked); i++ {
		next = append(next, ranked[i])
	}
	return next
}
