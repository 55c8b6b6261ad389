package evolve

import (
	"math/rand"

	"musegen/internal/genome"
	pkgLogger "musegen/pkg/logger"
)

// Evaluator supplies fitness values. Await may block for as long as it takes
// a human to rate the genome; it must return promptly (with a sentinel
// value) once the session shuts down.
type Evaluator interface {
	Await(g genome.Genome) int
}

// Engine runs an unbounded sequence of generations on its own goroutine.
// There is no convergence termination: only the shutdown channel stops it.
type Engine struct {
	params    Params
	evaluator Evaluator
	rng       *rand.Rand
	shutdown  <-chan struct{}
	logger    *pkgLogger.Logger

	// best carries the latest generation's best genome to the feedback
	// loop. Capacity 1 with drain-then-send publish: the engine never
	// blocks and a slow receiver only ever sees the most recent best.
	best chan genome.Genome

	population []genome.Genome
}

// NewEngine builds an engine with a uniformly random initial population.
func NewEngine(params Params, evaluator Evaluator, rng *rand.Rand, shutdown <-chan struct{}, logger *pkgLogger.Logger) *Engine {
	population := make([]genome.Genome, params.PopulationSize)
	for i := range population {
		population[i] = genome.Random(rng, params.GenomeLength, params.TagCount)
	}

	return &Engine{
		params:     params,
		evaluator:  evaluator,
		rng:        rng,
		shutdown:   shutdown,
		logger:     logger.WithComponent("evolve"),
		best:       make(chan genome.Genome, 1),
		population: population,
	}
}

// Best is the advisory best-so-far notification channel.
func (e *Engine) Best() <-chan genome.Genome {
	return e.best
}

// Run executes generations until shutdown. Intended to be called on a
// dedicated goroutine since evaluation blocks on human feedback.
func (e *Engine) Run() {
	generation := 0
	for {
		ranked, ok := e.evaluate(e.population)
		if !ok {
			e.logger.Debug("shutdown observed during evaluation", "generation", generation)
			return
		}

		groups := selectParentGroups(ranked, e.params)
		var children []genome.Genome
		for _, group := range groups {
			for lead := range group {
				child := crossover(e.rng, group, lead, e.params.CrossoverPoints)
				mutate(e.rng, child, e.params.MutationRate, e.params.TagCount)
				children = append(children, child)
			}
		}

		offspring, ok := e.evaluate(children)
		if !ok {
			e.logger.Debug("shutdown observed during offspring evaluation", "generation", generation)
			return
		}

		next := reinsert(ranked, offspring, e.params)
		rankDesc(next)

		e.publishBest(next[0].Genome)
		e.logger.Debug("generation complete",
			"generation", generation,
			"best", next[0].Fitness,
			"avg", averageFitness(next))

		if e.stopped() {
			return
		}

		e.population = make([]genome.Genome, len(next))
		for i, s := range next {
			e.population[i] = s.Genome
		}
		generation++
	}
}

// evaluate scores every genome through the evaluator and returns the results
// ranked best-first. ok is false when shutdown interrupted the batch, in
// which case the scores are sentinel-polluted and must be discarded.
func (e *Engine) evaluate(genomes []genome.Genome) ([]Scored, bool) {
	scored := make([]Scored, len(genomes))
	for i, g := range genomes {
		scored[i] = Scored{Genome: g, Fitness: e.evaluator.Await(g)}
		if e.stopped() {
			return nil, false
		}
	}
	rankDesc(scored)
	return scored, true
}

// averageFitness is the truncated arithmetic mean of a generation.
func averageFitness(pop []Scored) int {
	if len(pop) == 0 {
		return 0
	}
	sum := 0
	for _, s := range pop {
		sum += s.Fitness
	}
	return sum / len(pop)
}

func (e *Engine) publishBest(g genome.Genome) {
	select {
	case <-e.best:
	default:
	}
	select {
	case e.best <- g.Clone():
	default:
	}
}

func (e *Engine) stopped() bool {
	select {
	case <-e.shutdown:
		return true
	default:
		return false
	}
}
