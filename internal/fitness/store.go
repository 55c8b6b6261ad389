// Package fitness implements the rendezvous point between the evolutionary
// loop, which blocks waiting for scores, and the feedback loop, which
// resolves them from human ratings with unbounded latency.
package fitness

import (
	"sync"

	"musegen/internal/genome"
)

// Score bounds. Ratings map onto {0, 25, 50, 75, 100}.
const (
	LowestScore  = 0
	HighestScore = 100
)

// entry tracks one genome's evaluation state. An absent map entry means the
// genome was never requested; ready=false means a request is in flight.
type entry struct {
	ready bool
	value int
}

// Store is a concurrent map from genome to score plus the set of genomes
// awaiting evaluation. Await is called from the evolutionary loop's
// goroutine, which is allowed to block; Rate and DrainPending are called
// from interaction handlers and the feedback loop. No lock is held while a
// caller waits.
type Store struct {
	mu      sync.Mutex
	scores  map[string]entry
	waiters map[string][]chan int
	pending map[string]genome.Genome

	shutdown <-chan struct{}
}

// NewStore builds a store tied to a session's shutdown channel. Closing the
// channel releases every blocked Await with the sentinel low score.
func NewStore(shutdown <-chan struct{}) *Store {
	return &Store{
		scores:   make(map[string]entry),
		waiters:  make(map[string][]chan int),
		pending:  make(map[string]genome.Genome),
		shutdown: shutdown,
	}
}

// Await returns the genome's score, blocking until one is rated in. The
// first request for an unknown genome marks it requested and queues it for
// the feedback loop. There is no timeout: only a rating or session shutdown
// (which yields LowestScore) unblocks the caller.
func (s *Store) Await(g genome.Genome) int {
	key := g.Key()

	s.mu.Lock()
	if e, ok := s.scores[key]; ok && e.ready {
		s.mu.Unlock()
		return e.value
	}
	if _, ok := s.scores[key]; !ok {
		s.scores[key] = entry{}
		s.pending[key] = g.Clone()
	}
	ch := make(chan int, 1)
	s.waiters[key] = append(s.waiters[key], ch)
	s.mu.Unlock()

	select {
	case v := <-ch:
		return v
	case <-s.shutdown:
		return LowestScore
	}
}

// Rate records a score for a genome and wakes any blocked Await calls.
// Re-rating overwrites the previous value; a human may change their mind.
func (s *Store) Rate(g genome.Genome, value int) {
	key := g.Key()

	s.mu.Lock()
	s.scores[key] = entry{ready: true, value: value}
	woken := s.waiters[key]
	delete(s.waiters, key)
	s.mu.Unlock()

	for _, ch := range woken {
		ch <- value
	}
}

// Peek returns the score for a genome without blocking. ok is false while
// the genome is unknown or still awaiting a rating.
func (s *Store) Peek(g genome.Genome) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, found := s.scores[g.Key()]
	return e.value, found && e.ready
}

// DrainPending atomically empties and returns the set of genomes awaiting
// evaluation, so each is picked up by exactly one feedback cycle.
func (s *Store) DrainPending() []genome.Genome {
	s.mu.Lock()
	taken := s.pending
	s.pending = make(map[string]genome.Genome)
	s.mu.Unlock()

	out := make([]genome.Genome, 0, len(taken))
	for _, g := range taken {
		out = append(out, g)
	}
	return out
}
