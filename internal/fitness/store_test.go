package fitness

import (
	"testing"
	"time"

	"musegen/internal/genome"
)

func TestRateThenAwaitReturnsImmediately(t *testing.T) {
	shutdown := make(chan struct{})
	defer close(shutdown)
	s := NewStore(shutdown)

	g := genome.Genome{0, 1, 2}
	s.Rate(g, 100)

	done := make(chan int, 1)
	go func() { done <- s.Await(g) }()

	select {
	case v := <-done:
		if v != 100 {
			t.Errorf("Await = %d, want 100", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Await blocked despite an existing rating")
	}

	// A rated genome is never queued for evaluation
	if pending := s.DrainPending(); len(pending) != 0 {
		t.Errorf("expected empty pending set, got %d entries", len(pending))
	}
}

func TestAwaitBlocksUntilRated(t *testing.T) {
	shutdown := make(chan struct{})
	defer close(shutdown)
	s := NewStore(shutdown)

	g := genome.Genome{3, 3}
	done := make(chan int, 1)
	go func() { done <- s.Await(g) }()

	select {
	case v := <-done:
		t.Fatalf("Await returned %d before any rating", v)
	case <-time.After(50 * time.Millisecond):
	}

	s.Rate(g, 75)

	select {
	case v := <-done:
		if v != 75 {
			t.Errorf("Await = %d, want 75", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Await did not observe the rating")
	}
}

func TestAwaitQueuesPendingOnce(t *testing.T) {
	shutdown := make(chan struct{})
	defer close(shutdown)
	s := NewStore(shutdown)

	g := genome.Genome{1, 2}
	go s.Await(g)

	var pending []genome.Genome
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		pending = s.DrainPending()
		if len(pending) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending genome, got %d", len(pending))
	}
	if pending[0].Key() != g.Key() {
		t.Errorf("pending genome %v, want %v", pending[0], g)
	}

	// Drained again without new requests: empty
	if again := s.DrainPending(); len(again) != 0 {
		t.Errorf("second drain returned %d genomes, want 0", len(again))
	}

	s.Rate(g, 50)
}

func TestShutdownReleasesAwait(t *testing.T) {
	shutdown := make(chan struct{})
	s := NewStore(shutdown)

	done := make(chan int, 1)
	go func() { done <- s.Await(genome.Genome{9, 9}) }()

	time.Sleep(20 * time.Millisecond)
	close(shutdown)

	select {
	case v := <-done:
		if v != LowestScore {
			t.Errorf("Await after shutdown = %d, want %d", v, LowestScore)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Await did not return promptly after shutdown")
	}
}

func TestReRateOverwrites(t *testing.T) {
	shutdown := make(chan struct{})
	defer close(shutdown)
	s := NewStore(shutdown)

	g := genome.Genome{5}
	s.Rate(g, 25)
	s.Rate(g, 100)

	v, ok := s.Peek(g)
	if !ok || v != 100 {
		t.Errorf("Peek = (%d, %v), want (100, true)", v, ok)
	}
}

func TestPeekUnknownAndRequested(t *testing.T) {
	shutdown := make(chan struct{})
	defer close(shutdown)
	s := NewStore(shutdown)

	g := genome.Genome{1}
	if _, ok := s.Peek(g); ok {
		t.Error("Peek reported a score for an unknown genome")
	}

	go s.Await(g)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(s.DrainPending()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := s.Peek(g); ok {
		t.Error("Peek reported a score for a requested genome")
	}
	s.Rate(g, 0)
}
