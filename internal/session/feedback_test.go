package session

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"musegen/internal/action"
	"musegen/internal/fitness"
	"musegen/internal/genome"
	"musegen/internal/render"
	pkgLogger "musegen/pkg/logger"
)

func testLogger() *pkgLogger.Logger {
	return pkgLogger.NewLoggerWithConsoleWriter(pkgLogger.LogLevelError, io.Discard)
}

// fakeRenderer produces deterministic images, failing for chosen prompts.
type fakeRenderer struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (r *fakeRenderer) failFor(prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail == nil {
		r.fail = make(map[string]bool)
	}
	r.fail[prompt] = true
}

func (r *fakeRenderer) Render(prompt string, seed int64) (*render.Result, error) {
	r.mu.Lock()
	failed := r.fail[prompt]
	r.mu.Unlock()
	if failed {
		return nil, errors.New("remote rejection")
	}
	if seed < 0 {
		seed = 42
	}
	return &render.Result{
		Images: [][]byte{[]byte("img:" + prompt)},
		Seeds:  []int64{seed},
	}, nil
}

type post struct {
	channel  string
	content  string
	image    []byte
	filename string
	controls []Control
}

type fakePoster struct {
	mu    sync.Mutex
	posts []post
}

func (p *fakePoster) PostImage(channelID, content string, image []byte, filename string, controls []Control) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, post{channelID, content, image, filename, controls})
	return nil
}

func (p *fakePoster) snapshot() []post {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]post(nil), p.posts...)
}

func testConfig() Config {
	return Config{
		ChannelID:    "chan-1",
		Tags:         []string{"a", "b", "c"},
		GenomeLength: 3,
	}
}

func TestPostPendingIssuesRatingControls(t *testing.T) {
	shutdown := make(chan struct{})
	defer close(shutdown)

	store := fitness.NewStore(shutdown)
	poster := &fakePoster{}
	fb := &feedbackLoop{
		cfg:      testConfig(),
		store:    store,
		best:     make(chan genome.Genome),
		renderer: &fakeRenderer{},
		poster:   poster,
		shutdown: shutdown,
		logger:   testLogger(),
	}

	g := genome.Genome{0, 1, 2}
	awaited := make(chan int, 1)
	go func() { awaited <- store.Await(g) }()

	// The request lands in the pending set once Await registers it
	deadline := time.Now().Add(time.Second)
	for len(poster.snapshot()) == 0 && time.Now().Before(deadline) {
		fb.postPending()
		time.Sleep(5 * time.Millisecond)
	}

	posts := poster.snapshot()
	if len(posts) != 1 {
		t.Fatalf("expected 1 candidate post, got %d", len(posts))
	}
	p := posts[0]

	if p.channel != "chan-1" {
		t.Errorf("posted to %s, want chan-1", p.channel)
	}
	if !strings.Contains(p.content, "a, b, c") {
		t.Errorf("content %q does not include the prompt", p.content)
	}
	if len(p.controls) != 5 {
		t.Fatalf("expected 5 rating controls, got %d", len(p.controls))
	}
	for i, verb := range action.RatingVerbs {
		act, err := action.Decode(p.controls[i].ID)
		if err != nil {
			t.Fatalf("control %d has undecodable ID %q: %v", i, p.controls[i].ID, err)
		}
		if act.Verb != verb {
			t.Errorf("control %d decodes to %v, want %v", i, act.Verb, verb)
		}
		if act.Genome.Key() != g.Key() {
			t.Errorf("control %d keyed to %v, want %v", i, act.Genome, g)
		}
	}

	// Rating through the store releases the blocked evaluation
	store.Rate(g, 75)
	select {
	case v := <-awaited:
		if v != 75 {
			t.Errorf("Await = %d, want 75", v)
		}
	case <-time.After(time.Second):
		t.Fatal("rating did not release the evaluation")
	}
}

func TestPostPendingSubstitutesPlaceholderOnRenderFailure(t *testing.T) {
	shutdown := make(chan struct{})
	defer close(shutdown)

	store := fitness.NewStore(shutdown)
	poster := &fakePoster{}
	renderer := &fakeRenderer{}
	renderer.failFor("b, b, b")

	fb := &feedbackLoop{
		cfg:      testConfig(),
		store:    store,
		best:     make(chan genome.Genome),
		renderer: renderer,
		poster:   poster,
		shutdown: shutdown,
		logger:   testLogger(),
	}

	g := genome.Genome{1, 1, 1}
	go store.Await(g)

	deadline := time.Now().Add(time.Second)
	for len(poster.snapshot()) == 0 && time.Now().Before(deadline) {
		fb.postPending()
		time.Sleep(5 * time.Millisecond)
	}

	posts := poster.snapshot()
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	p := posts[0]

	if !bytes.Equal(p.image, render.Placeholder()) {
		t.Error("render failure must post the placeholder image")
	}
	if len(p.controls) != 5 {
		t.Fatalf("placeholder post lost its rating controls: %d", len(p.controls))
	}
	act, err := action.Decode(p.controls[0].ID)
	if err != nil {
		t.Fatalf("control ID undecodable: %v", err)
	}
	if act.Genome.Key() != g.Key() {
		t.Errorf("controls keyed to %v, want %v", act.Genome, g)
	}
	if act.Seed != 0 {
		t.Errorf("placeholder seed = %d, want 0", act.Seed)
	}

	store.Rate(g, 0)
}

func TestPostBest(t *testing.T) {
	shutdown := make(chan struct{})
	defer close(shutdown)

	cfg := testConfig()
	cfg.PromoteEnabled = true

	best := make(chan genome.Genome, 1)
	poster := &fakePoster{}
	fb := &feedbackLoop{
		cfg:      cfg,
		store:    fitness.NewStore(shutdown),
		best:     best,
		renderer: &fakeRenderer{},
		poster:   poster,
		shutdown: shutdown,
		logger:   testLogger(),
	}

	// Nothing published yet: no post
	fb.postBest()
	if len(poster.snapshot()) != 0 {
		t.Fatal("postBest posted without a notification")
	}

	best <- genome.Genome{2, 0, 1}
	fb.postBest()

	posts := poster.snapshot()
	if len(posts) != 1 {
		t.Fatalf("expected 1 best post, got %d", len(posts))
	}
	p := posts[0]
	if !strings.Contains(p.content, "Best result so far") {
		t.Errorf("unexpected content %q", p.content)
	}
	if !strings.Contains(p.content, "c, a, b") {
		t.Errorf("content %q does not include the prompt", p.content)
	}
	if len(p.controls) != 1 {
		t.Fatalf("expected a promote control, got %d controls", len(p.controls))
	}
	act, err := action.Decode(p.controls[0].ID)
	if err != nil {
		t.Fatalf("promote control undecodable: %v", err)
	}
	if act.Verb != action.VerbPromote {
		t.Errorf("control verb = %v, want promote", act.Verb)
	}
}

func TestPostBestHidesPrompt(t *testing.T) {
	shutdown := make(chan struct{})
	defer close(shutdown)

	cfg := testConfig()
	cfg.HidePrompt = true

	best := make(chan genome.Genome, 1)
	best <- genome.Genome{0, 0, 0}
	poster := &fakePoster{}
	fb := &feedbackLoop{
		cfg:      cfg,
		store:    fitness.NewStore(shutdown),
		best:     best,
		renderer: &fakeRenderer{},
		poster:   poster,
		shutdown: shutdown,
		logger:   testLogger(),
	}

	fb.postBest()
	posts := poster.snapshot()
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if strings.Contains(posts[0].content, "a, a, a") {
		t.Errorf("hide-prompt post leaked the prompt: %q", posts[0].content)
	}
}
