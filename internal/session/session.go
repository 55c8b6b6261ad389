// Package session owns the per-channel evolutionary search: the fitness
// store, the evolutionary loop, and the feedback/render loop, wired together
// and torn down as one unit.
package session

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"musegen/internal/action"
	"musegen/internal/evolve"
	"musegen/internal/fitness"
	"musegen/internal/genome"
	"musegen/internal/render"
	pkgLogger "musegen/pkg/logger"
)

// Renderer produces the final images for a prompt. seed -1 lets the service
// pick one; the seed actually used comes back in the result. Implementations
// may block for the duration of the render.
type Renderer interface {
	Render(prompt string, seed int64) (*render.Result, error)
}

// ControlKind hints at how a control should be styled by the chat surface.
type ControlKind int

const (
	ControlNegative ControlKind = iota
	ControlNeutral
	ControlPositive
	ControlPrimary
)

// Control is one labeled action attached to a posted image.
type Control struct {
	ID    string
	Label string
	Kind  ControlKind
}

// Poster is the chat surface boundary: post an image with labeled actions.
type Poster interface {
	PostImage(channelID, content string, image []byte, filename string, controls []Control) error
}

// Config fixes a session's parameters for its whole lifetime.
type Config struct {
	ChannelID        string
	GalleryChannelID string // promote target; empty falls back to ChannelID
	PromoteEnabled   bool
	HidePrompt       bool

	Tags   []string
	Prefix string
	Suffix string

	GenomeLength int
	Base         render.Params
}

// Session is one running evolutionary search bound to a channel.
type Session struct {
	cfg      Config
	store    *fitness.Store
	engine   *evolve.Engine
	renderer Renderer
	poster   Poster
	logger   *pkgLogger.Logger

	shutdown chan struct{}
	stopOnce sync.Once
	group    *errgroup.Group
}

// New validates the configuration, derives the algorithm constants, and
// launches the evolutionary and feedback loops. Failures happen before any
// goroutine starts, so no partial session ever exists.
func New(cfg Config, renderer Renderer, poster Poster, logger *pkgLogger.Logger) (*Session, error) {
	if err := genome.ValidateTags(cfg.Tags); err != nil {
		return nil, err
	}
	if cfg.GenomeLength <= 0 {
		cfg.GenomeLength = evolve.DefaultGenomeLength
	}

	params, err := evolve.Derive(cfg.GenomeLength, len(cfg.Tags))
	if err != nil {
		return nil, err
	}

	log := logger.WithChannel(cfg.ChannelID)
	shutdown := make(chan struct{})
	store := fitness.NewStore(shutdown)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	engine := evolve.NewEngine(params, store, rng, shutdown, log)

	s := &Session{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		renderer: renderer,
		poster:   poster,
		logger:   log.WithComponent("session"),
		shutdown: shutdown,
		group:    &errgroup.Group{},
	}

	fb := &feedbackLoop{
		cfg:      cfg,
		store:    store,
		best:     engine.Best(),
		renderer: renderer,
		poster:   poster,
		shutdown: shutdown,
		logger:   log.WithComponent("feedback"),
	}

	s.group.Go(func() error {
		engine.Run()
		return nil
	})
	s.group.Go(func() error {
		fb.run()
		return nil
	})

	s.logger.Info("session started",
		"population", params.PopulationSize,
		"genomeLength", params.GenomeLength,
		"tags", len(cfg.Tags))
	return s, nil
}

// Rate records a human rating for a genome. Ratings arriving after shutdown
// are dropped silently.
func (s *Session) Rate(g genome.Genome, verb action.Verb) error {
	score, ok := verb.Score()
	if !ok {
		return errors.Errorf("%s is not a rating verb", verb)
	}
	if !g.InRange(len(s.cfg.Tags)) {
		return errors.New("genome does not fit this session's tag table")
	}

	select {
	case <-s.shutdown:
		return nil
	default:
	}

	s.store.Rate(g, score)
	s.logger.Debug("rating recorded", "genome", g.Key(), "score", score)
	return nil
}

// Promote renders a genome as a standalone image with its recorded seed and
// posts it to the gallery channel. Runs asynchronously; failures are logged
// and surfaced as a placeholder post.
func (s *Session) Promote(g genome.Genome, seed int64) error {
	if !s.cfg.PromoteEnabled {
		return errors.New("promotion is not enabled for this session")
	}
	if !g.InRange(len(s.cfg.Tags)) {
		return errors.New("genome does not fit this session's tag table")
	}

	target := s.cfg.GalleryChannelID
	if target == "" {
		target = s.cfg.ChannelID
	}
	prompt := s.Phenotype(g)

	go func() {
		image := render.Placeholder()
		result, err := s.renderer.Render(prompt, seed)
		if err != nil {
			s.logger.Error("promotion render failed", "error", err)
		} else {
			image = result.Images[0]
		}

		content := "**Promoted from evolution session**"
		if !s.cfg.HidePrompt {
			content += ": `" + prompt + "`"
		}
		if err := s.poster.PostImage(target, content, image, imageFilename(seed), nil); err != nil {
			s.logger.Error("failed to post promoted image", "error", err)
		}
	}()
	return nil
}

// Phenotype renders a genome as prompt text under this session's tag table.
func (s *Session) Phenotype(g genome.Genome) string {
	return g.Phenotype(s.cfg.Tags, s.cfg.Prefix, s.cfg.Suffix)
}

// HidePrompt reports whether prompt text is withheld from posted messages.
func (s *Session) HidePrompt() bool {
	return s.cfg.HidePrompt
}

// PromoteEnabled reports whether best-so-far posts carry a promote control.
func (s *Session) PromoteEnabled() bool {
	return s.cfg.PromoteEnabled
}

// Stop requests cooperative shutdown. Both loops observe the flag at their
// next iteration boundary; in-flight render calls are allowed to finish or
// fail naturally.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		s.logger.Info("session stopping")
	})
}

// Wait joins both loops. Returns once they have observed shutdown.
func (s *Session) Wait() {
	_ = s.group.Wait()
}
