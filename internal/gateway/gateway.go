package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"musegen/internal/action"
	"musegen/internal/genome"
	"musegen/internal/render"
	"musegen/internal/session"
	pkgLogger "musegen/pkg/logger"
)

// Gateway is the main orchestrator for musegen: it owns the Discord adapter,
// the render client, and the session registry, and routes commands and
// button clicks between them.
type Gateway struct {
	config   *Config
	sessions *session.Manager
	client   *render.Client
	presets  render.PresetMap
	adapter  *DiscordAdapter
	logger   *pkgLogger.Logger
}

// StartOptions are the per-session choices offered by the start command.
type StartOptions struct {
	TagsURL    string
	Prefix     string
	Suffix     string
	Preset     string
	HidePrompt *bool
	Gallery    bool
}

// RateOutcome is what the chat surface needs to acknowledge a rating.
type RateOutcome struct {
	Prompt     string // empty when the session hides prompts
	Score      int
	PromoteID  string // encoded promote control, empty when promotion is off
	PromoteTag string
}

// NewGateway wires the gateway together. Fails before connecting anywhere.
func NewGateway(cfg *Config, logger *pkgLogger.Logger) (*Gateway, error) {
	if cfg.Discord.Token == "" {
		return nil, errors.New("discord token is not configured")
	}

	presets, err := render.LoadPresets(cfg.Render.PresetFile)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:   cfg,
		sessions: session.NewManager(logger),
		client:   render.NewClient(cfg.Render.URL, time.Duration(cfg.Render.TimeoutSeconds)*time.Second, logger),
		presets:  presets,
		logger:   logger.WithComponent("gateway"),
	}

	adapter, err := NewDiscordAdapter(cfg.Discord, gw, logger)
	if err != nil {
		return nil, err
	}
	gw.adapter = adapter
	return gw, nil
}

// Run connects to Discord and blocks until ctx is cancelled, then shuts
// down every active session cooperatively.
func (gw *Gateway) Run(ctx context.Context) error {
	err := gw.adapter.Start(ctx)
	gw.logger.Info("shutting down sessions")
	gw.sessions.StopAll()
	return err
}

// StartSession begins an evolution session in the channel. The returned
// string is the user-facing confirmation line.
func (gw *Gateway) StartSession(ctx context.Context, channelID string, opts StartOptions) (string, error) {
	tags, source, err := gw.loadTags(ctx, opts.TagsURL)
	if err != nil {
		return "", err
	}

	presetName := opts.Preset
	if presetName == "" {
		presetName = gw.config.Render.DefaultPreset
	}
	base, err := gw.presets.Get(presetName)
	if err != nil {
		return "", err
	}

	hidePrompt := gw.config.Evolve.HidePrompt
	if opts.HidePrompt != nil {
		hidePrompt = *opts.HidePrompt
	}

	cfg := session.Config{
		ChannelID:        channelID,
		GalleryChannelID: gw.config.Evolve.GalleryChannelID,
		PromoteEnabled:   opts.Gallery,
		HidePrompt:       hidePrompt,
		Tags:             tags,
		Prefix:           opts.Prefix,
		Suffix:           opts.Suffix,
		GenomeLength:     gw.config.Evolve.GenomeLength,
		Base:             base,
	}

	if _, err := gw.sessions.Start(cfg, &jobRenderer{client: gw.client, params: base, logger: gw.logger}, gw.adapter); err != nil {
		return "", err
	}
	return fmt.Sprintf("Starting with %s (%d tags). Rate the images as they appear.", source, len(tags)), nil
}

// StopSession ends the channel's session.
func (gw *Gateway) StopSession(channelID string) (string, error) {
	if err := gw.sessions.Stop(channelID); err != nil {
		return "", err
	}
	return "Session terminated. You are now free to start again.", nil
}

// HandleRate routes a decoded rating click into the channel's session.
func (gw *Gateway) HandleRate(channelID string, act action.Action) (RateOutcome, error) {
	s, ok := gw.sessions.Get(channelID)
	if !ok {
		return RateOutcome{}, errors.New("there is no active session in this channel")
	}

	score, ok := act.Verb.Score()
	if !ok {
		return RateOutcome{}, errors.Errorf("%s is not a rating verb", act.Verb)
	}
	if err := s.Rate(act.Genome, act.Verb); err != nil {
		return RateOutcome{}, err
	}

	out := RateOutcome{Score: score}
	if !s.HidePrompt() {
		out.Prompt = s.Phenotype(act.Genome)
	}
	if s.PromoteEnabled() {
		out.PromoteID = action.Encode(action.Action{Verb: action.VerbPromote, Genome: act.Genome, Seed: act.Seed})
		out.PromoteTag = action.VerbPromote.Label()
	}
	return out, nil
}

// HandlePromote routes a promote click into the channel's session.
func (gw *Gateway) HandlePromote(channelID string, act action.Action) error {
	s, ok := gw.sessions.Get(channelID)
	if !ok {
		return errors.New("there is no active session in this channel")
	}
	return s.Promote(act.Genome, act.Seed)
}

// loadTags resolves the session's tag table: explicit URL, configured
// default URL, or the bundled list.
func (gw *Gateway) loadTags(ctx context.Context, url string) ([]string, string, error) {
	if url == "" {
		url = gw.config.Evolve.TagsURL
	}
	if url == "" {
		return genome.DefaultTags(), "the bundled tag list", nil
	}
	tags, err := genome.FetchTags(ctx, url)
	if err != nil {
		return nil, "", err
	}
	return tags, url, nil
}

// jobRenderer adapts the job-based render client to the session's blocking
// Renderer interface, logging progress while it waits.
type jobRenderer struct {
	client *render.Client
	params render.Params
	logger *pkgLogger.Logger
}

func (r *jobRenderer) Render(prompt string, seed int64) (*render.Result, error) {
	params := r.params
	params.Seed = seed

	job := r.client.Submit(params, prompt)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-job.Done():
			return job.Await()
		case <-ticker.C:
			if progress, err := job.Progress(); err == nil {
				r.logger.Debug("render progress",
					"job", job.ID,
					"fraction", fmt.Sprintf("%.2f", progress.Fraction),
					"eta", fmt.Sprintf("%.0fs", progress.ETASeconds))
			}
		}
	}
}
