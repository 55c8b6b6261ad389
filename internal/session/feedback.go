package session

import (
	"fmt"
	"time"

	"musegen/internal/action"
	"musegen/internal/fitness"
	"musegen/internal/genome"
	"musegen/internal/render"
	pkgLogger "musegen/pkg/logger"
)

// pollInterval paces the feedback loop's drain cycles.
const pollInterval = 500 * time.Millisecond

// feedbackLoop bridges the evolutionary loop and the chat surface: it drains
// evaluation requests, renders each genome, and posts the image with rating
// controls. It also publishes best-so-far posts. Everything here is
// best-effort; one bad render or post never stops the loop.
type feedbackLoop struct {
	cfg      Config
	store    *fitness.Store
	best     <-chan genome.Genome
	renderer Renderer
	poster   Poster
	shutdown <-chan struct{}
	logger   *pkgLogger.Logger
}

func (f *feedbackLoop) run() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.shutdown:
			return
		default:
		}

		f.postBest()
		f.postPending()

		select {
		case <-f.shutdown:
			return
		case <-ticker.C:
		}
	}
}

// postBest posts the latest best-so-far notification, if one arrived since
// the last cycle.
func (f *feedbackLoop) postBest() {
	var g genome.Genome
	select {
	case g = <-f.best:
	default:
		return
	}

	prompt := f.cfg.Prompt(g)
	image, seed := f.renderOrPlaceholder(prompt)

	content := "**Best result so far**"
	if !f.cfg.HidePrompt {
		content += ": `" + prompt + "`"
	}

	var controls []Control
	if f.cfg.PromoteEnabled {
		controls = append(controls, Control{
			ID:    action.Encode(action.Action{Verb: action.VerbPromote, Genome: g, Seed: seed}),
			Label: action.VerbPromote.Label(),
			Kind:  ControlPrimary,
		})
	}

	if err := f.poster.PostImage(f.cfg.ChannelID, content, image, imageFilename(seed), controls); err != nil {
		f.logger.Error("failed to post best result", "error", err)
	}
}

// postPending drains the evaluation queue and posts each genome with its
// five rating controls. Render failures substitute the placeholder so every
// drained genome still reaches the channel and can be rated.
func (f *feedbackLoop) postPending() {
	for _, g := range f.store.DrainPending() {
		prompt := f.cfg.Prompt(g)
		image, seed := f.renderOrPlaceholder(prompt)

		content := ""
		if !f.cfg.HidePrompt {
			content = "`" + prompt + "`"
		}

		controls := make([]Control, 0, len(action.RatingVerbs))
		for _, verb := range action.RatingVerbs {
			controls = append(controls, Control{
				ID:    action.Encode(action.Action{Verb: verb, Genome: g, Seed: seed}),
				Label: verb.Label(),
				Kind:  ratingKind(verb),
			})
		}

		if err := f.poster.PostImage(f.cfg.ChannelID, content, image, imageFilename(seed), controls); err != nil {
			f.logger.Error("failed to post candidate", "genome", g.Key(), "error", err)
		}
	}
}

// renderOrPlaceholder renders the prompt, substituting the fixed placeholder
// (with seed 0) when the external service fails.
func (f *feedbackLoop) renderOrPlaceholder(prompt string) ([]byte, int64) {
	result, err := f.renderer.Render(prompt, -1)
	if err != nil {
		f.logger.Warn("render failed, substituting placeholder", "error", err)
		return render.Placeholder(), 0
	}
	return result.Images[0], result.Seeds[0]
}

// Prompt renders a genome's phenotype under this config.
func (c Config) Prompt(g genome.Genome) string {
	return g.Phenotype(c.Tags, c.Prefix, c.Suffix)
}

func ratingKind(v action.Verb) ControlKind {
	score, _ := v.Score()
	switch {
	case score < 50:
		return ControlNegative
	case score > 50:
		return ControlPositive
	default:
		return ControlNeutral
	}
}

func imageFilename(seed int64) string {
	return fmt.Sprintf("output_%d.png", seed)
}
