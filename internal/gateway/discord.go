package gateway

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"musegen/internal/action"
	"musegen/internal/session"
	pkgLogger "musegen/pkg/logger"
)

// DiscordAdapter is the chat surface: it registers the /evolve command,
// routes interactions into the gateway, and posts images with button rows.
// It implements session.Poster.
type DiscordAdapter struct {
	session     *discordgo.Session
	gateway     *Gateway
	config      DiscordConfig
	logger      *pkgLogger.Logger
	allowGuilds map[string]bool
	allowChans  map[string]bool
	allowUsers  map[string]bool
}

// NewDiscordAdapter creates a Discord adapter.
func NewDiscordAdapter(cfg DiscordConfig, gw *Gateway, logger *pkgLogger.Logger) (*DiscordAdapter, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}

	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	a := &DiscordAdapter{
		session:     dg,
		gateway:     gw,
		config:      cfg,
		logger:      logger.WithComponent("discord"),
		allowGuilds: toSet(cfg.AllowedGuildIDs),
		allowChans:  toSet(cfg.AllowedChannelIDs),
		allowUsers:  toSet(cfg.AllowedUserIDs),
	}

	dg.AddHandler(a.handleReady)
	dg.AddHandler(a.handleInteraction)

	return a, nil
}

var evolveCommand = &discordgo.ApplicationCommand{
	Name:        "evolve",
	Description: "Interactive evolutionary image search",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "start",
			Description: "Start an evolution session in this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tags_url",
					Description: "Newline-delimited tag list URL (defaults to the bundled list)",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prefix",
					Description: "Phrase prepended to every prompt",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "suffix",
					Description: "Phrase appended to every prompt",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "preset",
					Description: "Render parameter preset name",
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "hide_prompt",
					Description: "Withhold prompt text from posted images",
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "gallery",
					Description: "Offer a promote-to-gallery button on best results",
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "stop",
			Description: "Stop the evolution session in this channel",
		},
	},
}

func (a *DiscordAdapter) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	a.logger.Info("Discord bot connected", "user", r.User.Username)
}

// Start connects to Discord, registers the command, and blocks until ctx is
// cancelled.
func (a *DiscordAdapter) Start(ctx context.Context) error {
	if err := a.session.Open(); err != nil {
		return errors.Wrap(err, "failed to open discord connection")
	}

	if _, err := a.session.ApplicationCommandCreate(a.session.State.User.ID, "", evolveCommand); err != nil {
		_ = a.session.Close()
		return errors.Wrap(err, "failed to register command")
	}

	<-ctx.Done()
	return a.session.Close()
}

func (a *DiscordAdapter) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !a.allowed(i) {
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		if data.Name != evolveCommand.Name || len(data.Options) == 0 {
			return
		}
		switch data.Options[0].Name {
		case "start":
			a.handleStart(i, data.Options[0])
		case "stop":
			a.handleStop(i)
		}
	case discordgo.InteractionMessageComponent:
		a.handleComponent(i)
	}
}

func (a *DiscordAdapter) handleStart(i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	var opts StartOptions
	for _, o := range sub.Options {
		switch o.Name {
		case "tags_url":
			opts.TagsURL = o.StringValue()
		case "prefix":
			opts.Prefix = o.StringValue()
		case "suffix":
			opts.Suffix = o.StringValue()
		case "preset":
			opts.Preset = o.StringValue()
		case "hide_prompt":
			hide := o.BoolValue()
			opts.HidePrompt = &hide
		case "gallery":
			opts.Gallery = o.BoolValue()
		}
	}

	a.respond(i, "Starting session...")

	// Tag fetch can take a while; finish setup off the interaction path and
	// report through a follow-up message.
	channelID := i.ChannelID
	go func() {
		msg, err := a.gateway.StartSession(context.Background(), channelID, opts)
		if err != nil {
			a.logger.Warn("session start failed", "channel", channelID, "error", err)
			msg = fmt.Sprintf("Could not start session: %v", err)
		}
		if _, err := a.session.ChannelMessageSend(channelID, msg); err != nil {
			a.logger.Error("failed to send start confirmation", "error", err)
		}
	}()
}

func (a *DiscordAdapter) handleStop(i *discordgo.InteractionCreate) {
	msg, err := a.gateway.StopSession(i.ChannelID)
	if err != nil {
		msg = fmt.Sprintf("%v", err)
	}
	a.respond(i, msg)
}

func (a *DiscordAdapter) handleComponent(i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	if !action.Belongs(customID) {
		return
	}

	act, err := action.Decode(customID)
	if err != nil {
		a.logger.Warn("rejected malformed action token", "id", customID, "error", err)
		a.respond(i, "That button could not be understood.")
		return
	}

	if act.Verb == action.VerbPromote {
		if err := a.gateway.HandlePromote(i.ChannelID, act); err != nil {
			a.respond(i, fmt.Sprintf("%v", err))
			return
		}
		a.respond(i, "Rendering promoted image...")
		return
	}

	outcome, err := a.gateway.HandleRate(i.ChannelID, act)
	if err != nil {
		a.respond(i, fmt.Sprintf("%v", err))
		return
	}

	content := fmt.Sprintf("**Rating**: %s by %s", act.Verb.Label(), mention(i))
	if outcome.Prompt != "" {
		content = fmt.Sprintf("`%s` | %s", outcome.Prompt, content)
	}

	// Replace the rating buttons; keep a promote button when enabled.
	components := []discordgo.MessageComponent{}
	if outcome.PromoteID != "" {
		components = append(components, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					CustomID: outcome.PromoteID,
					Label:    outcome.PromoteTag,
					Style:    discordgo.PrimaryButton,
				},
			},
		})
	}

	err = a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
		},
	})
	if err != nil {
		a.logger.Error("failed to acknowledge rating", "error", err)
	}
}

// PostImage posts an image with labeled action buttons to a channel.
// Implements session.Poster.
func (a *DiscordAdapter) PostImage(channelID, content string, image []byte, filename string, controls []session.Control) error {
	msg := &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{
			{
				Name:        filename,
				ContentType: "image/png",
				Reader:      bytes.NewReader(image),
			},
		},
	}

	if len(controls) > 0 {
		buttons := make([]discordgo.MessageComponent, 0, len(controls))
		for _, c := range controls {
			buttons = append(buttons, discordgo.Button{
				CustomID: c.ID,
				Label:    c.Label,
				Style:    buttonStyle(c.Kind),
			})
		}
		msg.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: buttons},
		}
	}

	_, err := a.session.ChannelMessageSendComplex(channelID, msg)
	return errors.Wrap(err, "failed to post image")
}

func (a *DiscordAdapter) respond(i *discordgo.InteractionCreate, content string) {
	err := a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		a.logger.Error("failed to respond to interaction", "error", err)
	}
}

func (a *DiscordAdapter) allowed(i *discordgo.InteractionCreate) bool {
	if i.GuildID != "" && len(a.allowGuilds) > 0 && !a.allowGuilds[i.GuildID] {
		return false
	}
	if len(a.allowChans) > 0 && !a.allowChans[i.ChannelID] {
		return false
	}
	if user := interactionUser(i); user != nil && len(a.allowUsers) > 0 && !a.allowUsers[user.ID] {
		return false
	}
	return true
}

func buttonStyle(kind session.ControlKind) discordgo.ButtonStyle {
	switch kind {
	case session.ControlNegative:
		return discordgo.DangerButton
	case session.ControlPositive:
		return discordgo.SuccessButton
	case session.ControlPrimary:
		return discordgo.PrimaryButton
	default:
		return discordgo.SecondaryButton
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func mention(i *discordgo.InteractionCreate) string {
	if user := interactionUser(i); user != nil {
		return user.Mention()
	}
	return "someone"
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
