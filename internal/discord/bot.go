// internal/discord/bot.go
package discord

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Bot owns the Discord gateway session.
type Bot struct {
	Session *discordgo.Session
	logger  *slog.Logger
}

// NewBot creates a session for token. The connection is not opened until Open.
func NewBot(token string, logger *slog.Logger) (*Bot, error) {
	if token == "" {
		return nil, errors.New("no bot token provided")
	}

	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	b := &Bot{Session: dg, logger: logger}
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("Logged in to Discord", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	return b, nil
}

// Handle registers the router's message handler.
func (b *Bot) Handle(r *Router) {
	b.Session.AddHandler(r.MessageCreate)
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	if b.Session == nil {
		return nil
	}
	err := b.Session.Close()
	b.logger.Info("Discord session closed")
	return err
}
