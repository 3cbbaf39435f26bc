// Package discord provides the Discord bot layer for Discursa. It owns
// the discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, and publishes analysis reports back to channels.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/discursa/discursa/pkg/audio"
	discordaudio "github.com/discursa/discursa/pkg/audio/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string `yaml:"token"`
	// GuildID scopes slash command registration to a single guild when
	// set. Empty registers the commands globally, which Discord rolls
	// out with a propagation delay of up to an hour.
	GuildID string `yaml:"guild_id"`
}

// Bot wires a discordgo session to the command router and the voice
// capture transport.
type Bot struct {
	session   *discordgo.Session
	transport *discordaudio.Transport
	router    *CommandRouter
	guildID   string

	mu       sync.Mutex
	commands []*discordgo.ApplicationCommand

	closeOnce sync.Once
}

// New creates a Bot, opens the gateway connection and installs the
// interaction handler. Commands are registered later via Run so that
// callers can attach command groups to the router first.
func New(ctx context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open discord gateway: %w", err)
	}

	b := &Bot{
		session:   session,
		transport: discordaudio.New(session),
		router:    NewCommandRouter(),
		guildID:   cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	slog.Info("discord gateway connected", "user", session.State.User.Username)
	return b, nil
}

// Session exposes the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Transport returns the voice capture transport bound to this session.
func (b *Bot) Transport() audio.Transport {
	return b.transport
}

// Router returns the command router so that command groups can register
// themselves before Run is called.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// GuildID returns the configured command registration scope. Empty
// means global.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Run registers all routed slash commands and then blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	appID := b.session.State.User.ID

	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, b.router.ApplicationCommands())
	if err != nil {
		return fmt.Errorf("register application commands: %w", err)
	}

	b.mu.Lock()
	b.commands = registered
	b.mu.Unlock()

	scope := "global"
	if b.guildID != "" {
		scope = "guild " + b.guildID
	}
	slog.Info("slash commands registered", "count", len(registered), "scope", scope)

	<-ctx.Done()
	return ctx.Err()
}

// Close deregisters the slash commands and shuts down the gateway
// connection. Safe to call more than once.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		appID := b.session.State.User.ID

		b.mu.Lock()
		commands := b.commands
		b.commands = nil
		b.mu.Unlock()

		for _, cmd := range commands {
			if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
				slog.Warn("failed to delete application command", "command", cmd.Name, "error", err)
			}
		}

		closeErr = b.session.Close()
	})
	return closeErr
}
