package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discursa/discursa/internal/discord"
	"github.com/discursa/discursa/internal/settings"
)

// SettingsCommands holds the dependencies for the /settings command
// group. The command is gated to members with Manage Server via its
// default member permissions.
type SettingsCommands struct {
	store settings.Store
}

// NewSettingsCommands creates a SettingsCommands and registers its
// handlers with the bot's router.
func NewSettingsCommands(bot *discord.Bot, store settings.Store) *SettingsCommands {
	sc := &SettingsCommands{store: store}
	sc.Register(bot.Router())
	return sc
}

// Register registers the /settings command group with the router.
func (sc *SettingsCommands) Register(router *discord.CommandRouter) {
	def := sc.Definition()
	router.RegisterCommand("settings", def, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/settings set_key`, `/settings set_mode` or `/settings set_interval`.")
	})
	router.RegisterHandler("settings/set_key", sc.handleSetKey)
	router.RegisterHandler("settings/set_mode", sc.handleSetMode)
	router.RegisterHandler("settings/set_interval", sc.handleSetInterval)
}

// Definition returns the ApplicationCommand definition for Discord.
func (sc *SettingsCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:                     "settings",
		Description:              "Configure discussion analysis for this server",
		DefaultMemberPermissions: new(int64(discordgo.PermissionManageGuild)),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set_key",
				Description: "Set the analysis API key for this server",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "key",
						Description: "API key for the analysis provider",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set_mode",
				Description: "Choose how discussions are analyzed",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "mode",
						Description: "Analysis mode",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "Debate analysis", Value: string(settings.ModeDebate)},
							{Name: "Summary", Value: string(settings.ModeSummary)},
						},
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set_interval",
				Description: "Set the pause between scheduled analyses",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "seconds",
						Description: "Seconds between analyses (60 to 3600)",
						Required:    true,
						MinValue:    new(float64(60)),
						MaxValue:    3600,
					},
				},
			},
		},
	}
}

// handleSetKey handles /settings set_key. The key is never echoed back.
func (sc *SettingsCommands) handleSetKey(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	var key string
	for _, opt := range subcommandOptions(i) {
		if opt.Name == "key" {
			key = opt.StringValue()
		}
	}
	if key == "" {
		discord.RespondEphemeral(s, i, "The key must not be empty.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sc.store.SetCredential(ctx, i.GuildID, key); err != nil {
		discord.RespondError(s, i, err)
		return
	}

	discord.RespondEphemeral(s, i, "API key updated for this server.")
}

// handleSetMode handles /settings set_mode.
func (sc *SettingsCommands) handleSetMode(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	var mode settings.Mode
	for _, opt := range subcommandOptions(i) {
		if opt.Name == "mode" {
			mode = settings.Mode(opt.StringValue())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sc.store.SetMode(ctx, i.GuildID, mode); err != nil {
		if errors.Is(err, settings.ErrInvalidMode) {
			discord.RespondEphemeral(s, i, fmt.Sprintf("Unknown mode %q. Use `debate` or `summary`.", mode))
			return
		}
		discord.RespondError(s, i, err)
		return
	}

	discord.RespondEphemeral(s, i, fmt.Sprintf("Analysis mode set to **%s**.", mode))
}

// handleSetInterval handles /settings set_interval. Discord enforces the
// option bounds client-side; the store check backs that up.
func (sc *SettingsCommands) handleSetInterval(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	var seconds int64
	for _, opt := range subcommandOptions(i) {
		if opt.Name == "seconds" {
			seconds = opt.IntValue()
		}
	}
	interval := time.Duration(seconds) * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sc.store.SetInterval(ctx, i.GuildID, interval); err != nil {
		if errors.Is(err, settings.ErrIntervalOutOfRange) {
			discord.RespondEphemeral(s, i, fmt.Sprintf(
				"The interval must be between %d and %d seconds.",
				int(settings.MinInterval.Seconds()), int(settings.MaxInterval.Seconds()),
			))
			return
		}
		discord.RespondError(s, i, err)
		return
	}

	discord.RespondEphemeral(s, i, fmt.Sprintf(
		"Scheduled analysis interval set to %d seconds (%s). Takes effect after the next analysis.",
		seconds, interval,
	))
}

// subcommandOptions extracts the options of the first subcommand in an
// interaction's application command data. Returns nil if no subcommand
// exists.
func subcommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	data := i.ApplicationCommandData()
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Options[0].Options
	}
	return nil
}
