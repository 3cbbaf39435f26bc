// Package commands implements Discord slash command handlers for Discursa.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discursa/discursa/internal/discord"
	"github.com/discursa/discursa/internal/session"
	"github.com/discursa/discursa/pkg/audio"
)

// AnalyzeCommands holds the dependencies for the /analyze command group.
type AnalyzeCommands struct {
	registry  *session.Registry
	transport audio.Transport
	bot       *discord.Bot

	// appCtx bounds the background work of sessions started from
	// commands. Interaction handlers get short deadlines of their own.
	appCtx context.Context

	mu         sync.Mutex
	countdowns map[string]*discord.Countdown
}

// NewAnalyzeCommands creates an AnalyzeCommands and registers its
// handlers with the bot's router. appCtx bounds the background work of
// sessions started from commands and should outlive any interaction.
func NewAnalyzeCommands(appCtx context.Context, bot *discord.Bot, registry *session.Registry) *AnalyzeCommands {
	ac := &AnalyzeCommands{
		registry:   registry,
		transport:  bot.Transport(),
		bot:        bot,
		appCtx:     appCtx,
		countdowns: make(map[string]*discord.Countdown),
	}
	ac.Register(bot.Router())
	return ac
}

// Register registers the /analyze command group with the router.
func (ac *AnalyzeCommands) Register(router *discord.CommandRouter) {
	def := ac.Definition()
	router.RegisterCommand("analyze", def, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/analyze start`, `/analyze stop` or `/analyze now`.")
	})
	router.RegisterHandler("analyze/start", ac.handleStart)
	router.RegisterHandler("analyze/stop", ac.handleStop)
	router.RegisterHandler("analyze/now", ac.handleNow)
}

// Definition returns the ApplicationCommand definition for Discord.
func (ac *AnalyzeCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "analyze",
		Description: "Record and analyze voice discussions",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Start recording your current voice channel for periodic analysis",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop recording and post a final analysis",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "now",
				Description: "Run an analysis of the audio captured so far",
			},
		},
	}
}

// handleStart handles /analyze start.
func (ac *AnalyzeCommands) handleStart(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	userID := interactionUserID(i)
	vs, err := s.State.VoiceState(i.GuildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		discord.RespondEphemeral(s, i, "You must be in a voice channel to start an analysis session.")
		return
	}

	if sess, ok := ac.registry.Get(i.GuildID); ok && sess.State() == session.StateCapturing {
		discord.RespondEphemeral(s, i, "A recording is already running in this server. Use `/analyze stop` first.")
		return
	}

	// Joining voice and spinning up capture can take a moment.
	discord.DeferReply(s, i)

	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	handle, err := ac.transport.Connect(connectCtx, i.GuildID, vs.ChannelID)
	if err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to join the voice channel: %v", err))
		return
	}

	publisher := discord.NewChannelPublisher(s, i.ChannelID)
	sess := ac.registry.GetOrCreate(i.GuildID)

	if err := sess.Start(ac.appCtx, handle, publisher); err != nil {
		if errors.Is(err, session.ErrAlreadyCapturing) {
			if derr := handle.Disconnect(); derr != nil {
				slog.Warn("failed to disconnect duplicate capture handle", "guild_id", i.GuildID, "error", derr)
			}
			discord.FollowUp(s, i, "A recording is already running in this server. Use `/analyze stop` first.")
			return
		}
		discord.FollowUp(s, i, fmt.Sprintf("Failed to start recording: %v", err))
		return
	}

	ac.setCountdown(i.GuildID, discord.StartCountdown(s, i.ChannelID, sess.NextAt))

	discord.FollowUp(s, i, fmt.Sprintf(
		"Recording <#%s>. Analyses will be posted in this channel.\n"+
			"Please make sure everyone in the voice channel knows they are being recorded.",
		vs.ChannelID,
	))
}

// handleStop handles /analyze stop.
func (ac *AnalyzeCommands) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	sess, ok := ac.registry.Get(i.GuildID)
	if !ok || sess.State() != session.StateCapturing {
		discord.RespondEphemeral(s, i, "No recording is running in this server.")
		return
	}

	// The final analysis cycle runs before teardown and may take a while.
	discord.DeferReply(s, i)

	ac.takeCountdown(i.GuildID).Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := ac.registry.Remove(ctx, i.GuildID, false); err != nil {
		if errors.Is(err, session.ErrNotCapturing) {
			discord.FollowUp(s, i, "No recording is running in this server.")
			return
		}
		discord.FollowUp(s, i, fmt.Sprintf("Failed to stop recording: %v", err))
		return
	}

	discord.FollowUp(s, i, "Recording stopped. The final analysis has been posted.")
}

// handleNow handles /analyze now.
func (ac *AnalyzeCommands) handleNow(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		discord.RespondEphemeral(s, i, "This command only works in a server.")
		return
	}

	sess, ok := ac.registry.Get(i.GuildID)
	if !ok || sess.State() != session.StateCapturing {
		discord.RespondEphemeral(s, i, "No recording is running in this server.")
		return
	}

	// Conversion, analysis and publishing all run before this returns.
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := ac.registry.ForceAnalysis(ctx, i.GuildID); err != nil {
		if errors.Is(err, session.ErrNotCapturing) {
			discord.FollowUp(s, i, "No recording is running in this server.")
			return
		}
		discord.FollowUp(s, i, fmt.Sprintf("Analysis failed: %v", err))
		return
	}

	discord.FollowUp(s, i, "Analysis complete. Check the session channel for the report.")
}

// setCountdown replaces the tracked countdown for a guild, stopping any
// stale one left from a previous capture.
func (ac *AnalyzeCommands) setCountdown(guildID string, cd *discord.Countdown) {
	ac.mu.Lock()
	old := ac.countdowns[guildID]
	ac.countdowns[guildID] = cd
	ac.mu.Unlock()
	old.Stop()
}

// takeCountdown removes and returns the tracked countdown for a guild.
// The result may be nil; Countdown.Stop tolerates that.
func (ac *AnalyzeCommands) takeCountdown(guildID string) *discord.Countdown {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	cd := ac.countdowns[guildID]
	delete(ac.countdowns, guildID)
	return cd
}

// interactionUserID extracts the user ID from an interaction, handling
// both guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
