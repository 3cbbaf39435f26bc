// Package discord adapts Discord voice connections to the audio capture
// contracts using discordgo.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/discursa/discursa/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Transport = (*Transport)(nil)

// Transport joins Discord voice channels over an established gateway session
// and yields capture handles for them.
type Transport struct {
	session *discordgo.Session
}

// New creates a Transport on top of the given Discord session. The session
// must already be connected to the gateway with the voice states intent.
func New(session *discordgo.Session) *Transport {
	return &Transport{session: session}
}

// Connect joins the given voice channel without muting or deafening the bot
// and returns a capture handle for it. The caller owns the handle and must
// eventually call Disconnect.
func (t *Transport) Connect(ctx context.Context, guildID, channelID string) (audio.CaptureHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := t.session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %s in guild %s: %w", channelID, guildID, err)
	}

	return newHandle(vc, guildID, channelID), nil
}
