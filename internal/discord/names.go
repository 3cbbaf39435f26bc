package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/discursa/discursa/internal/session"
)

// NameResolver maps Discord user IDs to human display names for
// speaker attribution. It prefers the gateway state cache and falls
// back to REST lookups for members that left the cache.
type NameResolver struct {
	session *discordgo.Session
}

var _ session.NameResolver = (*NameResolver)(nil)

// NewNameResolver creates a resolver backed by the given session.
func NewNameResolver(s *discordgo.Session) *NameResolver {
	return &NameResolver{session: s}
}

// DisplayName resolves userID to the name shown in guildID. Server
// nicknames win over global display names, which win over usernames.
func (r *NameResolver) DisplayName(ctx context.Context, guildID, userID string) (string, error) {
	if member, err := r.session.State.Member(guildID, userID); err == nil && member != nil {
		if name := memberName(member); name != "" {
			return name, nil
		}
	}

	if member, err := r.session.GuildMember(guildID, userID, discordgo.WithContext(ctx)); err == nil {
		if name := memberName(member); name != "" {
			return name, nil
		}
	}

	user, err := r.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("look up user %s: %w", userID, err)
	}
	return userName(user), nil
}

// memberName returns the preferred display name for a guild member, or
// empty when the member carries no user record.
func memberName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	return userName(m.User)
}

func userName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
