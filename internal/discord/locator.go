package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const voicePermissions = discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak

// voiceLocator answers the dispatcher's voice questions from the gateway cache.
type voiceLocator struct {
	dg *discordgo.Session
}

func (l voiceLocator) UserVoiceChannel(guildID, userID string) (string, error) {
	guild, err := l.dg.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("error retrieving guild: %w", err)
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}
	return "", nil
}

func (l voiceLocator) CanJoin(guildID, channelID string) (bool, error) {
	botID := l.dg.State.User.ID
	perms, err := l.dg.State.UserChannelPermissions(botID, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to get bot permissions: %w", err)
	}
	if perms&voicePermissions != voicePermissions && perms&discordgo.PermissionAdministrator == 0 {
		return false, nil
	}

	channel, err := l.dg.State.Channel(channelID)
	if err != nil {
		return false, fmt.Errorf("error retrieving channel: %w", err)
	}
	if channel.UserLimit == 0 || perms&discordgo.PermissionVoiceMoveMembers != 0 {
		return true, nil
	}

	guild, err := l.dg.State.Guild(guildID)
	if err != nil {
		return false, fmt.Errorf("error retrieving guild: %w", err)
	}
	occupants := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		if vs.UserID == botID {
			return true, nil
		}
		occupants++
	}
	return occupants < channel.UserLimit, nil
}
