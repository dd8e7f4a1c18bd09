package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/internal/music"
	"github.com/keshon/jukebox/internal/music/queue"
	"github.com/keshon/jukebox/internal/storage"
)

// notifier posts playback progress to the text channel that queued it and
// keeps the played-track history.
type notifier struct {
	dg      *discordgo.Session
	storage *storage.Storage
	log     zerolog.Logger
}

func (n *notifier) NowPlaying(guildID, textChannelID string, e queue.Entry) {
	if n.storage != nil {
		err := n.storage.AppendTrackToHistory(guildID, storage.TrackHistoryRecord{
			Title:       e.DisplayTitle(),
			URL:         e.URL,
			Source:      e.Kind.String(),
			RequestedBy: e.RequestedBy,
			PlayedAt:    time.Now(),
		})
		if err != nil {
			n.log.Warn().Err(err).Str("guild", guildID).Msg("failed to record track history")
		}
	}
	if textChannelID == "" {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎶 Now Playing",
		Description: trackLink(e),
		Color:       command.EmbedColor,
	}
	if e.RequestedBy != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Requested by " + requester(n.dg, guildID, e.RequestedBy)}
	}
	n.send(guildID, textChannelID, embed)
}

func (n *notifier) PlaybackFailed(guildID, textChannelID string, e queue.Entry, err error) {
	n.log.Warn().Err(err).Str("guild", guildID).Str("entry", e.DisplayTitle()).Msg("entry skipped")
	if textChannelID == "" {
		return
	}
	n.send(guildID, textChannelID, &discordgo.MessageEmbed{
		Title:       "⚠️ Skipped",
		Description: music.Truncate(fmt.Sprintf("%s\n%s", trackLink(e), music.UserMessage(err)), music.MaxMessageLength),
		Color:       command.EmbedColor,
	})
}

func (n *notifier) Closed(guildID, reason string) {
	n.log.Info().Str("guild", guildID).Str("reason", reason).Msg("left voice")
}

func (n *notifier) send(guildID, channelID string, embed *discordgo.MessageEmbed) {
	if err := command.MessageEmbed(n.dg, channelID, embed); err != nil {
		n.log.Warn().Err(err).Str("guild", guildID).Str("channel", channelID).Msg("failed to post playback update")
	}
}

func trackLink(e queue.Entry) string {
	if e.URL != "" && e.Title != "" {
		return fmt.Sprintf("[%s](%s)", e.DisplayTitle(), e.URL)
	}
	return e.DisplayTitle()
}

func requester(dg *discordgo.Session, guildID, userID string) string {
	if m, err := dg.State.Member(guildID, userID); err == nil && m.User != nil {
		if m.Nick != "" {
			return m.Nick
		}
		return m.User.Username
	}
	return "<@" + userID + ">"
}
