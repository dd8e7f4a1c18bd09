package middleware

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/internal/storage"
	"github.com/keshon/jukebox/pkg/cmd"
)

// WithCommandLogger records every slash command in the guild's history once
// it has run.
func WithCommandLogger() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			err := c.Run(ctx, inv)

			v, ok := inv.Data.(*command.SlashInteractionContext)
			if !ok || v.Storage == nil || v.Event.GuildID == "" {
				return err
			}
			rec := historyRecord(v.Session, v.Event, c.Name())
			if e := v.Storage.AppendCommandToHistory(v.Event.GuildID, rec); e != nil {
				v.Log.Warn().Err(e).Str("command", c.Name()).Msg("failed to log command")
			}
			return err
		})
	}
}

func historyRecord(s *discordgo.Session, e *discordgo.InteractionCreate, name string) storage.CommandHistoryRecord {
	user := command.InvokingUser(e)
	rec := storage.CommandHistoryRecord{
		ChannelID: e.ChannelID,
		UserID:    user.ID,
		Username:  user.Username,
		Command:   name,
		Datetime:  time.Now(),
	}

	// names come from the gateway cache only; a miss is not worth a REST call
	if s != nil && s.State != nil {
		if ch, err := s.State.Channel(e.ChannelID); err == nil {
			rec.ChannelName = ch.Name
		}
		if g, err := s.State.Guild(e.GuildID); err == nil {
			rec.GuildName = g.Name
		}
	}

	if e.Type == discordgo.InteractionApplicationCommand {
		data := e.ApplicationCommandData()
		rec.Param = flattenOptions(data.Options)
	}
	return rec
}

// flattenOptions renders "play url=https://..." style parameters.
func flattenOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	var parts []string
	for _, o := range opts {
		switch o.Type {
		case discordgo.ApplicationCommandOptionSubCommand, discordgo.ApplicationCommandOptionSubCommandGroup:
			parts = append(parts, o.Name)
			if rest := flattenOptions(o.Options); rest != "" {
				parts = append(parts, rest)
			}
		default:
			parts = append(parts, o.Name+"="+optionValue(o))
		}
	}
	return strings.Join(parts, " ")
}

func optionValue(o *discordgo.ApplicationCommandInteractionDataOption) string {
	switch v := o.Value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
