package music

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/internal/music/dispatcher"
)

var errMissingSubcommand = errors.New("missing subcommand")

// Dispatcher runs the parsed music commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, req dispatcher.Request) dispatcher.Reply
}

type MusicCommand struct {
	Dispatcher Dispatcher
	// Timeout bounds one command, including the wait for playback to start.
	Timeout time.Duration
}

func (c *MusicCommand) Name() string             { return "music" }
func (c *MusicCommand) Description() string      { return "Control music playback" }
func (c *MusicCommand) Group() string            { return "music" }
func (c *MusicCommand) Category() string         { return "🎵 Music" }
func (c *MusicCommand) UserPermissions() []int64 { return []int64{} }

func (c *MusicCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minPosition := 1.0
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        dispatcher.CmdPlay,
				Description: "Queue a YouTube or Spotify link",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "url",
						Description: "Video, playlist, track, album or playlist link",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        dispatcher.CmdSkip,
				Description: "Skip the current song, or jump to a position in the queue",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "number",
						Description: "Queue position to jump to",
						MinValue:    &minPosition,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        dispatcher.CmdStop,
				Description: "Stop playback, clear the queue and leave",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        dispatcher.CmdList,
				Description: "Show the queue",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "page",
						Description: "Page number",
						MinValue:    &minPosition,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        dispatcher.CmdCurrent,
				Description: "Show the song that is playing",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        dispatcher.CmdShuffle,
				Description: "Shuffle everything after the current song",
			},
		},
	}
}

func (c *MusicCommand) Run(ctx any) error {
	context, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}

	s := context.Session
	e := context.Event

	name, req, err := parseRequest(e)
	if err != nil {
		return command.RespondEphemeral(s, e, err.Error())
	}

	// play and skip may wait on a stream lookup, longer than an undeferred
	// interaction may stay unanswered
	deferred := name == dispatcher.CmdPlay || name == dispatcher.CmdSkip
	if deferred {
		if err := command.RespondDeferred(s, e); err != nil {
			return fmt.Errorf("failed to send deferred response: %w", err)
		}
	}

	reply := c.dispatch(name, req)
	if reply.Err != nil {
		context.Log.Debug().Err(reply.Err).Str("guild", e.GuildID).Str("command", name).Msg("music command rejected")
	}

	switch {
	case reply.Ephemeral && deferred:
		return command.ReplaceDeferredEphemeral(s, e, reply.Content)
	case reply.Ephemeral:
		return command.RespondEphemeral(s, e, reply.Content)
	case deferred:
		return command.EditResponseEmbed(s, e, replyEmbed(name, reply.Content))
	default:
		return command.RespondEmbed(s, e, replyEmbed(name, reply.Content))
	}
}

func (c *MusicCommand) dispatch(name string, req dispatcher.Request) dispatcher.Reply {
	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return c.Dispatcher.Dispatch(ctx, name, req)
}

// parseRequest reads the subcommand and its typed options.
func parseRequest(e *discordgo.InteractionCreate) (string, dispatcher.Request, error) {
	data := e.ApplicationCommandData()
	if len(data.Options) == 0 {
		return "", dispatcher.Request{}, errMissingSubcommand
	}
	sub := data.Options[0]

	req := dispatcher.Request{
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		UserID:    command.InvokingUser(e).ID,
	}
	for _, opt := range sub.Options {
		switch opt.Name {
		case "url":
			req.URL = opt.StringValue()
		case "number":
			req.Number = int(opt.IntValue())
		case "page":
			req.Page = int(opt.IntValue())
		}
	}
	return sub.Name, req, nil
}

func replyEmbed(name, content string) *discordgo.MessageEmbed {
	titles := map[string]string{
		dispatcher.CmdPlay:    "🎵 Queue",
		dispatcher.CmdSkip:    "⏭️ Skip",
		dispatcher.CmdStop:    "⏹️ Stop",
		dispatcher.CmdList:    "📜 Queue",
		dispatcher.CmdCurrent: "🎶 Now Playing",
		dispatcher.CmdShuffle: "🔀 Shuffle",
	}
	return &discordgo.MessageEmbed{
		Title:       titles[name],
		Description: content,
		Color:       command.EmbedColor,
	}
}
