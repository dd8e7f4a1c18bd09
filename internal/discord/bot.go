// Package discord runs the gateway session: slash command routing, voice
// connections and playback notifications.
package discord

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/internal/command/music"
	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/middleware"
	"github.com/keshon/jukebox/internal/music/dispatcher"
	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/internal/storage"
	"github.com/keshon/jukebox/pkg/cmd"
	"github.com/keshon/jukebox/pkg/jobmgr"
)

type Options struct {
	Config   *config.Config
	Storage  *storage.Storage
	Resolver interface {
		dispatcher.TrackResolver
		session.Resolver
	}
	Opener session.StreamOpener
	Jobs   *jobmgr.Manager
	Log    zerolog.Logger
}

// Bot is a Discord bot
type Bot struct {
	dg         *discordgo.Session
	cfg        *config.Config
	storage    *storage.Storage
	commands   *cmd.Registry
	sessions   *session.Registry
	dispatcher *dispatcher.Dispatcher
	voice      *voiceTransport
	cache      hashCache
	log        zerolog.Logger
}

// New wires the bot without connecting to the gateway.
func New(opts Options) (*Bot, error) {
	dg, err := discordgo.New("Bot " + opts.Config.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	log := opts.Log.With().Str("component", "discord").Logger()
	b := &Bot{
		dg:       dg,
		cfg:      opts.Config,
		storage:  opts.Storage,
		commands: cmd.NewRegistry(),
		voice:    newVoiceTransport(dg, opts.Log),
		cache:    hashCache{dir: filepath.Join(filepath.Dir(opts.Config.StoragePath), "commands")},
		log:      log,
	}

	b.sessions = session.NewRegistry(session.Config{
		ResolveTimeout: opts.Config.ResolveTimeout,
		AutoAdvance:    opts.Config.AutoAdvance,
		LeaveOnEmpty:   opts.Config.LeaveOnEmpty,
		PlayRetries:    opts.Config.PlayRetries,
		PageSize:       opts.Config.QueuePageSize,
	}, session.Deps{
		Transport: b.voice,
		NewPlayer: func(onEnd func(player.EndEvent)) session.AudioPlayer {
			return player.New(newOpusEncoder, onEnd, opts.Log)
		},
		Resolver: opts.Resolver,
		Opener:   opts.Opener,
		Notifier: &notifier{dg: dg, storage: opts.Storage, log: log},
		Jobs:     opts.Jobs,
		Log:      opts.Log,
	})

	dcfg := dispatcher.DefaultConfig()
	dcfg.EnqueueTimeout = opts.Config.EnqueueTimeout
	b.dispatcher = dispatcher.New(b.sessions, opts.Resolver, voiceLocator{dg: dg}, dcfg, opts.Log)

	command.RegisterCommand(b.commands, &command.PingCommand{},
		middleware.WithGuildOnly(),
		middleware.WithCommandLogger(),
	)
	command.RegisterCommand(b.commands,
		&music.MusicCommand{Dispatcher: b.dispatcher, Timeout: opts.Config.EnqueueTimeout + 2*opts.Config.ResolveTimeout},
		middleware.WithGuildOnly(),
		middleware.WithCommandLogger(),
	)
	return b, nil
}

// Sessions exposes the live guild sessions to the status API.
func (b *Bot) Sessions() *session.Registry { return b.sessions }

// Run connects and serves until ctx is done, then leaves every voice channel.
func (b *Bot) Run(ctx context.Context) error {
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onInteractionCreate)
	b.dg.AddHandler(b.voice.onVoiceStateUpdate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, leaving voice channels")
	b.sessions.Shutdown()
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")
}

// onGuildCreate fires for every guild on startup and when the bot is added.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	log := b.log.With().Str("guild", g.ID).Str("name", g.Name).Logger()

	if b.cfg.Blacklisted(g.ID) {
		log.Info().Msg("leaving blacklisted guild")
		if err := b.removeCommands(g.ID); err != nil {
			log.Warn().Err(err).Msg("failed to remove commands")
		}
		if err := s.GuildLeave(g.ID); err != nil {
			log.Error().Err(err).Msg("failed to leave guild")
		}
		return
	}

	if !b.cfg.InitSlashCommands {
		log.Debug().Msg("registering slash commands skipped")
		return
	}
	if err := b.registerCommands(g.ID); err != nil {
		log.Error().Err(err).Msg("failed to register slash commands")
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.CommandType != discordgo.ChatApplicationCommand || b.cfg.Blacklisted(i.GuildID) {
		return
	}

	c := b.commands.Get(data.Name)
	if c == nil {
		b.log.Warn().Str("command", data.Name).Msg("unknown command")
		return
	}

	ctx := &command.SlashInteractionContext{
		Session: s,
		Event:   i,
		Storage: b.storage,
		Log:     b.log,
	}
	// handlers run on their own goroutine per event
	if err := c.Run(context.Background(), &cmd.Invocation{Data: ctx}); err != nil {
		b.log.Error().Err(err).Str("command", data.Name).Str("guild", i.GuildID).Msg("error running slash command")
		msg := "Something went wrong, please try again."
		if errors.Is(err, command.ErrGuildOnly) {
			msg = "This command only works in a server."
		}
		if rerr := command.RespondEphemeral(s, i, msg); rerr != nil {
			b.log.Debug().Err(rerr).Msg("could not report the error")
		}
	}
}
