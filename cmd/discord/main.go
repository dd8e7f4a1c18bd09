// cmd/discord/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/discord"
	"github.com/keshon/jukebox/internal/httpapi"
	"github.com/keshon/jukebox/internal/logger"
	"github.com/keshon/jukebox/internal/music/backend"
	"github.com/keshon/jukebox/internal/storage"
	v "github.com/keshon/jukebox/internal/version"
	"github.com/keshon/jukebox/pkg/jobmgr"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer closeLog.Close()

	log.Info().Str("version", v.String()).Msgf("starting %s bot", v.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()

	jobs := jobmgr.NewManager(func(status string) {
		log.Debug().Str("jobs", status).Msg("playback jobs changed")
	})
	be := backend.New(ctx, cfg, log)

	bot, err := discord.New(discord.Options{
		Config:   cfg,
		Storage:  store,
		Resolver: be.Resolver,
		Opener:   be.Opener,
		Jobs:     jobs,
		Log:      log,
	})
	if err != nil {
		return err
	}

	apiErr := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		api := httpapi.New(bot.Sessions(), store, log)
		go func() { apiErr <- api.Run(ctx, cfg.HTTPAddr) }()
	}
	botErr := make(chan error, 1)
	go func() { botErr <- bot.Run(ctx) }()

	select {
	case <-ctx.Done():
		log.Info().Msg("received signal, shutting down")
		err = <-botErr
	case err = <-botErr:
		stop()
	case err = <-apiErr:
		if err != nil {
			err = fmt.Errorf("status API: %w", err)
		}
		stop()
		if berr := <-botErr; err == nil {
			err = berr
		}
	}
	if err != nil {
		return err
	}
	log.Info().Msg("discord bot exited cleanly")
	return nil
}
