// cmd/cli/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/console"
	"github.com/keshon/jukebox/internal/logger"
	"github.com/keshon/jukebox/internal/music/backend"
	"github.com/keshon/jukebox/internal/music/dispatcher"
	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/music/session"
	v "github.com/keshon/jukebox/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewConsole()
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "jukebox> ",
		AutoComplete:    console.Completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to start readline: %w", err)
	}
	defer rl.Close()

	log, closeLog, err := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Console:    rl.Stderr(),
	})
	if err != nil {
		return err
	}
	defer closeLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	be := backend.New(ctx, cfg, log)
	transport := console.NewTransport()
	sessions := session.NewRegistry(session.Config{
		ResolveTimeout: cfg.ResolveTimeout,
		AutoAdvance:    cfg.AutoAdvance,
		LeaveOnEmpty:   cfg.LeaveOnEmpty,
		PlayRetries:    cfg.PlayRetries,
		PageSize:       cfg.QueuePageSize,
	}, session.Deps{
		Transport: transport,
		NewPlayer: func(onEnd func(player.EndEvent)) session.AudioPlayer {
			return player.New(console.NewEncoder, onEnd, log)
		},
		Resolver: be.Resolver,
		Opener:   be.Opener,
		Notifier: &console.Notifier{Out: rl.Stdout()},
		Log:      log,
	})
	defer sessions.Shutdown()

	dcfg := dispatcher.DefaultConfig()
	dcfg.EnqueueTimeout = cfg.EnqueueTimeout
	d := dispatcher.New(sessions, be.Resolver, console.Locator{}, dcfg, log)

	fmt.Fprintf(rl.Stdout(), "%s console, type help for commands\n", v.String())
	return console.NewShell(d, sessions, transport).Run(ctx, rl)
}
