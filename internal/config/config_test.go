package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.StoragePath != "datastore.json" || cfg.SearchBackend != SearchYTDLP {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.ResolveTimeout != 20*time.Second || cfg.PlayRetries != 1 || !cfg.AutoAdvance || !cfg.LeaveOnEmpty {
		t.Errorf("playback defaults = %+v", cfg)
	}
	if cfg.SpotifyEnabled() {
		t.Error("spotify enabled without credentials")
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_GUILD_BLACKLIST", "1,2")
	t.Setenv("RESOLVE_TIMEOUT", "5s")
	t.Setenv("AUTO_ADVANCE", "false")
	t.Setenv("SEARCH_BACKEND", "scrape")
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Blacklisted("2") || cfg.Blacklisted("3") {
		t.Errorf("blacklist = %v", cfg.GuildBlacklist)
	}
	if cfg.ResolveTimeout != 5*time.Second || cfg.AutoAdvance || cfg.SearchBackend != SearchScrape {
		t.Errorf("overrides = %+v", cfg)
	}
	if !cfg.SpotifyEnabled() {
		t.Error("spotify disabled with credentials")
	}
}

func TestParseRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := Parse(); err == nil {
		t.Fatal("missing token accepted")
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{
		DiscordToken:    "token",
		SearchBackend:   "bing",
		ResolveTimeout:  time.Second,
		EnqueueTimeout:  time.Second,
		PlayRetries:     -1,
		QueuePageSize:   30,
		SpotifyClientID: "id",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"SEARCH_BACKEND", "PLAY_RETRIES", "SPOTIFY_CLIENT_ID"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestNewConsoleWithoutToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Chdir(t.TempDir())

	cfg, err := NewConsole()
	if err != nil {
		t.Fatalf("NewConsole: %v", err)
	}
	if cfg.QueuePageSize != 30 {
		t.Errorf("page size = %d", cfg.QueuePageSize)
	}
}
