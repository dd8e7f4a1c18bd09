// Package config loads settings from the environment, reading a .env file
// first when one exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	SearchYTDLP  = "ytdlp"
	SearchScrape = "scrape"
)

type Config struct {
	DiscordToken      string   `env:"DISCORD_TOKEN"`
	StoragePath       string   `env:"STORAGE_PATH" envDefault:"datastore.json"`
	InitSlashCommands bool     `env:"INIT_SLASH_COMMANDS" envDefault:"true"`
	GuildBlacklist    []string `env:"DISCORD_GUILD_BLACKLIST"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	SpotifyMarket       string `env:"SPOTIFY_MARKET"`

	YouTubeProxy  string `env:"YOUTUBE_PROXY"`
	SearchBackend string `env:"SEARCH_BACKEND" envDefault:"ytdlp"`

	ResolveTimeout time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"20s"`
	EnqueueTimeout time.Duration `env:"ENQUEUE_TIMEOUT" envDefault:"30s"`
	AutoAdvance    bool          `env:"AUTO_ADVANCE" envDefault:"true"`
	LeaveOnEmpty   bool          `env:"LEAVE_ON_EMPTY" envDefault:"true"`
	PlayRetries    int           `env:"PLAY_RETRIES" envDefault:"1"`
	QueuePageSize  int           `env:"QUEUE_PAGE_SIZE" envDefault:"30"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`
}

// New reads .env (if present) and the process environment.
func New() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	return Parse()
}

// NewConsole is New for the console front end, which runs without a bot token.
func NewConsole() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}
	return nil
}

func parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error { return c.validate(true) }

func (c *Config) validate(requireToken bool) error {
	var errs []error
	if requireToken && c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is not set"))
	}
	if c.SearchBackend != SearchYTDLP && c.SearchBackend != SearchScrape {
		errs = append(errs, fmt.Errorf("SEARCH_BACKEND must be %q or %q, got %q", SearchYTDLP, SearchScrape, c.SearchBackend))
	}
	if c.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("RESOLVE_TIMEOUT must be positive"))
	}
	if c.EnqueueTimeout <= 0 {
		errs = append(errs, errors.New("ENQUEUE_TIMEOUT must be positive"))
	}
	if c.PlayRetries < 0 {
		errs = append(errs, errors.New("PLAY_RETRIES must not be negative"))
	}
	if c.QueuePageSize < 1 || c.QueuePageSize > 100 {
		errs = append(errs, errors.New("QUEUE_PAGE_SIZE must be between 1 and 100"))
	}
	if (c.SpotifyClientID == "") != (c.SpotifyClientSecret == "") {
		errs = append(errs, errors.New("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set together"))
	}
	return errors.Join(errs...)
}

// SpotifyEnabled reports whether Spotify links can be resolved.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

// Blacklisted reports whether the bot should ignore a guild.
func (c *Config) Blacklisted(guildID string) bool {
	return slices.Contains(c.GuildBlacklist, guildID)
}
