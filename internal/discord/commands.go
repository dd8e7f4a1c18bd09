package discord

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/command"
)

// registerCommands pushes the slash definitions to a guild unless the cached
// hash says the guild already has them.
func (b *Bot) registerCommands(guildID string) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}

	defs := command.SlashDefinitions(b.commands)
	sum := hashCommands(defs)
	if b.cache.load(guildID) == sum {
		b.log.Debug().Str("guild", guildID).Msg("slash commands up to date")
		return nil
	}

	if _, err := b.dg.ApplicationCommandBulkOverwrite(appID, guildID, defs); err != nil {
		return fmt.Errorf("failed to register commands for guild %s: %w", guildID, err)
	}
	if err := b.cache.save(guildID, sum); err != nil {
		b.log.Warn().Err(err).Str("guild", guildID).Msg("failed to cache command hash")
	}
	b.log.Info().Str("guild", guildID).Int("commands", len(defs)).Msg("slash commands registered")
	return nil
}

// removeCommands deletes every guild command, e.g. before leaving a blacklisted guild.
func (b *Bot) removeCommands(guildID string) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}
	if _, err := b.dg.ApplicationCommandBulkOverwrite(appID, guildID, []*discordgo.ApplicationCommand{}); err != nil {
		return fmt.Errorf("failed to remove commands for guild %s: %w", guildID, err)
	}
	b.cache.forget(guildID)
	return nil
}

func (b *Bot) appID() (string, error) {
	if b.dg.State.User != nil && b.dg.State.User.ID != "" {
		return b.dg.State.User.ID, nil
	}
	user, err := b.dg.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return user.ID, nil
}

type commandOption struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        int             `json:"type"`
	Required    bool            `json:"required"`
	MinValue    *float64        `json:"min_value,omitempty"`
	Choices     []string        `json:"choices,omitempty"`
	Options     []commandOption `json:"options,omitempty"`
}

// hashCommands fingerprints the parts of the definitions Discord stores,
// independent of option order.
func hashCommands(defs []*discordgo.ApplicationCommand) string {
	normalized := make([]commandOption, 0, len(defs))
	for _, d := range defs {
		normalized = append(normalized, commandOption{
			Name:        d.Name,
			Description: d.Description,
			Type:        int(d.Type),
			Options:     normalizeOptions(d.Options),
		})
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Name < normalized[j].Name })

	data, _ := json.Marshal(normalized)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []commandOption {
	out := make([]commandOption, 0, len(opts))
	for _, o := range opts {
		n := commandOption{
			Name:        o.Name,
			Description: o.Description,
			Type:        int(o.Type),
			Required:    o.Required,
			MinValue:    o.MinValue,
			Options:     normalizeOptions(o.Options),
		}
		for _, c := range o.Choices {
			n.Choices = append(n.Choices, fmt.Sprintf("%s=%v", c.Name, c.Value))
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// hashCache remembers the last registered definitions per guild.
type hashCache struct {
	dir string
}

func (c hashCache) path(guildID string) string {
	return filepath.Join(c.dir, guildID+".sha256")
}

func (c hashCache) load(guildID string) string {
	data, err := os.ReadFile(c.path(guildID))
	if err != nil {
		return ""
	}
	return string(data)
}

func (c hashCache) save(guildID, sum string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path(guildID), []byte(sum), 0o644)
}

func (c hashCache) forget(guildID string) {
	_ = os.Remove(c.path(guildID))
}
