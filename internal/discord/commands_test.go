package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/command/music"
)

func TestHashCommandsIgnoresOptionOrder(t *testing.T) {
	def := (&music.MusicCommand{}).SlashDefinition()
	before := hashCommands([]*discordgo.ApplicationCommand{def})

	reordered := *def
	reordered.Options = append([]*discordgo.ApplicationCommandOption(nil), def.Options...)
	reordered.Options[0], reordered.Options[1] = reordered.Options[1], reordered.Options[0]
	if got := hashCommands([]*discordgo.ApplicationCommand{&reordered}); got != before {
		t.Error("hash depends on option order")
	}

	changed := reordered
	changed.Description = "something else"
	if hashCommands([]*discordgo.ApplicationCommand{&changed}) == before {
		t.Error("hash ignores the description")
	}
}

func TestHashCache(t *testing.T) {
	c := hashCache{dir: t.TempDir()}
	if c.load("1") != "" {
		t.Fatal("empty cache returned a hash")
	}
	if err := c.save("1", "abc"); err != nil {
		t.Fatal(err)
	}
	if c.load("1") != "abc" || c.load("2") != "" {
		t.Error("cache mixed up guilds")
	}
	c.forget("1")
	if c.load("1") != "" {
		t.Error("forget kept the hash")
	}
}
