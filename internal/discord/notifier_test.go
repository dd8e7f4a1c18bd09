package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/music/queue"
)

func TestTrackLink(t *testing.T) {
	e := queue.NewEntry("https://youtu.be/a", "Song", queue.SourcePrimary)
	if got := trackLink(e); got != "[Song](https://youtu.be/a)" {
		t.Errorf("trackLink = %q", got)
	}

	agg := queue.NewEntry("", "Song", queue.SourceAggregator)
	agg.Artists = []string{"Band"}
	if got := trackLink(agg); got != "Band - Song" {
		t.Errorf("unresolved trackLink = %q", got)
	}
}

func TestRequester(t *testing.T) {
	state := discordgo.NewState()
	state.GuildAdd(&discordgo.Guild{
		ID: testGuild,
		Members: []*discordgo.Member{
			{GuildID: testGuild, Nick: "DJ", User: &discordgo.User{ID: "1", Username: "one"}},
			{GuildID: testGuild, User: &discordgo.User{ID: "2", Username: "two"}},
		},
	})
	dg := &discordgo.Session{State: state}

	for id, want := range map[string]string{"1": "DJ", "2": "two", "3": "<@3>"} {
		if got := requester(dg, testGuild, id); got != want {
			t.Errorf("requester(%s) = %q, want %q", id, got, want)
		}
	}
}
