package command

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

type PingCommand struct{}

func (c *PingCommand) Name() string             { return "ping" }
func (c *PingCommand) Description() string      { return "Check bot latency" }
func (c *PingCommand) Group() string            { return "core" }
func (c *PingCommand) Category() string         { return "🛠️ Maintenance" }
func (c *PingCommand) UserPermissions() []int64 { return []int64{} }

func (c *PingCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
	}
}

func (c *PingCommand) Run(ctx any) error {
	slash, ok := ctx.(*SlashInteractionContext)
	if !ok {
		return fmt.Errorf("ping: unexpected context %T", ctx)
	}
	return RespondContent(slash.Session, slash.Event, pongMessage(slash.Session.HeartbeatLatency()))
}

func pongMessage(latency time.Duration) string {
	return fmt.Sprintf("Pong! %dms", latency.Milliseconds())
}
