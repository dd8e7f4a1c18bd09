// Package docs renders the command reference of README.md from the
// registered slash commands.
package docs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/pkg/cmd"
)

// CommandSections lists the commands grouped by category, subcommands with
// their options included.
func CommandSections(registry *cmd.Registry) string {
	commands := registry.GetAll()
	sort.SliceStable(commands, func(i, j int) bool {
		return category(commands[i]) < category(commands[j])
	})

	var buf bytes.Buffer
	current := ""
	for _, c := range commands {
		if cat := category(c); cat != current {
			if current != "" {
				buf.WriteString("\n")
			}
			current = cat
			fmt.Fprintf(&buf, "### %s\n\n", current)
		}

		def := definition(c)
		subs := subcommands(def)
		if len(subs) == 0 {
			fmt.Fprintf(&buf, "- **/%s** — %s\n", c.Name(), c.Description())
			continue
		}
		for _, sub := range subs {
			fmt.Fprintf(&buf, "- **/%s %s%s** — %s\n", c.Name(), sub.Name, usage(sub.Options), sub.Description)
		}
	}
	return buf.String()
}

// Render executes the README template with the command sections.
func Render(w io.Writer, tmpl string, registry *cmd.Registry) error {
	t, err := template.New("readme").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return t.Execute(w, struct{ CommandSections string }{CommandSections(registry)})
}

// UpdateReadme rewrites outPath from the template at tmplPath.
func UpdateReadme(registry *cmd.Registry, tmplPath, outPath string) error {
	tmpl, err := os.ReadFile(tmplPath)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Render(&buf, string(tmpl), registry); err != nil {
		return err
	}
	return os.WriteFile(outPath, buf.Bytes(), 0o644)
}

func category(c cmd.Command) string {
	if meta, ok := command.Meta(c); ok {
		return meta.Category()
	}
	return ""
}

func definition(c cmd.Command) *discordgo.ApplicationCommand {
	if p, ok := cmd.Root(c).(command.SlashProvider); ok {
		return p.SlashDefinition()
	}
	return nil
}

func subcommands(def *discordgo.ApplicationCommand) []*discordgo.ApplicationCommandOption {
	if def == nil {
		return nil
	}
	var out []*discordgo.ApplicationCommandOption
	for _, o := range def.Options {
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			out = append(out, o)
		}
	}
	return out
}

func usage(opts []*discordgo.ApplicationCommandOption) string {
	var parts []string
	for _, o := range opts {
		if o.Required {
			parts = append(parts, "<"+o.Name+">")
		} else {
			parts = append(parts, "["+o.Name+"]")
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}
