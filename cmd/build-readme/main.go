// cmd/build-readme/main.go regenerates README.md from README.md.tmpl.
package main

import (
	"fmt"
	"os"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/internal/command/music"
	"github.com/keshon/jukebox/internal/docs"
	"github.com/keshon/jukebox/pkg/cmd"
)

func main() {
	reg := cmd.NewRegistry()
	command.RegisterCommand(reg, &music.MusicCommand{})

	if err := docs.UpdateReadme(reg, "README.md.tmpl", "README.md"); err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}
	fmt.Println("[INFO] README.md updated with current commands")
}
