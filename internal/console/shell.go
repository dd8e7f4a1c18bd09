// Package console drives the music dispatcher from a terminal. Audio is
// paced in real time and discarded, so queues behave like in a real voice
// channel.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/keshon/jukebox/internal/music/dispatcher"
	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/pkg/cmd"
)

var (
	errUsage   = errors.New("usage")
	errUnknown = errors.New("unknown command, try help")
)

type Dispatcher interface {
	Dispatch(ctx context.Context, name string, req dispatcher.Request) dispatcher.Reply
}

type SnapshotSource interface {
	Snapshots() []session.Snapshot
}

// Shell maps console lines onto commands.
type Shell struct {
	commands   *cmd.Registry
	dispatcher Dispatcher
	sessions   SnapshotSource
	transport  *Transport
}

func NewShell(d Dispatcher, sessions SnapshotSource, transport *Transport) *Shell {
	sh := &Shell{
		commands:   cmd.NewRegistry(),
		dispatcher: d,
		sessions:   sessions,
		transport:  transport,
	}
	for _, name := range dispatcher.Commands {
		sh.commands.Register(&musicCommand{name: name, shell: sh})
	}
	sh.commands.Register(&localCommand{name: "status", desc: "Show the session state and frames sent", run: sh.status})
	sh.commands.Register(&localCommand{name: "kick", desc: "Simulate being disconnected from voice", run: sh.kick})
	sh.commands.Register(&localCommand{name: "help", desc: "List commands", run: sh.help})
	return sh
}

// Names lists every command plus quit.
func Names() []string {
	return append(append([]string(nil), dispatcher.Commands...), "status", "kick", "help", "quit")
}

// Completer offers the command names to readline.
func Completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range Names() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// Exec runs one line and writes its output to out.
func (sh *Shell) Exec(ctx context.Context, line string, out io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	c := sh.commands.Get(strings.ToLower(fields[0]))
	if c == nil {
		return fmt.Errorf("%w: %s", errUnknown, fields[0])
	}
	return c.Run(ctx, &cmd.Invocation{Args: fields[1:], Data: out})
}

// Run reads lines until quit, EOF or ctx is done.
func (sh *Shell) Run(ctx context.Context, rl *readline.Instance) error {
	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := sh.Exec(ctx, line, rl.Stdout()); err != nil {
			fmt.Fprintln(rl.Stdout(), err)
		}
	}
}

func (sh *Shell) status(_ []string, out io.Writer) error {
	snaps := sh.sessions.Snapshots()
	if len(snaps) == 0 {
		fmt.Fprintln(out, "idle")
		return nil
	}
	for _, s := range snaps {
		fmt.Fprintf(out, "%s: %s in %q, %d queued, %d frames sent\n",
			s.GuildID, s.State, s.ChannelID, len(s.Entries), sh.transport.Frames(s.GuildID))
	}
	return nil
}

func (sh *Shell) kick(_ []string, out io.Writer) error {
	if !sh.transport.Kick(GuildID) {
		fmt.Fprintln(out, "not connected")
		return nil
	}
	fmt.Fprintln(out, "kicked")
	return nil
}

func (sh *Shell) help(_ []string, out io.Writer) error {
	for _, c := range sh.commands.GetAll() {
		fmt.Fprintf(out, "%-8s %s\n", c.Name(), c.Description())
	}
	fmt.Fprintf(out, "%-8s %s\n", "quit", "Leave the console")
	return nil
}

// musicCommand forwards one music command to the dispatcher as the console user.
type musicCommand struct {
	name  string
	shell *Shell
}

var musicUsage = map[string]string{
	dispatcher.CmdPlay:    "play <url>",
	dispatcher.CmdSkip:    "skip [position]",
	dispatcher.CmdStop:    "stop",
	dispatcher.CmdList:    "list [page]",
	dispatcher.CmdCurrent: "current",
	dispatcher.CmdShuffle: "shuffle",
}

func (c *musicCommand) Name() string        { return c.name }
func (c *musicCommand) Description() string { return musicUsage[c.name] }

func (c *musicCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	out, _ := inv.Data.(io.Writer)
	if out == nil {
		out = io.Discard
	}
	req, err := parseArgs(c.name, inv.Args)
	if err != nil {
		return err
	}
	reply := c.shell.dispatcher.Dispatch(ctx, c.name, req)
	fmt.Fprintln(out, reply.Content)
	return nil
}

func parseArgs(name string, args []string) (dispatcher.Request, error) {
	req := dispatcher.Request{GuildID: GuildID, ChannelID: "console", UserID: UserID}
	usage := fmt.Errorf("%w: %s", errUsage, musicUsage[name])

	switch name {
	case dispatcher.CmdPlay:
		if len(args) != 1 {
			return req, usage
		}
		req.URL = args[0]
	case dispatcher.CmdSkip, dispatcher.CmdList:
		if len(args) > 1 {
			return req, usage
		}
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return req, usage
			}
			if name == dispatcher.CmdSkip {
				req.Number = n
			} else {
				req.Page = n
			}
		}
	default:
		if len(args) != 0 {
			return req, usage
		}
	}
	return req, nil
}

type localCommand struct {
	name string
	desc string
	run  func(args []string, out io.Writer) error
}

func (c *localCommand) Name() string        { return c.name }
func (c *localCommand) Description() string { return c.desc }

func (c *localCommand) Run(_ context.Context, inv *cmd.Invocation) error {
	out, _ := inv.Data.(io.Writer)
	if out == nil {
		out = io.Discard
	}
	return c.run(inv.Args, out)
}
