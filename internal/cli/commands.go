// Package cli implements the interactive operator console.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/db"
	"github.com/quarry-project/quarry/internal/events"
	"github.com/quarry-project/quarry/internal/network"
	"github.com/quarry-project/quarry/internal/server"
)

// Monitor is the view of the dispatch loop the console needs.
type Monitor interface {
	Snapshot(ctx context.Context) ([]network.ConnectionInfo, error)
	Stats(ctx context.Context) (server.Stats, error)
	Disconnect(ctx context.Context, id uint64, reason string) (bool, error)
}

// LoginStore serves the login history.
type LoginStore interface {
	Recent(ctx context.Context, limit int) ([]db.LoginRecord, error)
}

// CLI reads commands from in and writes results to out.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	monitor  Monitor
	logins   LoginStore

	in  io.Reader
	out io.Writer
}

// NewCLI creates a console bound to in and out.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, monitor Monitor, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		monitor:  monitor,
		in:       in,
		out:      out,
	}
}

// SetLoginStore enables the logins command.
func (c *CLI) SetLoginStore(store LoginStore) {
	c.logins = store
}

// Start runs the command loop until ctx is cancelled, input ends, or the
// operator quits.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nquarry console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "quarry> ")

		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		quit, err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:])
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		if quit {
			return
		}
	}
}

// execute runs one command and reports whether the console should exit.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) (bool, error) {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		return false, c.printStatus(ctx, args)
	case "stats":
		return false, c.printStats(ctx)
	case "logins":
		return false, c.printLogins(ctx, args)
	case "kick":
		return false, c.cmdKick(ctx, args)
	case "motd":
		return false, c.cmdMOTD(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down quarry...")
		if c.eventBus != nil {
			c.eventBus.Emit(ctx, events.Event{
				Type:    events.EventShutdown,
				Source:  "cli",
				Payload: events.ShutdownPayload{Reason: "console"},
			})
		}
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `
Commands:
  status [id]     Show all connections, or one in detail
  stats           Show server counters
  logins [n]      Show the n most recent logins (default 10)
  kick <id>       Disconnect a connection
  motd <text>     Change the message of the day
  quit            Shut down the server
  help            Show this help message`)
}

func (c *CLI) printStatus(ctx context.Context, args []string) error {
	conns, err := c.monitor.Snapshot(ctx)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		id, err := parseIDArg(args)
		if err != nil {
			return err
		}
		for _, info := range conns {
			if info.ID == id {
				c.printConnectionDetail(info)
				return nil
			}
		}
		return fmt.Errorf("connection %d not found", id)
	}

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"ID", "Remote", "Phase", "Player", "Protocol", "Connected"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, info := range conns {
		player := info.PlayerName
		if player == "" {
			player = "-"
		}
		tw.Append([]string{
			strconv.FormatUint(info.ID, 10),
			info.Remote,
			info.Phase,
			player,
			strconv.Itoa(int(info.ProtocolVersion)),
			time.Since(info.ConnectedAt).Truncate(time.Second).String(),
		})
	}

	tw.Render()
	fmt.Fprintf(c.out, "%d connection(s)\n", len(conns))
	return nil
}

func (c *CLI) printConnectionDetail(info network.ConnectionInfo) {
	fmt.Fprintf(c.out, "\n  ID:            %d\n", info.ID)
	fmt.Fprintf(c.out, "  Remote:        %s\n", info.Remote)
	fmt.Fprintf(c.out, "  Phase:         %s\n", info.Phase)
	fmt.Fprintf(c.out, "  Player:        %s\n", info.PlayerName)
	fmt.Fprintf(c.out, "  Protocol:      %d\n", info.ProtocolVersion)
	fmt.Fprintf(c.out, "  Connected at:  %s\n", info.ConnectedAt.Format(time.RFC3339))
	fmt.Fprintf(c.out, "  Last activity: %s\n\n", info.LastActivity.Format(time.RFC3339))
}

func (c *CLI) printStats(ctx context.Context) error {
	stats, err := c.monitor.Stats(ctx)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Metric", "Value"})
	tw.SetAutoWrapText(false)
	tw.AppendBulk([][]string{
		{"Connections", strconv.Itoa(stats.Connections)},
		{"Players", fmt.Sprintf("%d/%d", stats.Players, stats.MaxPlayers)},
		{"Status queries", strconv.FormatUint(stats.StatusQueries, 10)},
		{"Logins", strconv.FormatUint(stats.Logins, 10)},
		{"Uptime", stats.Uptime},
	})
	tw.Render()
	return nil
}

func (c *CLI) printLogins(ctx context.Context, args []string) error {
	if c.logins == nil {
		return fmt.Errorf("login history is disabled")
	}

	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	records, err := c.logins.Recent(ctx, limit)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Player", "Remote", "Protocol", "Logged in", "Logged out"})
	tw.SetAutoWrapText(false)
	for _, r := range records {
		out := "-"
		if r.LoggedOutAt != nil {
			out = r.LoggedOutAt.Format(time.DateTime)
		}
		tw.Append([]string{
			r.PlayerName,
			r.RemoteAddr,
			strconv.Itoa(int(r.ProtocolVersion)),
			r.LoggedInAt.Format(time.DateTime),
			out,
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdKick(ctx context.Context, args []string) error {
	id, err := parseIDArg(args)
	if err != nil {
		return err
	}

	found, err := c.monitor.Disconnect(ctx, id, "kicked")
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("connection %d not found", id)
	}
	fmt.Fprintf(c.out, "Connection %d disconnected\n", id)
	return nil
}

func (c *CLI) cmdMOTD(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "MOTD: %s\n", c.cfg.GetMOTD())
		return nil
	}

	motd := strings.Join(args, " ")
	c.cfg.SetMOTD(motd)
	if err := c.cfg.Save(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "MOTD updated: %s\n", motd)
	return nil
}

func parseIDArg(args []string) (uint64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("connection id required")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid connection id: %s", args[0])
	}
	return id, nil
}
