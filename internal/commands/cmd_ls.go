package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/styles"
	"github.com/hay-kot/bell/internal/tui/bell"
	"github.com/hay-kot/bell/pkg/iojson"
)

type LsCmd struct {
	flags *Flags

	// flags
	jsonOutput bool
	unread     bool
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags) *LsCmd {
	return &LsCmd{flags: flags}
}

// Register adds the ls command to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "ls",
		Usage:     "List notifications",
		UsageText: "bell ls [--json] [--unread]",
		Description: `Prints the saved notifications newest first.

Prints a table on a terminal and JSON lines otherwise. Use --json to force JSON.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
			&cli.BoolFlag{
				Name:        "unread",
				Usage:       "only unread notifications",
				Destination: &cmd.unread,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *LsCmd) run(ctx context.Context, c *cli.Command) error {
	sess, closeSession, err := openSession(ctx, cmd.flags, false)
	if err != nil {
		return err
	}
	defer closeSession()

	snap := sess.Store().Snapshot()
	items := snap.Notifications
	if cmd.unread {
		items = unreadOnly(items)
	}

	out := c.Root().Writer

	if cmd.jsonOutput || !isTerminal(out) {
		for _, n := range items {
			if err := iojson.WriteLine(out, n); err != nil {
				return fmt.Errorf("encode notification: %w", err)
			}
		}
		return nil
	}

	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "No notifications")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\t\tAGE\tTITLE")
	for _, n := range items {
		marker := " "
		if !n.Read {
			marker = styles.IconUnread
		}
		_, _ = fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%s\n",
			n.ID, styles.TypeIcon(n.Type), n.Type, marker, bell.FormatAge(now.Sub(n.CreatedAt)), n.Title)
	}
	_ = w.Flush()

	fmt.Fprintf(os.Stderr, "\n%d unread of %d\n", snap.UnreadCount, len(snap.Notifications))
	return nil
}

func unreadOnly(items []notify.Notification) []notify.Notification {
	out := make([]notify.Notification, 0, len(items))
	for _, n := range items {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
