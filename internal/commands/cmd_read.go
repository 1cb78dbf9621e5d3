package commands

import (
	"context"
	"fmt"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/bell/internal/core/notify"
)

type ReadCmd struct {
	flags *Flags
	all   bool
}

// NewReadCmd creates a new read command
func NewReadCmd(flags *Flags) *ReadCmd {
	return &ReadCmd{flags: flags}
}

// Register adds the read command to the application
func (cmd *ReadCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "read",
		Usage:     "Mark notifications as read",
		UsageText: "bell read <id>... | bell read --all",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "all",
				Aliases:     []string{"a"},
				Usage:       "mark every notification as read",
				Destination: &cmd.all,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *ReadCmd) run(ctx context.Context, c *cli.Command) error {
	ids := c.Args().Slice()
	if cmd.all == (len(ids) > 0) {
		return fmt.Errorf("pass notification ids or --all")
	}

	sess, closeSession, err := openSession(ctx, cmd.flags, false)
	if err != nil {
		return err
	}
	defer closeSession()

	store := sess.Store()
	if cmd.all {
		store.MarkAllAsRead()
		return nil
	}

	items := store.Snapshot().Notifications
	for _, id := range ids {
		known := slices.ContainsFunc(items, func(n notify.Notification) bool { return n.ID == id })
		if !known {
			return fmt.Errorf("notification %q not found", id)
		}
		store.MarkAsRead(id)
	}
	return nil
}
