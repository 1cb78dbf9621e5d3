package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/bell/internal/core/styles"
)

type ClearCmd struct {
	flags *Flags
	yes   bool
}

// NewClearCmd creates a new clear command
func NewClearCmd(flags *Flags) *ClearCmd {
	return &ClearCmd{flags: flags}
}

// Register adds the clear command to the application
func (cmd *ClearCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "clear",
		Usage:     "Remove all notifications for the user",
		UsageText: "bell clear [--yes]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "skip confirmation",
				Destination: &cmd.yes,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *ClearCmd) run(ctx context.Context, c *cli.Command) error {
	if !cmd.yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("refusing to clear without --yes")
		}

		var confirmed bool
		err := huh.NewConfirm().
			Title("Clear all notifications?").
			Description("The saved list is deleted and cannot be restored.").
			Value(&confirmed).
			WithTheme(styles.FormTheme()).
			Run()
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
	}

	sess, closeSession, err := openSession(ctx, cmd.flags, false)
	if err != nil {
		return err
	}
	defer closeSession()

	sess.Store().Clear()
	return nil
}
