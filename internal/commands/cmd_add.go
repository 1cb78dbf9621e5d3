package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/styles"
	"github.com/hay-kot/bell/internal/core/validate"
)

type AddCmd struct {
	flags *Flags

	title   string
	message string
	typ     string
	link    string
}

// NewAddCmd creates a new add command
func NewAddCmd(flags *Flags) *AddCmd {
	return &AddCmd{flags: flags}
}

// Register adds the add command to the application
func (cmd *AddCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "add",
		Usage:     "Add a local notification",
		UsageText: "bell add [--title t] [--message m] [--type info] [--link url]",
		Description: `Adds a notification to the current user's list without the relay.

Opens a form when --title is omitted on a terminal.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "notification title", Destination: &cmd.title},
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "notification body", Destination: &cmd.message},
			&cli.StringFlag{Name: "type", Usage: "success, error, info or warning", Value: string(notify.TypeInfo), Destination: &cmd.typ},
			&cli.StringFlag{Name: "link", Usage: "link opened with the notification", Destination: &cmd.link},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *AddCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.title == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		if err := cmd.runForm(); err != nil {
			return err
		}
	}

	if err := validate.Draft(cmd.title, cmd.typ); err != nil {
		return err
	}

	sess, closeSession, err := openSession(ctx, cmd.flags, false)
	if err != nil {
		return err
	}
	defer closeSession()

	n := sess.Store().Add(notify.Draft{
		Title:   strings.TrimSpace(cmd.title),
		Message: cmd.message,
		Type:    notify.Type(cmd.typ),
		Link:    cmd.link,
	})

	_, _ = fmt.Fprintln(c.Root().Writer, n.ID)
	return nil
}

func (cmd *AddCmd) runForm() error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Validate(validate.Title).
				Value(&cmd.title),
			huh.NewText().
				Title("Message").
				Value(&cmd.message),
			huh.NewSelect[string]().
				Title("Type").
				Options(huh.NewOptions(
					string(notify.TypeInfo),
					string(notify.TypeSuccess),
					string(notify.TypeWarning),
					string(notify.TypeError),
				)...).
				Value(&cmd.typ),
			huh.NewInput().
				Title("Link").
				Description("Optional").
				Value(&cmd.link),
		),
	).WithTheme(styles.FormTheme()).Run()
}
