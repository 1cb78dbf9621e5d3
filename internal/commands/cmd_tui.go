package commands

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/profiler"
	"github.com/hay-kot/bell/internal/tui/bell"
)

type TuiCmd struct {
	flags        *Flags
	profilerAddr string
}

// NewTuiCmd creates a new tui command
func NewTuiCmd(flags *Flags) *TuiCmd {
	return &TuiCmd{flags: flags}
}

// Register adds the tui command to the application
func (cmd *TuiCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "tui",
		Usage:     "Open the notification bell",
		UsageText: "bell tui [--profiler-addr addr]",
		Description: `Loads the saved notifications, connects to the relay and shows the bell.
New notifications pop up as toasts. Press n to open the list, enter to
open a notification, a to mark everything read.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "profiler-addr",
				Usage:       "serve pprof on this address (e.g. 127.0.0.1:6060)",
				Sources:     cli.EnvVars("BELL_PROFILER_ADDR"),
				Destination: &cmd.profilerAddr,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *TuiCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.profilerAddr != "" {
		prof, err := profiler.Start(cmd.profilerAddr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := prof.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("failed to shutdown profiler server")
			}
		}()
	}

	sess, closeSession, err := openSession(ctx, cmd.flags, true)
	if err != nil {
		return err
	}
	defer closeSession()

	opts := bell.Options{Store: sess.Store()}
	if m := sess.Manager(); m != nil {
		opts.Connection = m
	}

	var opened []notify.Notification
	opts.OnSelect = func(n notify.Notification) {
		log.Debug().Str("id", n.ID).Str("link", n.Link).Msg("notification opened")
		if n.Link != "" {
			opened = append(opened, n)
		}
	}

	model := bell.New(opts)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run bell: %w", err)
	}

	out := c.Root().Writer
	for _, n := range opened {
		_, _ = fmt.Fprintf(out, "%s  %s\n", n.Title, n.Link)
	}
	return nil
}
