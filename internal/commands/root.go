package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/bell/internal/core/config"
	"github.com/hay-kot/bell/internal/core/styles"
	"github.com/hay-kot/bell/pkg/logutils"
)

// NewApp builds the bell command tree.
func NewApp(version string) *cli.Command {
	var logCloser func()

	flags := &Flags{}

	app := &cli.Command{
		Name:      "bell",
		Usage:     "Per-user notifications with a live push relay",
		UsageText: "bell [global options] command [command options]",
		Description: `Bell keeps a bounded, persisted list of notifications for one user and
merges live events pushed by a relay into it.

Run 'bell' with no arguments to open the notification bell.
Run 'bell relay' to serve the push relay.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("BELL_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/bell.log)",
				Sources:     cli.EnvVars("BELL_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("BELL_CONFIG"),
				Value:       DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("BELL_DATA_DIR"),
				Value:       DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "user id whose notifications to use (overrides config)",
				Destination: &flags.User,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return ctx, fmt.Errorf("load .env: %w", err)
			}

			// Always log to a file; use explicit path or default to <datadir>/bell.log
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "bell.log")
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			// Validation ensures the theme exists; unknown names keep the default.
			if palette, ok := styles.GetPalette(cfg.TUI.Theme); ok {
				styles.SetTheme(palette)
			}

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	tuiCmd := NewTuiCmd(flags)

	app = tuiCmd.Register(app)
	app = NewLsCmd(flags).Register(app)
	app = NewAddCmd(flags).Register(app)
	app = NewReadCmd(flags).Register(app)
	app = NewClearCmd(flags).Register(app)
	app = NewRelayCmd(flags).Register(app)
	app = NewSendCmd(flags).Register(app)
	app = NewTokenCmd(flags).Register(app)
	app = NewDoctorCmd(flags).Register(app)

	// Set TUI as default action when no subcommand is provided
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'bell --help' for usage", c.Args().First())
		}
		return tuiCmd.run(ctx, c)
	}

	return app
}
