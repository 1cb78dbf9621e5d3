package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/bell/internal/core/auth"
)

type TokenCmd struct {
	flags *Flags
	role  string
}

// NewTokenCmd creates a new token command
func NewTokenCmd(flags *Flags) *TokenCmd {
	return &TokenCmd{flags: flags}
}

// Register adds the token command to the application
func (cmd *TokenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "token",
		Usage:     "Print a relay token for the user",
		UsageText: "bell token [--role user|publisher]",
		Description: `Signs a token with the configured relay secret. User tokens open a
websocket; publisher tokens may POST /api/notifications.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "role",
				Usage:       "token role (user, publisher)",
				Value:       auth.RoleUser,
				Destination: &cmd.role,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *TokenCmd) run(_ context.Context, c *cli.Command) error {
	if cmd.role != auth.RoleUser && cmd.role != auth.RolePublisher {
		return fmt.Errorf("invalid role %q", cmd.role)
	}

	userID, err := cmd.flags.userID()
	if err != nil {
		return err
	}

	cfg := cmd.flags.Config
	signer, err := auth.NewSigner(cfg.Relay.Secret, cfg.Relay.TokenTTL)
	if err != nil {
		return err
	}

	token, err := signer.SignRole(userID, cmd.role)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(c.Root().Writer, token)
	return nil
}
