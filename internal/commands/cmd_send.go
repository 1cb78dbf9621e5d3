package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/bell/internal/core/auth"
	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/validate"
	"github.com/hay-kot/bell/internal/relay"
	"github.com/hay-kot/bell/pkg/iojson"
)

const (
	publisherID = "bell-cli"
	sendTimeout = 10 * time.Second
)

type SendCmd struct {
	flags *Flags
	input iojson.FileReader[notify.Payload]

	to      string
	id      string
	title   string
	message string
	typ     string
	link    string
}

// NewSendCmd creates a new send command
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

// Register adds the send command to the application
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Publish a notification through the relay",
		UsageText: "bell send [--to user] --title t [--message m] [--type info] [--id id] | bell send -f payload.json",
		Description: `Posts a notification to the relay's publish endpoint with a publisher token.
Connected clients of the addressed user merge it immediately.

Reusing an --id updates that notification in place instead of adding one.
Without --title the payload is read as JSON from --file or piped stdin.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Usage: "recipient user id (defaults to --user)", Destination: &cmd.to},
			&cli.StringFlag{Name: "id", Usage: "notification id (relay assigns one when empty)", Destination: &cmd.id},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "notification title", Destination: &cmd.title},
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "notification body", Destination: &cmd.message},
			&cli.StringFlag{Name: "type", Usage: "success, error, info or warning", Value: string(notify.TypeInfo), Destination: &cmd.typ},
			&cli.StringFlag{Name: "link", Usage: "link opened with the notification", Destination: &cmd.link},
			cmd.input.Flag(),
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	p, err := cmd.payload()
	if err != nil {
		return err
	}

	cfg := cmd.flags.Config
	endpoint, err := cfg.Relay.HTTPURL("/api/notifications")
	if err != nil {
		return err
	}

	signer, err := auth.NewSigner(cfg.Relay.Secret, cfg.Relay.TokenTTL)
	if err != nil {
		return err
	}
	token, err := signer.SignRole(publisherID, auth.RolePublisher)
	if err != nil {
		return err
	}

	resp, err := publish(endpoint, token, p)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(c.Root().Writer, "%s delivered=%d\n", resp.ID, resp.Delivered)
	return nil
}

func (cmd *SendCmd) payload() (notify.Payload, error) {
	if cmd.title == "" && cmd.input.Available() {
		p, err := cmd.input.Read()
		if err != nil {
			return p, err
		}
		if p.UserID == "" {
			p.UserID = cmd.recipient()
		}
		return p, nil
	}

	recipient := cmd.recipient()
	err := criterio.ValidateStruct(
		validate.Draft(cmd.title, cmd.typ),
		criterio.Run("to", recipient, validate.UserID),
	)
	if err != nil {
		return notify.Payload{}, err
	}

	return notify.Payload{
		ID:      cmd.id,
		UserID:  recipient,
		Title:   cmd.title,
		Message: cmd.message,
		Type:    notify.Type(cmd.typ),
		Link:    cmd.link,
	}, nil
}

func (cmd *SendCmd) recipient() string {
	if cmd.to != "" {
		return cmd.to
	}
	userID, _ := cmd.flags.userID()
	return userID
}

func publish(endpoint, token string, p notify.Payload) (relay.PublishResponse, error) {
	var resp relay.PublishResponse

	if p.UserID == "" {
		return resp, errNoUser
	}

	code, body, errs := fiber.Post(endpoint).
		Set(fiber.HeaderAuthorization, "Bearer "+token).
		Timeout(sendTimeout).
		JSON(p).
		Bytes()
	if len(errs) > 0 {
		return resp, fmt.Errorf("post %s: %w", endpoint, errors.Join(errs...))
	}

	if code != fiber.StatusAccepted {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return resp, fmt.Errorf("relay rejected notification: %d %s", code, apiErr.Error)
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("decode relay response: %w", err)
	}
	return resp, nil
}
