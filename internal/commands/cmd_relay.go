package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/bell/internal/core/auth"
	"github.com/hay-kot/bell/internal/profiler"
	"github.com/hay-kot/bell/internal/relay"
)

const shutdownTimeout = 5 * time.Second

type RelayCmd struct {
	flags        *Flags
	listen       string
	profilerAddr string
}

// NewRelayCmd creates a new relay command
func NewRelayCmd(flags *Flags) *RelayCmd {
	return &RelayCmd{flags: flags}
}

// Register adds the relay command to the application
func (cmd *RelayCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "relay",
		Usage:     "Serve the push relay",
		UsageText: "bell relay [--listen addr]",
		Description: `Serves websocket connections for clients and an HTTP publish endpoint.

When relay.redis.addr is configured, published notifications fan out through
redis so any relay instance holding the user's socket delivers it.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "listen",
				Usage:       "address to listen on (defaults to relay.listen)",
				Destination: &cmd.listen,
			},
			&cli.StringFlag{
				Name:        "profiler-addr",
				Usage:       "serve pprof on this address",
				Sources:     cli.EnvVars("BELL_PROFILER_ADDR"),
				Destination: &cmd.profilerAddr,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *RelayCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd.profilerAddr != "" {
		prof, err := profiler.Start(cmd.profilerAddr)
		if err != nil {
			return err
		}
		defer func() { _ = prof.Shutdown(context.Background()) }()
	}

	signer, err := auth.NewSigner(cfg.Relay.Secret, cfg.Relay.TokenTTL)
	if err != nil {
		return err
	}

	hub := relay.NewHub()
	var broker relay.Broker = relay.NewLocalBroker(hub)

	if addr := cfg.Relay.Redis.Addr; addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: cfg.Relay.Redis.Password,
			DB:       cfg.Relay.Redis.DB,
		})
		defer func() { _ = client.Close() }()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis %s: %w", addr, err)
		}

		rb := relay.NewRedisBroker(client, "", hub)
		go func() {
			if err := rb.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("redis fan-out stopped")
			}
		}()
		broker = rb
	}

	srv, err := relay.New(relay.Options{Signer: signer, Broker: broker, Hub: hub})
	if err != nil {
		return err
	}

	addr := cmd.listen
	if addr == "" {
		addr = cfg.Relay.Listen
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(addr) }()

	select {
	case err := <-errCh:
		return fmt.Errorf("relay: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown relay: %w", err)
	}
	return nil
}
