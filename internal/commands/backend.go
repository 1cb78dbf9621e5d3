package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/bell/internal/core/auth"
	"github.com/hay-kot/bell/internal/core/config"
	"github.com/hay-kot/bell/internal/core/kv"
	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/push"
	"github.com/hay-kot/bell/internal/core/session"
	"github.com/hay-kot/bell/internal/data/db"
	"github.com/hay-kot/bell/internal/data/stores"
	"github.com/hay-kot/bell/internal/data/sweep"
	"github.com/hay-kot/bell/internal/integration/ws"
	"github.com/hay-kot/bell/internal/store/jsonfile"
	redisstore "github.com/hay-kot/bell/internal/store/redis"
)

var errNoUser = errors.New("no user configured; pass --user or set " + config.EnvUser)

// Backend is an opened snapshot store.
type Backend struct {
	KV      kv.KV
	Name    string
	Changes session.ChangeNotifier

	closers []func() error
}

// OpenBackend opens the KV selected by cfg.Store.Backend.
func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	b := &Backend{Name: cfg.Store.Backend}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		database, store, err := stores.OpenKV(cfg.DataDir, db.OpenOptions{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			BusyTimeout:  cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

		sweepCtx, cancel := context.WithCancel(context.Background())
		go sweep.Run(sweepCtx, store, cfg.Store.SweepInterval)

		b.KV = store
		b.closers = append(b.closers,
			func() error { cancel(); return nil },
			database.Close,
		)

	case config.BackendJSONFile:
		store := jsonfile.New(cfg.JSONDir())
		watcher, err := jsonfile.NewWatcher(store)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", store.Dir(), err)
		}
		b.KV = store
		b.Changes = watcher
		b.closers = append(b.closers, watcher.Close)

	case config.BackendRedis:
		store, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		b.KV = store
		b.closers = append(b.closers, store.Close)

	case config.BackendMemory:
		b.KV = kv.NewMemory()

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return b, nil
}

// Close releases the backend in reverse open order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// openSession opens the backend and starts a session for the resolved user.
// Live sessions dial the relay when push is enabled; others stay local.
func openSession(ctx context.Context, flags *Flags, live bool) (*session.Session, func(), error) {
	userID, err := flags.userID()
	if err != nil {
		return nil, nil, err
	}

	cfg := flags.Config
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := session.Options{
		UserID:  userID,
		Backend: backend.KV,
		Store:   notify.StoreOptions{Capacity: cfg.Store.Capacity},
	}

	if live {
		opts.Changes = backend.Changes

		if cfg.Push.IsEnabled() {
			signer, err := auth.NewSigner(cfg.Relay.Secret, cfg.Relay.TokenTTL)
			if err != nil {
				_ = backend.Close()
				return nil, nil, err
			}
			opts.Channel = ws.New(cfg.Relay.URL)
			opts.Push = push.Options{
				MaxAttempts: cfg.Push.MaxAttempts,
				RetryDelay:  cfg.Push.RetryDelay,
				DialTimeout: cfg.Push.DialTimeout,
				Tokens:      signer.Sign,
			}
		}
	}

	sess, err := session.New(opts)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	if err := sess.Start(ctx); err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("start session: %w", err)
	}

	closer := func() {
		sess.End()
		if err := backend.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store backend")
		}
	}
	return sess, closer, nil
}
