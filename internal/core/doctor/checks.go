package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/bell/internal/core/config"
	"github.com/hay-kot/bell/internal/core/kv"
)

const probeKey = "doctor:probe"

// ConfigCheck validates the loaded configuration.
type ConfigCheck struct {
	Config     *config.Config
	ConfigPath string
}

func (c ConfigCheck) Name() string { return "Configuration" }

func (c ConfigCheck) Run(_ context.Context) Result {
	r := Result{Name: c.Name()}

	err := c.Config.ValidateDeep(c.ConfigPath)
	var fieldErrs criterio.FieldErrors
	switch {
	case err == nil:
		r.Items = append(r.Items, CheckItem{Label: "config valid", Status: StatusPass, Detail: c.ConfigPath})
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			r.Items = append(r.Items, CheckItem{Label: fe.Field, Status: StatusFail, Detail: fe.Err.Error()})
		}
	default:
		r.Items = append(r.Items, CheckItem{Label: "config invalid", Status: StatusFail, Detail: err.Error()})
	}

	for _, w := range c.Config.Warnings() {
		label := w.Category
		if w.Item != "" {
			label += "." + w.Item
		}
		r.Items = append(r.Items, CheckItem{Label: label, Status: StatusWarn, Detail: w.Message})
	}

	return r
}

// StorageCheck round-trips a probe value through the snapshot backend.
type StorageCheck struct {
	Backend     kv.KV
	BackendName string
}

func (c StorageCheck) Name() string { return "Storage" }

func (c StorageCheck) Run(ctx context.Context) Result {
	r := Result{Name: c.Name()}
	label := "backend " + c.BackendName

	if err := c.probe(ctx); err != nil {
		r.Items = append(r.Items, CheckItem{Label: label, Status: StatusFail, Detail: err.Error()})
		return r
	}

	keys, err := c.Backend.ListKeys(ctx)
	if err != nil {
		r.Items = append(r.Items, CheckItem{Label: label, Status: StatusWarn, Detail: "list keys: " + err.Error()})
		return r
	}

	r.Items = append(r.Items, CheckItem{
		Label:  label,
		Status: StatusPass,
		Detail: fmt.Sprintf("%d keys", len(keys)),
	})
	return r
}

func (c StorageCheck) probe(ctx context.Context) error {
	want := time.Now().UTC().Format(time.RFC3339Nano)
	if err := c.Backend.SetTTL(ctx, probeKey, want, time.Minute); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	defer func() { _ = c.Backend.Delete(ctx, probeKey) }()

	var got string
	if err := c.Backend.Get(ctx, probeKey, &got); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if got != want {
		return fmt.Errorf("read back %q, wrote %q", got, want)
	}
	return nil
}

// RelayCheck asks the relay's health endpoint whether it is up. An
// unreachable relay is a warning: sessions degrade to local-only.
type RelayCheck struct {
	Relay   config.RelayConfig
	Timeout time.Duration
}

func (c RelayCheck) Name() string { return "Relay" }

func (c RelayCheck) Run(_ context.Context) Result {
	r := Result{Name: c.Name()}

	healthURL, err := c.Relay.HTTPURL("/healthz")
	if err != nil {
		r.Items = append(r.Items, CheckItem{Label: "relay url", Status: StatusFail, Detail: err.Error()})
		return r
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	code, _, errs := fiber.Get(healthURL).Timeout(timeout).Bytes()
	switch {
	case len(errs) > 0:
		r.Items = append(r.Items, CheckItem{Label: "reachable", Status: StatusWarn, Detail: errors.Join(errs...).Error()})
	case code != fiber.StatusOK:
		r.Items = append(r.Items, CheckItem{Label: "reachable", Status: StatusWarn, Detail: fmt.Sprintf("%s returned %d", healthURL, code)})
	default:
		r.Items = append(r.Items, CheckItem{Label: "reachable", Status: StatusPass, Detail: healthURL})
	}
	return r
}
