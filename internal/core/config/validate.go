package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/bell/internal/core/styles"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep runs Validate and then checks addresses and file access,
// reporting every problem as criterio field errors. An empty configPath
// skips the config file check.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
		criterio.Run("relay.url", c.Relay.URL, isWebsocketURL),
		criterio.Run("relay.listen", c.Relay.Listen, isHostPort),
		criterio.Run("tui.theme", c.TUI.Theme, isTheme),
		c.validateRedis(),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.User == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "User",
			Message:  fmt.Sprintf("no user configured; pass --user or set %s", EnvUser),
		})
	}
	if c.Relay.Secret == DevSecret {
		warnings = append(warnings, ValidationWarning{
			Category: "Relay",
			Item:     "secret",
			Message:  "using the built-in development secret",
		})
	}
	if !c.Push.IsEnabled() {
		warnings = append(warnings, ValidationWarning{
			Category: "Push",
			Message:  "push disabled; notifications are local-only",
		})
	}

	return warnings
}

func (c *Config) validateRedis() error {
	var errs criterio.FieldErrorsBuilder
	if c.Store.Backend == BackendRedis {
		if err := isHostPort(c.Store.Redis.Addr); err != nil {
			errs = errs.Append("store.redis.addr", err)
		}
	}
	if c.Relay.Redis.Addr != "" {
		if err := isHostPort(c.Relay.Redis.Addr); err != nil {
			errs = errs.Append("relay.redis.addr", err)
		}
	}
	return errs.ToError()
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

func isDirectoryOrNotExist(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

func isWebsocketURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func isHostPort(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("expected host:port: %w", err)
	}
	return nil
}

func isTheme(name string) error {
	if _, ok := styles.GetPalette(name); !ok {
		return fmt.Errorf("unknown theme %q, expected one of %s", name, strings.Join(styles.ThemeNames(), ", "))
	}
	return nil
}
