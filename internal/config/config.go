package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"

	"github.com/evanschultz/sift/internal/domain"
)

// Config holds the runtime configuration loaded from TOML.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Identity IdentityConfig `toml:"identity"`
	Remote   RemoteConfig   `toml:"remote"`
	Store    StoreConfig    `toml:"store"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Logging  LoggingConfig  `toml:"logging"`
}

// DatabaseConfig holds configuration for database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// IdentityConfig names the local user when the TUI runs against the local database.
type IdentityConfig struct {
	Email string `toml:"email"`
}

// RemoteConfig points the TUI at a running sift server instead of the local database.
type RemoteConfig struct {
	URL string `toml:"url"`
}

// StoreConfig holds configuration for store calls made by the TUI.
type StoreConfig struct {
	RequestTimeout Duration `toml:"request_timeout"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Bind    string `toml:"bind"`
	BaseURL string `toml:"base_url"`
}

// AuthConfig holds configuration for magic-link sign-in.
type AuthConfig struct {
	LinkTTL      Duration `toml:"link_ttl"`
	SessionTTL   Duration `toml:"session_ttl"`
	OutboxDir    string   `toml:"outbox_dir"`
	CookieSecure bool     `toml:"cookie_secure"`
}

// LoggingConfig holds configuration for runtime logging.
type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig holds configuration for the dev-mode log file.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText encodes the duration as text.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText decodes a duration such as "10s" or "15m".
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the built-in configuration for dbPath.
func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Store: StoreConfig{
			RequestTimeout: Duration(10 * time.Second),
		},
		Server: ServerConfig{
			Bind:    "127.0.0.1:8080",
			BaseURL: "http://127.0.0.1:8080",
		},
		Auth: AuthConfig{
			LinkTTL:    Duration(15 * time.Minute),
			SessionTTL: Duration(30 * 24 * time.Hour),
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".sift/log",
			},
		},
	}
}

// Load reads path over defaults. A missing or empty file yields defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if email := strings.TrimSpace(c.Identity.Email); email != "" {
		if _, err := domain.NormalizeEmail(email); err != nil {
			return fmt.Errorf("invalid identity.email: %q", email)
		}
	}
	if raw := strings.TrimSpace(c.Remote.URL); raw != "" {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("invalid remote.url: %w", err)
		}
	}
	if c.Store.RequestTimeout.Std() <= 0 {
		return errors.New("store.request_timeout must be > 0")
	}
	if bind := strings.TrimSpace(c.Server.Bind); bind != "" {
		if _, _, err := net.SplitHostPort(bind); err != nil {
			return fmt.Errorf("invalid server.bind: %w", err)
		}
	}
	if raw := strings.TrimSpace(c.Server.BaseURL); raw != "" {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("invalid server.base_url: %w", err)
		}
	}
	if c.Auth.LinkTTL.Std() <= 0 {
		return errors.New("auth.link_ttl must be > 0")
	}
	if c.Auth.SessionTTL.Std() <= 0 {
		return errors.New("auth.session_ttl must be > 0")
	}
	if _, err := charmLog.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	return nil
}

// EnsureConfigDir creates the directory holding path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// UpsertIdentityEmail writes identity.email into the config file, keeping other keys.
func UpsertIdentityEmail(path, email string) error {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return err
	}
	return upsertKey(path, "identity", "email", normalized)
}

// UpsertRemoteURL writes remote.url into the config file, keeping other keys.
func UpsertRemoteURL(path, rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateHTTPURL(rawURL); err != nil {
		return err
	}
	return upsertKey(path, "remote", "url", rawURL)
}

func upsertKey(path, section, key string, value any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("config path is required")
	}
	doc := map[string]any{}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read config: %w", err)
	case len(content) > 0:
		if err := toml.Unmarshal(content, &doc); err != nil {
			return fmt.Errorf("decode toml: %w", err)
		}
	}
	table, _ := doc[section].(map[string]any)
	if table == nil {
		table = map[string]any{}
	}
	table[key] = value
	doc[section] = table

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https: %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required: %q", raw)
	}
	return nil
}
