package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notechain/internal/split"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Notes  NotesConfig       `yaml:"notes"`
	Inbox  InboxConfig       `yaml:"inbox"`
	Purge  PurgeConfig       `yaml:"purge"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Notes.Validate(); err != nil {
		return err
	}
	if err := c.Inbox.Validate(); err != nil {
		return err
	}
	if err := c.Purge.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// NotesConfig holds the note size limits.
//
// MaxBodyChars is the ceiling, in characters, above which a text note is
// split into parts. ReadLimitBytes is the largest stored body, in bytes, the
// store will read back; larger rows are truncated by repair. Zero disables
// the read limit.
type NotesConfig struct {
	MaxBodyChars   int   `yaml:"max_body_chars"`
	ReadLimitBytes int64 `yaml:"read_limit_bytes"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MaxBodyChars, validation.Required, validation.Min(split.LinkTextLen+1)),
		validation.Field(&c.ReadLimitBytes, validation.Min(int64(0))),
	); err != nil {
		return err
	}
	// A body at the ceiling may take up to 4 bytes per character.
	if c.ReadLimitBytes > 0 && c.ReadLimitBytes < int64(c.MaxBodyChars)*4 {
		return fmt.Errorf("notes: read_limit_bytes %d is below 4 x max_body_chars (%d)", c.ReadLimitBytes, c.MaxBodyChars*4)
	}
	return nil
}

// InboxConfig holds the backup inbox directory.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// PurgeConfig controls removal of notes from the DELETED folder.
// AfterDays of zero keeps deleted notes forever.
type PurgeConfig struct {
	AfterDays int           `yaml:"after_days"`
	Interval  time.Duration `yaml:"interval"`
}

// Validate validates the purge configuration.
func (c *PurgeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AfterDays, validation.Min(0)),
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./notechain.db",
		},
		Notes: NotesConfig{
			MaxBodyChars:   500000,
			ReadLimitBytes: 2 << 20,
		},
		Inbox: InboxConfig{
			Path: "./inbox",
		},
		Purge: PurgeConfig{
			Interval: 24 * time.Hour,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
