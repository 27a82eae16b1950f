package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// View modes select whether messages are grouped per contact or per ticket.
const (
	ViewContact = "contact"
	ViewTicket  = "ticket"
)

// Config represents the global ~/.inbox/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	Server         Server `toml:"server"`
	Inbox          Inbox  `toml:"inbox"`
	Debug          Debug  `toml:"debug"`
}

// Server holds backend endpoints and credentials.
type Server struct {
	BaseURL   string   `toml:"base_url"`
	SocketURL string   `toml:"socket_url"`
	Token     string   `toml:"token"`
	Timeout   Duration `toml:"timeout"`
}

// Inbox holds store behaviour settings.
type Inbox struct {
	ViewMode         string   `toml:"view_mode"`
	PageSize         int      `toml:"page_size"`
	AutoCreateTicket bool     `toml:"auto_create_ticket"`
	UrgentAfter      Duration `toml:"urgent_after"`
	OverdueAfter     Duration `toml:"overdue_after"`
	AgentName        string   `toml:"agent_name"`
}

// Debug configures the local diagnostics server.
type Debug struct {
	Addr     string `toml:"addr"`
	LogLevel string `toml:"log_level"`
}

// Duration is a time.Duration that decodes from TOML strings like "30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Server: Server{
			BaseURL: "http://localhost:3000",
			Timeout: Duration{15 * time.Second},
		},
		Inbox: Inbox{
			ViewMode:         ViewContact,
			PageSize:         50,
			AutoCreateTicket: true,
			UrgentAfter:      Duration{30 * time.Minute},
			OverdueAfter:     Duration{2 * time.Hour},
		},
		Debug: Debug{LogLevel: "info"},
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing; use LoadOrDefault to tolerate that.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load but returns Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.base_url is required"))
	} else if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.base_url %q is not an absolute URL", c.Server.BaseURL))
	}
	if c.Server.SocketURL != "" {
		if u, err := url.Parse(c.Server.SocketURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("server.socket_url %q must use ws or wss", c.Server.SocketURL))
		}
	}
	switch c.Inbox.ViewMode {
	case ViewContact, ViewTicket:
	default:
		errs = append(errs, fmt.Errorf("inbox.view_mode %q must be %q or %q", c.Inbox.ViewMode, ViewContact, ViewTicket))
	}
	if c.Inbox.PageSize <= 0 || c.Inbox.PageSize > 500 {
		errs = append(errs, fmt.Errorf("inbox.page_size %d out of range 1..500", c.Inbox.PageSize))
	}
	if c.Inbox.UrgentAfter.Duration <= 0 || c.Inbox.OverdueAfter.Duration <= c.Inbox.UrgentAfter.Duration {
		errs = append(errs, fmt.Errorf("inbox thresholds must satisfy 0 < urgent_after (%s) < overdue_after (%s)",
			c.Inbox.UrgentAfter, c.Inbox.OverdueAfter))
	}
	return errors.Join(errs...)
}
