package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr       = "0.0.0.0:8080"
	DefaultCookieName = "TINYFM_SID"
	DefaultTitle      = "Tiny File Manager"
	DefaultSessionTTL = 12 * time.Hour
)

// Config is intentionally small and JSON/YAML-friendly.
type Config struct {
	// Addr is the listen address.
	Addr string `json:"addr" yaml:"addr"`

	// Root is the directory served. Nothing outside it is ever read.
	Root string `json:"root" yaml:"root"`

	AppTitle string `json:"appTitle,omitempty" yaml:"appTitle,omitempty"`

	Auth     Auth     `json:"auth" yaml:"auth"`
	Sessions Sessions `json:"sessions" yaml:"sessions"`
	WebDAV   WebDAV   `json:"webdav" yaml:"webdav"`

	// Locale selects the collation used to order listings (BCP 47, e.g. "en", "de").
	Locale string `json:"locale,omitempty" yaml:"locale,omitempty"`

	// MaxConns caps simultaneous connections. 0 means unlimited.
	MaxConns int `json:"maxConns,omitempty" yaml:"maxConns,omitempty"`

	// LogFile receives logs instead of stderr when set.
	LogFile string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	Debug   bool   `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// Auth holds the single credential set. Enabled defaults to true.
type Auth struct {
	Enabled  *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Username string `json:"username" yaml:"username"`
	// Bcrypt is the password hash (see `tinyfm passwd`).
	Bcrypt string `json:"bcrypt,omitempty" yaml:"bcrypt,omitempty"`
	// Password is a plain-text fallback, hashed at startup.
	Password     string `json:"password,omitempty" yaml:"password,omitempty"`
	CookieName   string `json:"cookieName,omitempty" yaml:"cookieName,omitempty"`
	SecureCookie bool   `json:"secureCookie,omitempty" yaml:"secureCookie,omitempty"`
}

// On reports whether logins are required.
func (a Auth) On() bool {
	return a.Enabled == nil || *a.Enabled
}

type Sessions struct {
	// Backend is "memory" (default) or "redis".
	Backend string   `json:"backend,omitempty" yaml:"backend,omitempty"`
	TTL     Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Redis   Redis    `json:"redis,omitempty" yaml:"redis,omitempty"`
}

type Redis struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// WebDAV mounts a read-only WebDAV view of the root under /dav/.
type WebDAV struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// Duration accepts "30m"-style strings or integer seconds.
type Duration struct {
	time.Duration
	set bool
}

func (d Duration) IsSet() bool { return d.set }

func NewDuration(v time.Duration) Duration { return Duration{Duration: v, set: true} }

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration, d.set = v, true
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		d.Duration, d.set = time.Duration(n)*time.Second, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var secs int64
	if err := n.Decode(&secs); err == nil {
		d.Duration, d.set = time.Duration(secs)*time.Second, true
		return nil
	}
	return d.parse(n.Value)
}

// Load reads a config file. YAML is used for .yaml/.yml, JSON otherwise.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.AppTitle == "" {
		c.AppTitle = DefaultTitle
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = DefaultCookieName
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = "memory"
	}
	if !c.Sessions.TTL.IsSet() {
		c.Sessions.TTL = NewDuration(DefaultSessionTTL)
	}
	if c.Sessions.Redis.Prefix == "" {
		c.Sessions.Redis.Prefix = "tinyfm"
	}
	if c.Locale == "" {
		c.Locale = "und"
	}
}

// Validate checks a config after defaults were applied.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Root) == "" {
		errs = append(errs, errors.New("root is required"))
	}
	if c.Auth.On() {
		if c.Auth.Username == "" {
			errs = append(errs, errors.New("auth.username is required when auth is enabled"))
		}
		if c.Auth.Bcrypt == "" && c.Auth.Password == "" {
			errs = append(errs, errors.New("auth.bcrypt or auth.password is required when auth is enabled"))
		}
	}
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if c.Sessions.Redis.Addr == "" {
			errs = append(errs, errors.New("sessions.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sessions.backend %q", c.Sessions.Backend))
	}
	if c.Sessions.TTL.Duration < 0 {
		errs = append(errs, errors.New("sessions.ttl must not be negative"))
	}
	if c.MaxConns < 0 {
		errs = append(errs, errors.New("maxConns must not be negative"))
	}
	return errors.Join(errs...)
}
