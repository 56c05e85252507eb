// Package config holds socksgate's runtime settings and reads them from an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Authentication modes.
const (
	AuthAllowlist = "allowlist"
	AuthUserPass  = "userpass"
)

// Config is every setting the daemon reads. Zero durations mean "unset" where
// noted.
type Config struct {
	Listen string `yaml:"listen"`
	Auth   string `yaml:"auth"`

	AllowlistPath  string `yaml:"allowlist"`
	AllowlistWatch bool   `yaml:"allowlist-watch"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	DialTimeout        time.Duration `yaml:"dial-timeout"`
	NegotiationTimeout time.Duration `yaml:"negotiation-timeout"` // zero: no handshake timeout
	TCPKeepAlive       string        `yaml:"tcp-keepalive"`

	DebugListen string `yaml:"debug-listen"`

	LogLevel     string `yaml:"log-level"`
	LogFormat    string `yaml:"log-format"`
	LogFile      string `yaml:"log-file"`
	LogDirectory string `yaml:"log-directory"`
}

// Default returns the settings of the original deployment: port 10000, the
// allow-list strategy and the fixed credential pair for userpass mode.
func Default() Config {
	return Config{
		Listen:         ":10000",
		Auth:           AuthAllowlist,
		AllowlistPath:  "/home/vpn/server/socks5-whitelist.json",
		AllowlistWatch: true,
		Username:       "techb",
		Password:       "Tech1324",
		DialTimeout:    10 * time.Second,
		TCPKeepAlive:   "45:45:3",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// ReadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks that the settings describe a runnable server.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}

	switch c.Auth {
	case AuthAllowlist:
		if c.AllowlistPath == "" {
			return errors.New("allowlist auth needs an allow-list path")
		}
	case AuthUserPass:
		if c.Username == "" || c.Password == "" {
			return errors.New("userpass auth needs a username and password")
		}
		if len(c.Username) > 255 || len(c.Password) > 255 {
			return errors.New("username and password must be at most 255 bytes")
		}
	default:
		return fmt.Errorf("unknown auth mode %q (want %s or %s)", c.Auth, AuthAllowlist, AuthUserPass)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q (want console or json)", c.LogFormat)
	}

	if c.DialTimeout <= 0 {
		return errors.New("dial timeout must be > 0")
	}
	if c.NegotiationTimeout < 0 {
		return errors.New("negotiation timeout must be >= 0")
	}
	return nil
}
