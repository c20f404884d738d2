// Package config loads the agent's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/minimib/internal/access"
	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/store"
)

// DefaultSubtree is the enterprise subtree granted by the default policy.
const DefaultSubtree = "1.3.6.1.3.28308"

type Config struct {
	Listen      string                  `yaml:"listen"`
	Agent       string                  `yaml:"agent"`
	Communities map[string]string       `yaml:"communities"`
	Access      map[string][]AccessRule `yaml:"access"`
	Schema      string                  `yaml:"schema"`
	Persistence PersistenceConfig       `yaml:"persistence"`
	Monitor     MonitorConfig           `yaml:"monitor"`
	Trap        TrapConfig              `yaml:"trap"`
	Mail        MailConfig              `yaml:"mail"`
	Notify      NotifyConfig            `yaml:"notify"`
	Metrics     MetricsConfig           `yaml:"metrics"`
	Alerts      AlertsConfig            `yaml:"alerts"`
}

type AccessRule struct {
	Subtree string   `yaml:"subtree"`
	Modes   []string `yaml:"modes"`
}

type PersistenceConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type MonitorConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Window       time.Duration `yaml:"window"`
	Sampled      string        `yaml:"sampled"`
	Threshold    string        `yaml:"threshold"`
	Manager      string        `yaml:"manager"`
	ManagerEmail string        `yaml:"manager_email"`
	Uptime       string        `yaml:"uptime"`
}

type TrapConfig struct {
	Disabled  bool          `yaml:"disabled"`
	Target    string        `yaml:"target"`
	Port      uint16        `yaml:"port"`
	Community string        `yaml:"community"`
	TrapOID   string        `yaml:"trap_oid"`
	Timeout   time.Duration `yaml:"timeout"`
}

type MailConfig struct {
	Disabled bool          `yaml:"disabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	From     string        `yaml:"from"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

type NotifyConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set.
	Addr string `yaml:"addr"`
}

type AlertsConfig struct {
	// DB is a SQLite file recording every alert when set.
	DB string `yaml:"db"`
}

// Load reads path, applies defaults and validates. An empty path yields
// the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(raw))
		decoder.KnownFields(true)
		// An empty file decodes to io.EOF and means all defaults.
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "0.0.0.0:161"
	}
	if c.Agent == "" {
		if host, err := os.Hostname(); err == nil {
			c.Agent = host
		}
	}
	if len(c.Communities) == 0 {
		c.Communities = map[string]string{
			"public":  "reader",
			"private": "writer",
		}
	}
	if len(c.Access) == 0 {
		c.Access = map[string][]AccessRule{
			"reader": {{Subtree: DefaultSubtree, Modes: []string{"read"}}},
			"writer": {{Subtree: DefaultSubtree, Modes: []string{"read", "write"}}},
		}
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = store.BackendFile
	}
	if c.Persistence.Path == "" {
		if c.Persistence.Backend == store.BackendSQLite {
			c.Persistence.Path = "mib_state.db"
		} else {
			c.Persistence.Path = "mib_state.json"
		}
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = 5 * time.Second
	}
	if c.Monitor.Window == 0 {
		c.Monitor.Window = time.Second
	}
	if c.Monitor.Sampled == "" {
		c.Monitor.Sampled = "cpuUsage"
	}
	if c.Monitor.Threshold == "" {
		c.Monitor.Threshold = "cpuThreshold"
	}
	if c.Monitor.Manager == "" {
		c.Monitor.Manager = "manager"
	}
	if c.Monitor.ManagerEmail == "" {
		c.Monitor.ManagerEmail = "managerEmail"
	}
	if c.Monitor.Uptime == "" {
		c.Monitor.Uptime = "upTime"
	}
	if c.Trap.Target == "" {
		c.Trap.Target = "127.0.0.1"
	}
	if c.Trap.Port == 0 {
		c.Trap.Port = 162
	}
	if c.Trap.Community == "" {
		c.Trap.Community = "public"
	}
	if c.Trap.TrapOID == "" {
		c.Trap.TrapOID = DefaultSubtree + ".2.1"
	}
	if c.Trap.Timeout == 0 {
		c.Trap.Timeout = 2 * time.Second
	}
	if c.Mail.Host == "" {
		c.Mail.Host = "localhost"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 1025
	}
	if c.Mail.From == "" {
		c.Mail.From = "minimib@example.com"
	}
	if c.Mail.Timeout == 0 {
		c.Mail.Timeout = 10 * time.Second
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 15 * time.Second
	}
}

func (c *Config) validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	for community, principal := range c.Communities {
		if _, ok := c.Access[principal]; !ok {
			return fmt.Errorf("communities.%s: principal %q has no access rules", community, principal)
		}
	}
	switch c.Persistence.Backend {
	case store.BackendFile, store.BackendSQLite:
	default:
		return fmt.Errorf("persistence.backend must be %q or %q, got %q", store.BackendFile, store.BackendSQLite, c.Persistence.Backend)
	}
	if c.Monitor.Interval < 0 || c.Monitor.Window < 0 {
		return fmt.Errorf("monitor.interval and monitor.window must be positive")
	}
	if _, err := mib.ParseOID(c.Trap.TrapOID); err != nil {
		return fmt.Errorf("trap.trap_oid: %w", err)
	}
	return nil
}

// Policy converts the access section into controller rules.
func (c *Config) Policy() (map[string][]access.Rule, error) {
	policy := make(map[string][]access.Rule, len(c.Access))
	for principal, rules := range c.Access {
		for i, r := range rules {
			subtree, err := mib.ParseOID(r.Subtree)
			if err != nil {
				return nil, fmt.Errorf("access.%s[%d].subtree: %w", principal, i, err)
			}
			var modes access.Mode
			for _, m := range r.Modes {
				mode, err := access.ParseMode(m)
				if err != nil {
					return nil, fmt.Errorf("access.%s[%d].modes: %w", principal, i, err)
				}
				modes |= mode
			}
			policy[principal] = append(policy[principal], access.Rule{Subtree: subtree, Modes: modes})
		}
	}
	return policy, nil
}
