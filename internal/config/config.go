// Package config handles casita configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/casita/config.yaml, /etc/casita/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "casita", "config.yaml"))
	}

	paths = append(paths, "/etc/casita/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all casita configuration. Both binaries share the same
// file; the intent service ignores the database section.
type Config struct {
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Database  DatabaseConfig `yaml:"database"`
	Service   ServiceConfig  `yaml:"service"`
	DataDir   string         `yaml:"data_dir"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // "text" (default) or "json"
}

// MQTTConfig defines the broker connection settings.
type MQTTConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Keepalive int    `yaml:"keepalive"` // seconds
}

// BrokerURL renders the mqtt:// URL autopaho expects.
func (m MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("mqtt://%s:%d", m.Host, m.Port)
}

// DatabaseConfig defines the persistence store settings. The store is
// embedded SQLite; Name is the database file stem under DataDir unless
// Path points at an explicit file. Host, User, and Pass are accepted so
// compose files written for the networked-SQL deployment keep loading,
// but the embedded store does not use them.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// ServiceConfig identifies this process on the system/* topic tree.
type ServiceConfig struct {
	// Name sets the <requester> segment for system/* requests.
	Name string `yaml:"name"`
	// RequireSnapshot gates intent processing until the snapshot
	// mirror is ready.
	RequireSnapshot bool `yaml:"require_snapshot"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// FromEnv returns the default configuration overridden by environment
// variables only. This is the normal mode inside a container, where no
// config file is mounted.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:      "mosquitto",
			Port:      1883,
			Keepalive: 60,
		},
		Database: DatabaseConfig{
			Name: "devices_db",
		},
		Service: ServiceConfig{
			Name:            "intent-service",
			RequireSnapshot: true,
		},
		DataDir: "data",
	}
}

// applyEnv overlays the historical environment keys onto empty or
// default fields. YAML values win; the env keys exist so container
// deployments configured entirely through the environment keep working.
func (c *Config) applyEnv() {
	if v := os.Getenv("MQTT_HOST"); v != "" {
		c.MQTT.Host = v
	}
	if v := os.Getenv("MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTT.Port = port
		}
	}
	if v := os.Getenv("MQTT_USER"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASS"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("MQTT_KEEPALIVE"); v != "" {
		if ka, err := strconv.Atoi(v); err == nil {
			c.MQTT.Keepalive = ka
		}
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASS"); v != "" {
		c.Database.Pass = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		c.Service.Name = v
	}
	if v := os.Getenv("REQUIRE_SNAPSHOT"); v != "" {
		c.Service.RequireSnapshot = parseBool(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// DatabasePath resolves the SQLite file for the persistence store.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, c.Database.Name+".db")
}

// parseBool accepts the truthy spellings commonly found in container
// environment files.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
