// Package config loads cmd/telemqd's startup configuration (spec.md §1's
// expansion): listener addresses, TLS file paths, the session store
// backend selection, and the authenticator source.
package config

import (
	"flag"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listeners ListenersConfig `yaml:"listeners"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Sentry    SentryConfig    `yaml:"sentry"`
	LogLevel  string          `yaml:"log_level"`
}

type ListenersConfig struct {
	TCP       string         `yaml:"tcp"`
	TLS       string         `yaml:"tls"`
	WebSocket string         `yaml:"websocket"`
	WSS       string         `yaml:"wss"`
	WSPath    string         `yaml:"ws_path"`
	TLSFiles  TLSFilesConfig `yaml:"tls_files"`
}

type TLSFilesConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// StoreConfig selects and configures one of internal/sessionstore's
// backends. Backend is one of "file" (default), "pebble", "redis".
type StoreConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
	RedisKey string `yaml:"redis_key"`
}

// AuthConfig selects and configures one of internal/auth's backends.
// Source is one of "file" (default) or "http".
type AuthConfig struct {
	Source       string `yaml:"source"`
	FilePath     string `yaml:"file_path"`
	HTTPEndpoint string `yaml:"http_endpoint"`
	BrokerID     string `yaml:"broker_id"`
	ClusterID    string `yaml:"cluster_id"`
	AccountID    string `yaml:"account_id"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type SentryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

func defaults() *Config {
	return &Config{
		Listeners: ListenersConfig{
			TCP:    ":1883",
			WSPath: "/mqtt",
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    "./session_state_store.json",
		},
		Auth: AuthConfig{
			Source:   "file",
			FilePath: "./auth.yaml",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		LogLevel: "info",
	}
}

// Load reads and decodes the YAML file at path over a set of defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}
	return cfg, nil
}

// ParseFlags reads the binary's "-config" flag (the only CLI surface
// spec.md's expanded ambient stack needs) and loads the file it names.
func ParseFlags(args []string) (*Config, error) {
	fs := flag.NewFlagSet("telemqd", flag.ContinueOnError)
	path := fs.String("config", "./telemq.yaml", "path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return Load(*path)
}
