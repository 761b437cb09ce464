// Package config loads process settings. Sources apply in increasing
// precedence: built-in defaults, a YAML file, a .env file, environment
// variables, then command-line flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration
type Config struct {
	DB       string `yaml:"db"`
	Port     int    `yaml:"port"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`

	// Heartbeat is the storage poll interval while sync is down
	Heartbeat      time.Duration `yaml:"heartbeat"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	NATS  NATSConfig  `yaml:"nats"`
	Redis RedisConfig `yaml:"redis"`

	NoBrowser bool `yaml:"no_browser"`
	NoKeys    bool `yaml:"no_keys"`
}

// NATSConfig holds credentials for provider tag 1
type NATSConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// RedisConfig holds credentials for provider tag 2
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		DB:             "rally.db",
		Port:           8080,
		LogLevel:       "info",
		Heartbeat:      2 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// Options say where Load looks for its sources. Empty paths are skipped.
type Options struct {
	File    string
	EnvFile string
	Args    []string
	Getenv  func(string) string
}

// Load builds a Config from every source in opts
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		if err := cfg.loadFile(opts.File); err != nil {
			return cfg, err
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if opts.EnvFile != "" {
		env, err := godotenv.Read(opts.EnvFile)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read env file: %w", err)
		}
		// real environment wins over the file
		getenv = layered(getenv, env)
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}

	if err := cfg.applyFlags(opts.Args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func layered(primary func(string) string, fallback map[string]string) func(string) string {
	return func(key string) string {
		if v := primary(key); v != "" {
			return v
		}
		return fallback[key]
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("RALLY_DB", &c.DB)
	str("RALLY_BASE_URL", &c.BaseURL)
	str("RALLY_LOG_LEVEL", &c.LogLevel)
	str("RALLY_NATS_URL", &c.NATS.URL)
	str("RALLY_NATS_TOKEN", &c.NATS.Token)
	str("RALLY_REDIS_ADDR", &c.Redis.Addr)
	str("RALLY_REDIS_PASSWORD", &c.Redis.Password)

	for key, dst := range map[string]*int{"RALLY_PORT": &c.Port, "RALLY_REDIS_DB": &c.Redis.DB} {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	for key, dst := range map[string]*time.Duration{"RALLY_HEARTBEAT": &c.Heartbeat, "RALLY_CONNECT_TIMEOUT": &c.ConnectTimeout} {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// applyFlags overrides only flags that were set on the command line
func (c *Config) applyFlags(args []string) error {
	fs := flag.NewFlagSet("rallyoverlay", flag.ContinueOnError)
	fs.String("config", "", "Path to YAML config file")
	fs.String("env", "", "Path to .env file")
	db := fs.String("db", c.DB, "Database path")
	port := fs.Int("port", c.Port, "HTTP server port")
	baseURL := fs.String("base-url", c.BaseURL, "Base URL for overlay links and QR codes (default: auto-detect)")
	logLevel := fs.String("loglevel", c.LogLevel, "Log level: debug, info, warn, error")
	natsURL := fs.String("nats", c.NATS.URL, "NATS server URL")
	redisAddr := fs.String("redis", c.Redis.Addr, "Redis address")
	noBrowser := fs.Bool("no-browser", c.NoBrowser, "Don't open the setup page on startup")
	noKeys := fs.Bool("no-keys", c.NoKeys, "Disable keyboard shortcuts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			c.DB = *db
		case "port":
			c.Port = *port
		case "base-url":
			c.BaseURL = *baseURL
		case "loglevel":
			c.LogLevel = *logLevel
		case "nats":
			c.NATS.URL = *natsURL
		case "redis":
			c.Redis.Addr = *redisAddr
		case "no-browser":
			c.NoBrowser = *noBrowser
		case "no-keys":
			c.NoKeys = *noKeys
		}
	})
	return nil
}

// Validate rejects settings the process cannot start with
func (c Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat must be positive")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	return nil
}

// FilePaths pulls -config and -env out of args so the files can be read
// before the rest of the flags are applied
func FilePaths(args []string) (file, envFile string) {
	envFile = ".env"
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(strings.TrimLeft(args[i], "-"), "=")
		if name != "config" && name != "env" {
			continue
		}
		if !hasValue && i+1 < len(args) {
			i++
			value = args[i]
		}
		if name == "config" {
			file = value
		} else {
			envFile = value
		}
	}
	return file, envFile
}
