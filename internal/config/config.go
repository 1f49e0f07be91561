package config

import (
	goerrs "errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAddress = "localhost"
	DefaultPort    = 25555

	EnvApplicationId = "DISCORD_APPLICATION_ID"
	EnvAddress       = "VOICE_BRIDGE_ADDRESS"
	EnvPort          = "VOICE_BRIDGE_PORT"
	EnvLogFile       = "VOICE_BRIDGE_LOG_FILE"
	EnvUserId        = "VOICE_BRIDGE_USER_ID"
	EnvUsername      = "VOICE_BRIDGE_USERNAME"
	EnvAppEnv        = "APP_ENV"
)

type UserConfig struct {
	Id            int64  `yaml:"id"`
	Username      string `yaml:"username"`
	Discriminator string `yaml:"discriminator"`
}

// Config is everything the bridge needs at startup. An empty Address or a
// zero Port means the operator is asked for it on the console.
type Config struct {
	ApplicationId int64 `yaml:"application_id"`

	Address string `yaml:"address"`
	Port    uint16 `yaml:"port"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	TickInterval time.Duration `yaml:"tick_interval"`

	LogFile     string `yaml:"log_file"`
	Development bool   `yaml:"development"`

	User UserConfig `yaml:"user"`
}

func DefaultConfig() *Config {
	return &Config{
		ReadTimeout:  250 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		User: UserConfig{
			Username:      "player",
			Discriminator: "0000",
		},
	}
}

// LoadFrom reads a YAML config file over the defaults. An empty path
// returns the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Load builds the config from defaults, the YAML file at path, .env and
// then the environment.
func Load(path string) (*Config, error) {
	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() error {
	if raw, has := os.LookupEnv(EnvApplicationId); has {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvApplicationId, raw, err)
		}
		c.ApplicationId = id
	}

	if raw, has := os.LookupEnv(EnvAddress); has {
		c.Address = raw
	}

	if raw, has := os.LookupEnv(EnvPort); has {
		port, err := strconv.ParseUint(raw, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, raw, err)
		}
		c.Port = uint16(port)
	}

	if raw, has := os.LookupEnv(EnvLogFile); has {
		c.LogFile = raw
	}

	if raw, has := os.LookupEnv(EnvUserId); has {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvUserId, raw, err)
		}
		c.User.Id = id
	}

	if raw, has := os.LookupEnv(EnvUsername); has {
		c.User.Username = raw
	}

	if os.Getenv(EnvAppEnv) == "development" {
		c.Development = true
	}

	return nil
}

func (c *Config) Validate() error {
	if c.ApplicationId <= 0 {
		return fmt.Errorf("%s must be set to a positive application id", EnvApplicationId)
	}
	if c.ReadTimeout < 0 {
		return goerrs.New("read timeout cannot be negative")
	}
	if c.TickInterval < 0 {
		return goerrs.New("tick interval cannot be negative")
	}
	if c.User.Id < 0 {
		return goerrs.New("user id cannot be negative")
	}
	return nil
}
