package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sombot/pkg/logging"
)

const configFileName = "config.yaml"

// Load assembles the effective configuration: defaults, then config.yaml
// from the given directory (optional), then a .env file (optional), then
// process environment variables. Environment always wins so deployments can
// override a checked-in config file.
func Load(configDir string) (Config, error) {
	cfg := GetDefaultConfig()

	if err := loadFile(configDir, &cfg); err != nil {
		return Config{}, err
	}

	// A missing .env is fine; the process environment may carry everything.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Config", "Could not read .env file: %v", err)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(configDir string, cfg *Config) error {
	if configDir == "" {
		configDir = "."
	}
	path := filepath.Join(configDir, configFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("Config", "No %s found at %s, using defaults and environment", configFileName, path)
			return nil
		}
		return fmt.Errorf("error reading config from %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error parsing config from %s: %w", path, err)
	}
	logging.Info("Config", "Loaded configuration from %s", path)
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TWITCH_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("TWITCH_CHANNEL"); v != "" {
		cfg.Channel = v
	}
	if v := os.Getenv("TWITCH_BOT_USERNAME"); v != "" {
		cfg.BotUsername = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("COMMAND_PREFIX"); v != "" {
		cfg.CommandPrefix = v
	}
	if v := os.Getenv("WELCOME_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.WelcomeEnabled = b
		} else {
			logging.Warn("Config", "Ignoring invalid WELCOME_ENABLED value %q", v)
		}
	}
}

// Validate reports the first missing required field with guidance on how to
// set it.
func (c Config) Validate() error {
	missing := ""
	switch {
	case c.ClientID == "":
		missing = "TWITCH_CLIENT_ID"
	case c.Channel == "":
		missing = "TWITCH_CHANNEL"
	case c.BotUsername == "":
		missing = "TWITCH_BOT_USERNAME"
	}
	if missing != "" {
		return fmt.Errorf("%s is not set; run 'sombot gen-env' to create a sample .env file", missing)
	}

	// Channel names are sent on the IRC wire lowercased and without '#'.
	if strings.ContainsAny(c.Channel, " #") {
		return fmt.Errorf("channel %q must be a bare channel name without '#'", c.Channel)
	}
	return nil
}

// envTemplate is written by 'sombot gen-env'.
const envTemplate = `# Your Twitch client ID (get one from the Twitch Developer Dashboard)
TWITCH_CLIENT_ID=your_client_id_here
# The channel to join
TWITCH_CHANNEL=channel_name
# The bot's username
TWITCH_BOT_USERNAME=your_bot_username
# Optional: data directory for tokens and user data
# DATA_DIR=./data
# Optional: chat command prefix
# COMMAND_PREFIX=!
# Optional: greet first-time chatters
# WELCOME_ENABLED=true
`

// WriteEnvTemplate creates a sample .env file at path. It refuses to
// overwrite an existing file.
func WriteEnvTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}
	if err := os.WriteFile(path, []byte(envTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
