package config

import "path/filepath"

// Config is the top-level configuration for sombot.
type Config struct {
	// ClientID is the Twitch application client id used for the device-code
	// flow. There is no client secret; public clients authenticate with the
	// id alone.
	ClientID string `yaml:"clientId"`

	// Channel is the chat channel the bot joins.
	Channel string `yaml:"channel"`

	// BotUsername is the account the bot authenticates as.
	BotUsername string `yaml:"botUsername"`

	// DataDir holds the token file and the known-users database.
	DataDir string `yaml:"dataDir,omitempty"`

	// CommandPrefix introduces chat commands (default: "!").
	CommandPrefix string `yaml:"commandPrefix,omitempty"`

	// Scopes requested during authorization.
	Scopes []string `yaml:"scopes,omitempty"`

	// WelcomeEnabled controls first-time-chatter greetings.
	WelcomeEnabled bool `yaml:"welcomeEnabled"`

	// WelcomeTemplates override the built-in greeting messages. Each may
	// contain a {username} placeholder.
	WelcomeTemplates []string `yaml:"welcomeTemplates,omitempty"`
}

// DefaultScopes covers reading chat, sending chat, resolving the bot's own
// user id, and sending replies through the Helix API.
func DefaultScopes() []string {
	return []string{
		"chat:read",
		"chat:edit",
		"user:read:email",
		"user:write:chat",
	}
}

// GetDefaultConfig returns the configuration defaults applied before any
// file or environment values.
func GetDefaultConfig() Config {
	return Config{
		DataDir:        "./data",
		CommandPrefix:  "!",
		Scopes:         DefaultScopes(),
		WelcomeEnabled: true,
	}
}

// TokenPath is where the OAuth token record is persisted.
func (c Config) TokenPath() string {
	return filepath.Join(c.DataDir, "oauth_token.json")
}

// UsersDBPath is where the known-users database lives.
func (c Config) UsersDBPath() string {
	return filepath.Join(c.DataDir, "users.db")
}
