package commands

import (
	"fmt"
	"strings"
	"time"

	"sombot/internal/twitch"
)

// PingCommand answers with a pong that echoes the sender.
type PingCommand struct{}

func (PingCommand) Execute(msg *twitch.ChatMessage, _ []string) (string, error) {
	return fmt.Sprintf("Pong! Hi %s", msg.DisplayName), nil
}

func (PingCommand) Help() string {
	return "Responds with Pong!"
}

// UptimeCommand reports how long the bot has been running.
type UptimeCommand struct {
	startedAt time.Time
}

// NewUptimeCommand starts the uptime clock now.
func NewUptimeCommand() *UptimeCommand {
	return &UptimeCommand{startedAt: time.Now()}
}

func (c *UptimeCommand) Execute(_ *twitch.ChatMessage, _ []string) (string, error) {
	elapsed := time.Since(c.startedAt)

	hours := int(elapsed.Hours())
	minutes := int(elapsed.Minutes()) % 60
	seconds := int(elapsed.Seconds()) % 60

	return fmt.Sprintf("Bot has been running for %dh %dm %ds", hours, minutes, seconds), nil
}

func (c *UptimeCommand) Help() string {
	return "Shows how long the bot has been running"
}

// HelpCommand lists commands or shows one command's help text.
type HelpCommand struct {
	prefix   string
	registry *Registry
}

// NewHelpCommand creates a help command backed by the registry, so newly
// registered commands show up without extra bookkeeping.
func NewHelpCommand(prefix string, registry *Registry) *HelpCommand {
	return &HelpCommand{prefix: prefix, registry: registry}
}

func (c *HelpCommand) Execute(_ *twitch.ChatMessage, args []string) (string, error) {
	if len(args) == 0 {
		names := c.registry.Names()
		for i, name := range names {
			names[i] = c.prefix + name
		}
		return "Available commands: " + strings.Join(names, ", "), nil
	}

	name := strings.ToLower(args[0])
	cmd, ok := c.registry.Get(name)
	if !ok {
		return fmt.Sprintf("Unknown command: %s%s", c.prefix, name), nil
	}
	return cmd.Help(), nil
}

func (c *HelpCommand) Help() string {
	return "Shows help information for available commands"
}
