// Package commands implements the chat command system: a registry of named
// commands, the built-in commands, and the handler that parses prefixed
// chat messages and dispatches them.
package commands

import (
	"sort"
	"sync"

	"sombot/internal/twitch"
)

// Command is one chat command. Execute returns the response to send, or
// an empty string when no response is needed.
type Command interface {
	Execute(msg *twitch.ChatMessage, args []string) (string, error)
	Help() string
}

// Registry holds the available commands. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command under the given name (without prefix).
func (r *Registry) Register(name string, cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = cmd
}

// Get looks up a command by name.
func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns all registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
