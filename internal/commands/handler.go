package commands

import (
	"context"
	"strings"

	"sombot/internal/twitch"
	"sombot/pkg/logging"
)

// Responder sends command responses back to chat. replyTo, when non-empty,
// threads the response under the triggering message.
type Responder interface {
	Reply(ctx context.Context, channel, text, replyTo string) error
}

// Handler parses prefixed chat messages and dispatches them to registered
// commands.
type Handler struct {
	registry  *Registry
	responder Responder
	prefix    string
	botLogin  string
}

// NewHandler creates a handler. Messages sent by botLogin itself are
// ignored so the bot cannot trigger its own commands.
func NewHandler(registry *Registry, responder Responder, prefix, botLogin string) *Handler {
	return &Handler{
		registry:  registry,
		responder: responder,
		prefix:    prefix,
		botLogin:  strings.ToLower(botLogin),
	}
}

// Handle processes one chat message. Non-command messages and unknown
// commands are ignored; command errors are logged, never sent to chat.
func (h *Handler) Handle(ctx context.Context, msg *twitch.ChatMessage) {
	content := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(content, h.prefix) {
		return
	}
	if strings.ToLower(msg.Login) == h.botLogin {
		return
	}

	parts := strings.Fields(content[len(h.prefix):])
	if len(parts) == 0 {
		return
	}

	name := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := h.registry.Get(name)
	if !ok {
		logging.Debug("Commands", "Unknown command %q from %s", name, msg.Login)
		return
	}

	response, err := cmd.Execute(msg, args)
	if err != nil {
		logging.Error("Commands", err, "Command %q failed", name)
		return
	}
	if response == "" {
		return
	}

	if err := h.responder.Reply(ctx, msg.Channel, response, msg.ID); err != nil {
		logging.Warn("Commands", "Failed to send response for %q: %v", name, err)
	}
}
