package users

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"sombot/internal/twitch"
	"sombot/pkg/logging"
)

// defaultWelcomeTemplates greet first-time chatters. {username} is replaced
// with the sender's display name.
var defaultWelcomeTemplates = []string{
	"Welcome to the channel, {username}! Thanks for dropping by!",
	"Hey {username}! Great to see you here for the first time!",
	"Welcome aboard, {username}! Hope you enjoy the stream!",
	"A wild {username} appears! Welcome to the stream!",
	"Welcome, {username}! Make yourself at home!",
	"Thanks for joining us, {username}! Glad to have you here!",
	"First time here, {username}? Welcome to the community!",
	"{username} has entered the chat! Welcome!",
	"Welcome to the stream, {username}! Don't forget to follow if you enjoy the content!",
	"Hello, {username}! Welcome to the channel!",
}

// Sender delivers welcome messages to chat.
type Sender interface {
	Say(ctx context.Context, channel, text string) error
}

// WelcomeService watches chat messages and greets users it has never seen
// before.
type WelcomeService struct {
	store  *Store
	sender Sender

	mu        sync.RWMutex
	enabled   bool
	templates []string

	// pick returns a random int in [0, n), overridable in tests.
	pick func(n int) int
}

// NewWelcomeService creates the service. Empty templates selects the
// built-in set.
func NewWelcomeService(store *Store, sender Sender, templates []string) *WelcomeService {
	if len(templates) == 0 {
		templates = defaultWelcomeTemplates
	}
	return &WelcomeService{
		store:     store,
		sender:    sender,
		enabled:   true,
		templates: templates,
		pick:      rand.Intn,
	}
}

// SetEnabled toggles greeting without dropping the seen-user tracking.
func (w *WelcomeService) SetEnabled(enabled bool) {
	w.mu.Lock()
	w.enabled = enabled
	w.mu.Unlock()
}

// ProcessMessage records the sender and greets them when this is their
// first message ever. Disabled service still records, so re-enabling does
// not greet regulars.
func (w *WelcomeService) ProcessMessage(ctx context.Context, msg *twitch.ChatMessage) error {
	if msg.UserID == "" {
		return nil
	}

	first, err := w.store.FirstTime(ctx, msg.UserID, msg.Login)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	w.mu.RLock()
	enabled := w.enabled
	w.mu.RUnlock()
	if !enabled {
		return nil
	}

	logging.Info("Users", "First-time chatter: %s (%s)", msg.Login, msg.UserID)
	return w.sender.Say(ctx, msg.Channel, w.welcomeText(msg.DisplayName))
}

func (w *WelcomeService) welcomeText(username string) string {
	w.mu.RLock()
	template := w.templates[w.pick(len(w.templates))]
	w.mu.RUnlock()
	return strings.ReplaceAll(template, "{username}", username)
}
