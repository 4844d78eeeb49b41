// Package bot wires the OAuth manager, the chat connection, the Helix
// client, and the chat features into one runnable unit.
package bot

import (
	"context"
	"fmt"

	"sombot/internal/commands"
	"sombot/internal/config"
	"sombot/internal/oauth"
	"sombot/internal/twitch"
	"sombot/internal/users"
	"sombot/pkg/logging"
)

// onlineMessage announces the bot after joining its channel.
const onlineMessage = "SOM Chatbot is now online!"

// Options carries test overrides; zero value is production behavior.
type Options struct {
	// IRCAddr overrides the chat server address.
	IRCAddr string
	// IRCDial overrides the chat transport.
	IRCDial twitch.DialFunc
	// HelixBaseURL overrides the API root.
	HelixBaseURL string
}

// Bot is the assembled chat bot.
type Bot struct {
	cfg     config.Config
	manager *oauth.Manager
	store   *users.Store
	welcome *users.WelcomeService
	handler *commands.Handler
	irc     *twitch.Client
	helix   *twitch.HelixClient
}

// New assembles a bot from the configuration and an authenticated manager.
func New(cfg config.Config, manager *oauth.Manager, opts Options) (*Bot, error) {
	store, err := users.OpenStore(cfg.UsersDBPath())
	if err != nil {
		return nil, err
	}

	b := &Bot{
		cfg:     cfg,
		manager: manager,
		store:   store,
	}

	b.helix = twitch.NewHelixClient(manager.ClientID(), manager, opts.HelixBaseURL, nil)

	b.irc = twitch.NewClient(twitch.ClientConfig{
		Addr:    opts.IRCAddr,
		Nick:    cfg.BotUsername,
		Tokens:  manager,
		Dial:    opts.IRCDial,
		Handler: b.handleMessage,
	})

	b.welcome = users.NewWelcomeService(store, b.irc, cfg.WelcomeTemplates)
	b.welcome.SetEnabled(cfg.WelcomeEnabled)

	registry := commands.NewRegistry()
	registry.Register("ping", commands.PingCommand{})
	registry.Register("uptime", commands.NewUptimeCommand())
	registry.Register("8ball", commands.NewEightBallCommand())
	registry.Register("help", commands.NewHelpCommand(cfg.CommandPrefix, registry))

	b.handler = commands.NewHandler(registry, &responder{bot: b}, cfg.CommandPrefix, cfg.BotUsername)
	logging.Info("Bot", "Registered commands: %v (prefix %q)", registry.Names(), cfg.CommandPrefix)

	return b, nil
}

// Run connects to chat and serves until ctx is cancelled or the connection
// fails beyond recovery. The token is kept fresh in the background for the
// whole run.
func (b *Bot) Run(ctx context.Context) error {
	defer b.store.Close()

	b.manager.StartAutoRefresh(ctx)

	ircDone := make(chan error, 1)
	go func() { ircDone <- b.irc.Run(ctx) }()

	connected := make(chan struct{})
	go func() {
		if b.irc.WaitConnected(ctx) == nil {
			close(connected)
		}
	}()

	// A permanently rejected login ends Run before the welcome arrives;
	// surface that instead of waiting out the context.
	select {
	case err := <-ircDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-connected:
	}

	if err := b.irc.Join(b.cfg.Channel); err != nil {
		return fmt.Errorf("failed to join %s: %w", b.cfg.Channel, err)
	}
	logging.Info("Bot", "Joined channel %s", b.cfg.Channel)

	if err := b.irc.Say(ctx, b.cfg.Channel, onlineMessage); err != nil {
		logging.Warn("Bot", "Failed to send greeting: %v", err)
	}

	err := <-ircDone
	if ctx.Err() != nil {
		logging.Info("Bot", "Shutting down")
		return nil
	}
	return err
}

// handleMessage runs on the IRC read loop; feature work happens in its own
// goroutine so a slow API call cannot stall inbound parsing.
func (b *Bot) handleMessage(msg *twitch.Message) {
	cm := msg.AsChatMessage()
	if cm == nil {
		return
	}

	go func() {
		ctx := context.Background()
		if err := b.welcome.ProcessMessage(ctx, cm); err != nil {
			logging.Error("Bot", err, "Welcome processing failed for %s", cm.Login)
		}
		b.handler.Handle(ctx, cm)
	}()
}

// responder sends command responses as threaded Helix replies, falling back
// to a plain IRC message when the API call fails.
type responder struct {
	bot *Bot
}

func (r *responder) Reply(ctx context.Context, channel, text, replyTo string) error {
	if replyTo != "" {
		if _, err := r.bot.helix.SendMessage(ctx, channel, text, replyTo); err == nil {
			return nil
		} else {
			logging.Warn("Bot", "Helix reply failed, falling back to IRC: %v", err)
		}
	}
	return r.bot.irc.Say(ctx, channel, text)
}
