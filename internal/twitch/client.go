package twitch

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sombot/internal/oauth"
	"sombot/pkg/logging"
)

// DefaultServerAddr is Twitch's IRC endpoint, TLS only.
const DefaultServerAddr = "irc.chat.twitch.tv:6697"

// Twitch allows 20 messages per 30 seconds for regular accounts.
const (
	rateLimitMessages = 20
	rateLimitWindow   = 30 * time.Second
)

// ErrLoginFailed is returned when the server rejects the PASS credentials.
// The caller should obtain a fresh token and reconnect.
var ErrLoginFailed = errors.New("irc login authentication failed")

// TokenSource provides a current access token. Satisfied by oauth.Manager.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// MessageHandler receives every parsed server message except PING, which
// the client answers itself.
type MessageHandler func(msg *Message)

// DialFunc opens the transport connection. The default dials TLS.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// ClientConfig configures an IRC client.
type ClientConfig struct {
	// Addr defaults to DefaultServerAddr.
	Addr string
	// Nick is the bot account's login name.
	Nick string
	// Tokens supplies the PASS credential on every connect.
	Tokens TokenSource
	// Handler receives inbound messages. Optional.
	Handler MessageHandler
	// Dial overrides the transport, used in tests. Optional.
	Dial DialFunc
}

// Client is a connection to Twitch chat. Run drives the read loop; Say and
// Join may be called from any goroutine once Run has connected.
type Client struct {
	addr    string
	nick    string
	tokens  TokenSource
	handler MessageHandler
	dial    DialFunc
	limiter *rate.Limiter

	mu     sync.Mutex
	conn   net.Conn
	writer *bufio.Writer

	connected chan struct{}
	once      sync.Once
}

// NewClient creates a client. It does not connect; call Run.
func NewClient(cfg ClientConfig) *Client {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultServerAddr
	}
	dial := cfg.Dial
	if dial == nil {
		dial = dialTLS
	}
	return &Client{
		addr:      addr,
		nick:      strings.ToLower(cfg.Nick),
		tokens:    cfg.Tokens,
		handler:   cfg.Handler,
		dial:      dial,
		limiter:   rate.NewLimiter(rate.Every(rateLimitWindow/rateLimitMessages), rateLimitMessages),
		connected: make(chan struct{}),
	}
}

func dialTLS(ctx context.Context, addr string) (net.Conn, error) {
	d := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 10 * time.Second}}
	return d.DialContext(ctx, "tcp", addr)
}

// Run connects, authenticates, and reads messages until ctx is cancelled or
// the connection drops. A login rejection is retried exactly once with a
// freshly obtained token; a second rejection returns ErrLoginFailed so the
// operator can re-run the device flow.
func (c *Client) Run(ctx context.Context) error {
	err := c.runOnce(ctx)
	if errors.Is(err, ErrLoginFailed) {
		logging.Warn("IRC", "Login rejected, retrying once with a fresh token")
		err = c.runOnce(ctx)
	}
	return err
}

func (c *Client) runOnce(ctx context.Context) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("no usable token for irc login: %w", err)
	}

	conn, err := c.dial(ctx, c.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.writer = nil
		c.mu.Unlock()
		conn.Close()
	}()

	// Close the connection when ctx ends so the blocked read returns.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	logging.Info("IRC", "Connected to %s as %s (token %s)", c.addr, c.nick, oauth.NewRedactedToken(token))

	if err := c.sendRaw("CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership"); err != nil {
		return err
	}
	if err := c.sendRaw("PASS oauth:" + token); err != nil {
		return err
	}
	if err := c.sendRaw("NICK " + c.nick); err != nil {
		return err
	}

	return c.readLoop(ctx, conn)
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)

	for scanner.Scan() {
		msg := ParseMessage(scanner.Text())
		if msg == nil {
			continue
		}

		switch msg.Command {
		case "PING":
			if err := c.sendRaw("PONG :" + msg.Text()); err != nil {
				return err
			}
			continue
		case "001":
			// Welcome: login accepted.
			c.once.Do(func() { close(c.connected) })
			logging.Info("IRC", "Login accepted for %s", c.nick)
		case "NOTICE":
			if isLoginFailure(msg.Text()) {
				logging.Warn("IRC", "Server notice: %s", msg.Text())
				return ErrLoginFailed
			}
		case "RECONNECT":
			logging.Info("IRC", "Server requested reconnect")
			return fmt.Errorf("server requested reconnect")
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("connection lost: %w", err)
	}
	return fmt.Errorf("connection closed by server")
}

// isLoginFailure matches the pre-001 NOTICE texts Twitch uses for bad
// credentials.
func isLoginFailure(text string) bool {
	switch text {
	case "Login authentication failed", "Improperly formatted auth", "Invalid NICK":
		return true
	}
	return false
}

// WaitConnected blocks until login is accepted or ctx ends.
func (c *Client) WaitConnected(ctx context.Context) error {
	select {
	case <-c.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join enters a channel. Channel names go on the wire lowercased with a
// '#' prefix.
func (c *Client) Join(channel string) error {
	return c.sendRaw("JOIN #" + normalizeChannel(channel))
}

// Say sends a chat message to a channel, waiting on the outbound rate
// limiter first.
func (c *Client) Say(ctx context.Context, channel, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.sendRaw("PRIVMSG #" + normalizeChannel(channel) + " :" + text)
}

func normalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimPrefix(channel, "#"))
}

func (c *Client) sendRaw(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writer == nil {
		return fmt.Errorf("not connected")
	}
	if _, err := c.writer.WriteString(line + "\r\n"); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return c.writer.Flush()
}
