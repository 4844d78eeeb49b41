package twitch

import (
	"strings"
)

// Message is one parsed IRC line as Twitch sends it: optional tags,
// optional prefix, a command, and parameters with the trailing parameter
// already split out.
type Message struct {
	Tags    map[string]string
	Prefix  string
	Command string
	Params  []string
}

// ParseMessage parses a raw IRC line. The trailing CRLF must already be
// stripped. Returns nil for an empty line.
func ParseMessage(line string) *Message {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil
	}

	msg := &Message{}

	if strings.HasPrefix(line, "@") {
		rawTags, rest, ok := strings.Cut(line[1:], " ")
		if !ok {
			return nil
		}
		msg.Tags = parseTags(rawTags)
		line = rest
	}

	if strings.HasPrefix(line, ":") {
		prefix, rest, ok := strings.Cut(line[1:], " ")
		if !ok {
			return nil
		}
		msg.Prefix = prefix
		line = rest
	}

	// Everything after " :" is a single trailing parameter.
	head, trailing, hasTrailing := strings.Cut(line, " :")
	for _, p := range strings.Fields(head) {
		if msg.Command == "" {
			msg.Command = p
			continue
		}
		msg.Params = append(msg.Params, p)
	}
	if hasTrailing {
		msg.Params = append(msg.Params, trailing)
	}

	if msg.Command == "" {
		return nil
	}
	return msg
}

func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		key, value, _ := strings.Cut(pair, "=")
		tags[key] = unescapeTagValue(value)
	}
	return tags
}

// unescapeTagValue reverses IRCv3 tag value escaping.
func unescapeTagValue(v string) string {
	if !strings.Contains(v, "\\") {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i == len(v)-1 {
			b.WriteByte(v[i])
			continue
		}
		i++
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

// Nick extracts the sender's nickname from the prefix
// (nick!user@host or a bare server name).
func (m *Message) Nick() string {
	nick, _, _ := strings.Cut(m.Prefix, "!")
	return nick
}

// Channel returns the first parameter without its '#', which is the channel
// for PRIVMSG, JOIN, PART, and NOTICE.
func (m *Message) Channel() string {
	if len(m.Params) == 0 {
		return ""
	}
	return strings.TrimPrefix(m.Params[0], "#")
}

// Text returns the trailing parameter, the message body for PRIVMSG and
// NOTICE.
func (m *Message) Text() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Tag returns a tag value, empty when tags are absent.
func (m *Message) Tag(key string) string {
	return m.Tags[key]
}

// ChatMessage is a PRIVMSG lifted into the fields the bot cares about.
type ChatMessage struct {
	// ID is the message id tag, usable as a Helix reply parent.
	ID string
	// UserID is the sender's Twitch user id.
	UserID string
	// Login is the sender's login name.
	Login string
	// DisplayName is the sender's display name, falling back to the login.
	DisplayName string
	Channel     string
	Text        string
}

// AsChatMessage converts a PRIVMSG into a ChatMessage. Returns nil for any
// other command.
func (m *Message) AsChatMessage() *ChatMessage {
	if m.Command != "PRIVMSG" || len(m.Params) < 2 {
		return nil
	}
	cm := &ChatMessage{
		ID:          m.Tag("id"),
		UserID:      m.Tag("user-id"),
		Login:       m.Nick(),
		DisplayName: m.Tag("display-name"),
		Channel:     m.Channel(),
		Text:        m.Text(),
	}
	if cm.DisplayName == "" {
		cm.DisplayName = cm.Login
	}
	return cm
}
