package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultHelixBaseURL is the Twitch Helix API root.
const DefaultHelixBaseURL = "https://api.twitch.tv/helix"

// HelixClient calls the Twitch Helix API for the chat operations the bot
// needs: resolving logins to user ids and sending messages or replies.
type HelixClient struct {
	baseURL    string
	clientID   string
	tokens     TokenSource
	httpClient *http.Client

	mu        sync.Mutex
	botUserID string
	userCache map[string]string
}

// NewHelixClient creates a Helix client. baseURL and httpClient may be
// empty/nil for production defaults.
func NewHelixClient(clientID string, tokens TokenSource, baseURL string, httpClient *http.Client) *HelixClient {
	if baseURL == "" {
		baseURL = DefaultHelixBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HelixClient{
		baseURL:    baseURL,
		clientID:   clientID,
		tokens:     tokens,
		httpClient: httpClient,
		userCache:  make(map[string]string),
	}
}

type userResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Login       string `json:"login"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}

type sendMessageRequest struct {
	BroadcasterID        string `json:"broadcaster_id"`
	SenderID             string `json:"sender_id"`
	Message              string `json:"message"`
	ReplyParentMessageID string `json:"reply_parent_message_id,omitempty"`
}

type sendMessageResponse struct {
	Data []struct {
		MessageID  string `json:"message_id"`
		IsSent     bool   `json:"is_sent"`
		DropReason *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"drop_reason"`
	} `json:"data"`
}

// BotUserID resolves and caches the authenticated account's user id.
func (h *HelixClient) BotUserID(ctx context.Context) (string, error) {
	h.mu.Lock()
	cached := h.botUserID
	h.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var users userResponse
	if err := h.do(ctx, http.MethodGet, "/users", nil, nil, &users); err != nil {
		return "", fmt.Errorf("failed to resolve bot user id: %w", err)
	}
	if len(users.Data) == 0 {
		return "", fmt.Errorf("no user data returned for the authenticated account")
	}

	h.mu.Lock()
	h.botUserID = users.Data[0].ID
	h.mu.Unlock()
	return users.Data[0].ID, nil
}

// UserID resolves a login name to a user id, with caching.
func (h *HelixClient) UserID(ctx context.Context, login string) (string, error) {
	h.mu.Lock()
	cached := h.userCache[login]
	h.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	query := url.Values{"login": {login}}
	var users userResponse
	if err := h.do(ctx, http.MethodGet, "/users", query, nil, &users); err != nil {
		return "", fmt.Errorf("failed to resolve user %s: %w", login, err)
	}
	if len(users.Data) == 0 {
		return "", fmt.Errorf("no such user: %s", login)
	}

	h.mu.Lock()
	h.userCache[login] = users.Data[0].ID
	h.mu.Unlock()
	return users.Data[0].ID, nil
}

// SendMessage posts a chat message to a channel. replyTo, when non-empty,
// is the parent message id and makes this a threaded reply. Returns the id
// of the sent message.
func (h *HelixClient) SendMessage(ctx context.Context, channel, text, replyTo string) (string, error) {
	senderID, err := h.BotUserID(ctx)
	if err != nil {
		return "", err
	}
	broadcasterID, err := h.UserID(ctx, normalizeChannel(channel))
	if err != nil {
		return "", err
	}

	body := sendMessageRequest{
		BroadcasterID:        broadcasterID,
		SenderID:             senderID,
		Message:              text,
		ReplyParentMessageID: replyTo,
	}

	var resp sendMessageResponse
	if err := h.do(ctx, http.MethodPost, "/chat/messages", nil, body, &resp); err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("send message returned no data")
	}

	sent := resp.Data[0]
	if !sent.IsSent {
		if sent.DropReason != nil {
			return "", fmt.Errorf("message dropped: %s (%s)", sent.DropReason.Code, sent.DropReason.Message)
		}
		return "", fmt.Errorf("message not sent")
	}
	return sent.MessageID, nil
}

// do performs one authenticated API call and decodes the response into out.
func (h *HelixClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	token, err := h.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	u := h.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", h.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("helix %s %s returned %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
