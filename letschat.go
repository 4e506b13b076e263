// Package letschat provides the Go client SDK for the Let's Chat backend.
//
// It covers the REST API (chats, messages, groups, auth) and the realtime
// push channel, plus a conversation Store that keeps both consistent.
//
// Example:
//
//	client := letschat.NewClient(token)
//	chats, _ := client.ListChats(ctx)
//
//	rt := client.Realtime(&letschat.RealtimeConfig{Token: token})
//	store := letschat.NewStore(client, rt, session, nil)
//	store.Bind(rt)
//	store.LoadChats(ctx)
package letschat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://letschat-backend-ryk4.onrender.com/api"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the typed REST client. All failures come back as the sentinel
// taxonomy wrapping an *APIError; callers never see transport detail beyond
// status classification.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a new Let's Chat client.
// token is optional: pass "" before login and call SetToken afterwards.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets or updates the bearer token (e.g. after Login).
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Realtime creates a push-channel client bound to the same host.
func (c *Client) Realtime(config *RealtimeConfig) *RealtimeClient {
	cfg := RealtimeConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Token == "" {
		cfg.Token = c.token
	}
	cfg.defaults()
	return &RealtimeClient{
		baseURL:    c.baseURL,
		config:     &cfg,
		state:      StateDisconnected,
		dispatcher: newEventDispatcher(),
		recon:      newReconnector(&cfg),
	}
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var wire struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &wire) == nil && wire.Message != "" {
			apiErr.Message = wire.Message
		}
		return nil, apiErr
	}
	return data, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// wrap converts a raw request error into the sentinel taxonomy.
func wrap(err error, fallback error) error {
	if apiErr, ok := err.(*APIError); ok {
		return classify(apiErr, fallback)
	}
	return fmt.Errorf("%w: %v", fallback, err)
}

// ============================================================================
// Auth
// ============================================================================

// Login authenticates and returns the user including its bearer token.
// The returned token is also installed on the client.
func (c *Client) Login(ctx context.Context, opts *LoginOptions) (*User, error) {
	data, err := c.doRequest(ctx, "POST", "/user/login", opts, nil)
	if err != nil {
		return nil, wrap(err, ErrForbidden)
	}
	user, err := decodeJSON[User](data)
	if err != nil {
		return nil, err
	}
	c.token = user.Token
	return user, nil
}

// Register creates an account and returns the authenticated user.
func (c *Client) Register(ctx context.Context, opts *RegisterOptions) (*User, error) {
	data, err := c.doRequest(ctx, "POST", "/user", opts, nil)
	if err != nil {
		return nil, wrap(err, ErrForbidden)
	}
	user, err := decodeJSON[User](data)
	if err != nil {
		return nil, err
	}
	c.token = user.Token
	return user, nil
}

// SearchUsers finds users by name or email fragment.
func (c *Client) SearchUsers(ctx context.Context, search string) ([]User, error) {
	data, err := c.doRequest(ctx, "GET", "/user", nil, map[string]string{"search": search})
	if err != nil {
		return nil, wrap(err, ErrFetchFailed)
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to unmarshal users: %w", err)
	}
	return users, nil
}

// ============================================================================
// Chats
// ============================================================================

// ListChats fetches the authoritative chat list for the current identity.
func (c *Client) ListChats(ctx context.Context) ([]*Chat, error) {
	data, err := c.doRequest(ctx, "GET", "/chat", nil, nil)
	if err != nil {
		return nil, wrap(err, ErrFetchFailed)
	}
	var chats []*Chat
	if err := json.Unmarshal(data, &chats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chats: %w", err)
	}
	return chats, nil
}

// AccessChat opens (creating if needed) the 1:1 chat with userID.
func (c *Client) AccessChat(ctx context.Context, userID string) (*Chat, error) {
	data, err := c.doRequest(ctx, "POST", "/chat", map[string]string{"userId": userID}, nil)
	if err != nil {
		return nil, wrap(err, ErrFetchFailed)
	}
	return decodeJSON[Chat](data)
}

// CreateGroup creates a group chat with the given members.
func (c *Client) CreateGroup(ctx context.Context, opts *CreateGroupOptions) (*Chat, error) {
	data, err := c.doRequest(ctx, "POST", "/chat/group", opts, nil)
	if err != nil {
		return nil, wrap(err, ErrFetchFailed)
	}
	return decodeJSON[Chat](data)
}

// RenameGroup renames a group chat. Admin-gated server-side.
func (c *Client) RenameGroup(ctx context.Context, chatID, name string) (*Chat, error) {
	data, err := c.doRequest(ctx, "PUT", "/chat/rename", map[string]string{
		"chatId": chatID, "chatName": name,
	}, nil)
	if err != nil {
		return nil, wrap(err, ErrForbidden)
	}
	return decodeJSON[Chat](data)
}

// AddToGroup adds a member. Admin-gated server-side.
func (c *Client) AddToGroup(ctx context.Context, chatID, userID string) (*Chat, error) {
	data, err := c.doRequest(ctx, "PUT", "/chat/groupadd", map[string]string{
		"chatId": chatID, "userId": userID,
	}, nil)
	if err != nil {
		return nil, wrap(err, ErrForbidden)
	}
	return decodeJSON[Chat](data)
}

// RemoveFromGroup removes a member. Admin-gated server-side.
func (c *Client) RemoveFromGroup(ctx context.Context, chatID, userID string) (*Chat, error) {
	data, err := c.doRequest(ctx, "PUT", "/chat/groupremove", map[string]string{
		"chatId": chatID, "userId": userID,
	}, nil)
	if err != nil {
		return nil, wrap(err, ErrForbidden)
	}
	return decodeJSON[Chat](data)
}

// GenerateJoinLink returns a shareable invite link for a group chat.
func (c *Client) GenerateJoinLink(ctx context.Context, chatID string) (*JoinLink, error) {
	data, err := c.doRequest(ctx, "POST", "/chat/generate-link/"+chatID, nil, nil)
	if err != nil {
		return nil, wrap(err, ErrFetchFailed)
	}
	return decodeJSON[JoinLink](data)
}

// JoinGroup joins a group chat via its invite id.
func (c *Client) JoinGroup(ctx context.Context, chatID string) (*Chat, error) {
	data, err := c.doRequest(ctx, "POST", "/chat/join/"+chatID, nil, nil)
	if err != nil {
		return nil, wrap(err, ErrFetchFailed)
	}
	return decodeJSON[Chat](data)
}

// DeleteChat deletes (or marks deleted-for-self) a chat.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	if _, err := c.doRequest(ctx, "DELETE", "/chat/"+chatID, nil, nil); err != nil {
		return wrap(err, ErrFetchFailed)
	}
	return nil
}

// ============================================================================
// Messages
// ============================================================================

// ListMessages fetches the full ordered message list for a chat.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]*Message, error) {
	data, err := c.doRequest(ctx, "GET", "/message/"+chatID, nil, nil)
	if err != nil {
		return nil, wrap(err, ErrFetchFailed)
	}
	var msgs []*Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return msgs, nil
}

// SendMessage posts a message and returns the server-acknowledged copy.
func (c *Client) SendMessage(ctx context.Context, opts *SendMessageOptions) (*Message, error) {
	data, err := c.doRequest(ctx, "POST", "/message", opts, nil)
	if err != nil {
		return nil, wrap(err, ErrSendFailed)
	}
	return decodeJSON[Message](data)
}

// DeleteMessage deletes a message server-side.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	if _, err := c.doRequest(ctx, "DELETE", "/message/"+messageID, nil, nil); err != nil {
		return wrap(err, ErrFetchFailed)
	}
	return nil
}

// MarkViewed records that userID has viewed a view-once message.
func (c *Client) MarkViewed(ctx context.Context, messageID, userID string) error {
	if _, err := c.doRequest(ctx, "PUT", "/message/viewed/"+messageID, map[string]string{
		"userId": userID,
	}, nil); err != nil {
		return wrap(err, ErrFetchFailed)
	}
	return nil
}
