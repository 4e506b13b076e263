package letschat

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ============================================================================
// Errors
// ============================================================================

// APIError is the uniform error shape returned by the Let's Chat backend.
// Status carries the HTTP status code (0 when the request never reached
// the server).
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Sentinel errors classifying failures for callers. Wrap with %w and test
// with errors.Is.
var (
	// ErrFetchFailed: a list/load call failed; state is unchanged and the
	// caller may retry.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrSendFailed: an optimistic message is left in place flagged failed.
	ErrSendFailed = errors.New("send failed")

	// ErrForbidden: a permission-gated mutation was rejected server-side.
	ErrForbidden = errors.New("action forbidden")

	// ErrNotFound: the target chat or message vanished server-side.
	ErrNotFound = errors.New("not found")

	// ErrTransportDown: the push channel is disconnected.
	ErrTransportDown = errors.New("transport disconnected")
)

// classify maps an APIError onto the sentinel taxonomy.
func classify(err *APIError, fallback error) error {
	switch err.Status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, err.Message)
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrForbidden, err.Message)
	default:
		return fmt.Errorf("%w: %s", fallback, err.Message)
	}
}

// ============================================================================
// Core model
// ============================================================================

// User is an identity supplied by the session boundary. Immutable from the
// store's perspective.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Token string `json:"token,omitempty"`
}

// Chat is a conversation entry. Updated in place by the store so consumers
// can hold references across reconciliations.
type Chat struct {
	ID            string   `json:"_id"`
	Name          string   `json:"chatName,omitempty"`
	IsGroup       bool     `json:"isGroupChat"`
	Users         []User   `json:"users"`
	LatestMessage *Message `json:"latestMessage,omitempty"`
	UnreadCount   int      `json:"unreadCount"`
	GroupAdmin    *User    `json:"groupAdmin,omitempty"`
	DeletedFor    []string `json:"deletedFor,omitempty"`
	CreatedAt     string   `json:"createdAt,omitempty"`
}

// Counterpart returns the non-self participant of a 1:1 chat, or nil for
// groups.
func (c *Chat) Counterpart(selfID string) *User {
	if c.IsGroup {
		return nil
	}
	for i := range c.Users {
		if c.Users[i].ID != selfID {
			return &c.Users[i]
		}
	}
	return nil
}

// MessageStatus tracks the optimistic-update lifecycle of a locally sent
// message.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusConfirmed MessageStatus = "confirmed"
	StatusFailed    MessageStatus = "failed"
)

// Message is a single chat message. ID is server-assigned and empty until
// acknowledgment; TempID stands in for a locally originated send until the
// server echo arrives.
type Message struct {
	ID        string    `json:"_id,omitempty"`
	TempID    string    `json:"tempId,omitempty"`
	ChatID    string    `json:"chatId,omitempty"`
	Chat      *Chat     `json:"chat,omitempty"`
	Sender    User      `json:"sender"`
	Content   string    `json:"content"`
	IsFile    bool      `json:"isFile,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	ViewOnce  bool      `json:"viewOnce,omitempty"`
	ViewedBy  []string  `json:"viewedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// Status is local bookkeeping, never sent on the wire.
	Status MessageStatus `json:"-"`
}

// ChatRef resolves the owning chat id from either the flat field or the
// embedded chat object (push payloads carry the full chat).
func (m *Message) ChatRef() string {
	if m.ChatID != "" {
		return m.ChatID
	}
	if m.Chat != nil {
		return m.Chat.ID
	}
	return ""
}

// Key returns the identifier consumers should key on: the server id once
// resolved, the temp id before that.
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.TempID
}

// ViewedByUser reports whether userID is present in the viewedBy set.
func (m *Message) ViewedByUser(userID string) bool {
	for _, id := range m.ViewedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Notification references a message that arrived while its chat was not
// active. Cleared when the user activates that chat.
type Notification struct {
	Message *Message
	ChatID  string
}

// ============================================================================
// Request options
// ============================================================================

// SendMessageOptions describes an outgoing message.
type SendMessageOptions struct {
	ChatID   string `json:"chatId"`
	Content  string `json:"content"`
	IsFile   bool   `json:"isFile,omitempty"`
	FileName string `json:"fileName,omitempty"`
	ViewOnce bool   `json:"viewOnce,omitempty"`
}

// CreateGroupOptions describes a new group chat.
type CreateGroupOptions struct {
	Name    string   `json:"name"`
	UserIDs []string `json:"users"`
}

// LoginOptions are the credentials for Login.
type LoginOptions struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterOptions are the fields for Register.
type RegisterOptions struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// JoinLink is the shareable invite for a group chat.
type JoinLink struct {
	Link string `json:"link"`
}
