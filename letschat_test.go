package letschat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ============================================================================
// Test Helpers
// ============================================================================

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient("test-token", WithBaseURL(srv.URL))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ============================================================================
// Auth
// ============================================================================

func TestLogin(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/user/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body LoginOptions
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email != "ana@example.com" {
			t.Errorf("unexpected email %q", body.Email)
		}
		writeJSON(w, 200, User{ID: "u1", Name: "Ana", Email: body.Email, Token: "fresh-token"})
	})
	client.SetToken("")

	user, err := client.Login(context.Background(), &LoginOptions{
		Email: "ana@example.com", Password: "pw",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Token != "fresh-token" {
		t.Fatalf("got token %q", user.Token)
	}
}

func TestLoginRejected(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]string{"message": "Invalid email or password"})
	})

	_, err := client.Login(context.Background(), &LoginOptions{Email: "x", Password: "y"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// ============================================================================
// Requests
// ============================================================================

func TestBearerTokenSent(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		writeJSON(w, 200, []*Chat{})
	})

	if _, err := client.ListChats(context.Background()); err != nil {
		t.Fatalf("ListChats: %v", err)
	}
}

func TestSearchUsersQuery(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search"); got != "bob" {
			t.Errorf("search param %q", got)
		}
		writeJSON(w, 200, []User{{ID: "u2", Name: "Bob"}})
	})

	users, err := client.SearchUsers(context.Background(), "bob")
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(users) != 1 || users[0].Name != "Bob" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestListChatsDecodesWireNames(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{
			"_id": "c1",
			"chatName": "Crew",
			"isGroupChat": true,
			"users": [{"_id": "u1", "name": "Ana"}],
			"unreadCount": 3
		}]`))
	})

	chats, err := client.ListChats(context.Background())
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(chats))
	}
	c := chats[0]
	if c.ID != "c1" || c.Name != "Crew" || !c.IsGroup || c.UnreadCount != 3 {
		t.Fatalf("decode mismatch: %+v", c)
	}
}

// ============================================================================
// Error classification
// ============================================================================

func TestErrorClassification(t *testing.T) {
	t.Run("404 maps to not found", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 404, map[string]string{"message": "Message not found"})
		})
		err := client.DeleteMessage(context.Background(), "m1")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("403 maps to forbidden", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 403, map[string]string{"message": "Only admins can rename"})
		})
		_, err := client.RenameGroup(context.Background(), "c1", "New")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("500 keeps operation fallback", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 500, map[string]string{"message": "boom"})
		})
		_, err := client.SendMessage(context.Background(), &SendMessageOptions{ChatID: "c1", Content: "x"})
		if !errors.Is(err, ErrSendFailed) {
			t.Fatalf("expected ErrSendFailed, got %v", err)
		}
		if _, err := client.ListChats(context.Background()); !errors.Is(err, ErrFetchFailed) {
			t.Fatalf("expected ErrFetchFailed, got %v", err)
		}
	})

	t.Run("server message preserved", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 404, map[string]string{"message": "Chat not found"})
		})
		err := client.DeleteChat(context.Background(), "c1")
		if err == nil || !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if got := err.Error(); !strings.Contains(got, "Chat not found") {
			t.Fatalf("server message lost: %q", got)
		}
	})

	t.Run("network failure", func(t *testing.T) {
		srv, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
		srv.Close()
		if _, err := client.ListChats(context.Background()); !errors.Is(err, ErrFetchFailed) {
			t.Fatalf("expected ErrFetchFailed for network error, got %v", err)
		}
	})
}

// ============================================================================
// Messages
// ============================================================================

func TestSendMessageWire(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/message" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body SendMessageOptions
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.ChatID != "c1" || !body.ViewOnce {
			t.Errorf("wire body mismatch: %+v", body)
		}
		writeJSON(w, 201, Message{ID: "m1", ChatID: body.ChatID, Content: body.Content, ViewOnce: body.ViewOnce})
	})

	msg, err := client.SendMessage(context.Background(), &SendMessageOptions{
		ChatID: "c1", Content: "secret", ViewOnce: true,
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != "m1" || !msg.ViewOnce {
		t.Fatalf("unexpected ack: %+v", msg)
	}
}

func TestMarkViewed(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PUT" || r.URL.Path != "/message/viewed/m1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["userId"] != "u1" {
			t.Errorf("userId %q", body["userId"])
		}
		writeJSON(w, 200, map[string]string{"message": "ok"})
	})

	if err := client.MarkViewed(context.Background(), "m1", "u1"); err != nil {
		t.Fatalf("MarkViewed: %v", err)
	}
}
