package letschat

import (
	"sort"
	"time"
)

// Reconciliation is kept as pure functions over (current collections,
// incoming event) so the merge rules are testable without a live transport
// and identical on the REST-load and push paths.

// systemJoinMarker is the synthetic content the backend emits when someone
// joins a group. Never surfaced as a message or notification.
const systemJoinMarker = "joined group"

// tempIDMatchWindow bounds the "proximity in time" rule for matching a
// server echo against an optimistic placeholder without a tempId.
const tempIDMatchWindow = 2 * time.Minute

// IsSystemMessage reports whether a message is synthetic system content.
// Shared ingress predicate for both the REST-load and push paths.
func IsSystemMessage(m *Message) bool {
	return m == nil || m.Content == systemJoinMarker
}

// filterSystemMessages drops synthetic entries from a freshly loaded list.
func filterSystemMessages(msgs []*Message) []*Message {
	out := msgs[:0]
	for _, m := range msgs {
		if !IsSystemMessage(m) {
			out = append(out, m)
		}
	}
	return out
}

// dedupeChats applies the chat-collection rules: chats deleted for selfID
// are dropped, and non-group chats keep only the first entry per
// counterpart. Group chats are never deduplicated.
func dedupeChats(chats []*Chat, selfID string) []*Chat {
	unique := make([]*Chat, 0, len(chats))
	seen := make(map[string]bool)

	for _, chat := range chats {
		deleted := false
		for _, id := range chat.DeletedFor {
			if id == selfID {
				deleted = true
				break
			}
		}
		if deleted {
			continue
		}

		if chat.IsGroup {
			unique = append(unique, chat)
			continue
		}
		other := chat.Counterpart(selfID)
		if other == nil {
			// Self-chat or malformed participant set; keep by chat id.
			if !seen["chat:"+chat.ID] {
				unique = append(unique, chat)
				seen["chat:"+chat.ID] = true
			}
			continue
		}
		if !seen[other.ID] {
			unique = append(unique, chat)
			seen[other.ID] = true
		}
	}
	return unique
}

// containsMessage reports whether a resolved message id is already present.
func containsMessage(list []*Message, id string) bool {
	if id == "" {
		return false
	}
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}

// findPlaceholder locates the optimistic entry a server echo resolves.
// A tempId on the echo matches exactly; otherwise an unresolved message
// from the same sender in the same chat with the same content within the
// match window is taken.
func findPlaceholder(list []*Message, incoming *Message) int {
	if incoming.TempID != "" {
		for i, m := range list {
			if m.ID == "" && m.TempID == incoming.TempID {
				return i
			}
		}
	}
	for i, m := range list {
		if m.ID != "" || m.TempID == "" {
			continue
		}
		if m.ChatRef() != incoming.ChatRef() ||
			m.Sender.ID != incoming.Sender.ID ||
			m.Content != incoming.Content {
			continue
		}
		delta := incoming.CreatedAt.Sub(m.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= tempIDMatchWindow {
			return i
		}
	}
	return -1
}

// mergeIncoming folds one incoming message into a list: duplicates are
// ignored, placeholders are substituted in place, anything else is inserted
// preserving non-decreasing createdAt. Returns the next list and whether it
// changed.
func mergeIncoming(list []*Message, incoming *Message) ([]*Message, bool) {
	if containsMessage(list, incoming.ID) {
		return list, false
	}
	if i := findPlaceholder(list, incoming); i >= 0 {
		resolved := *incoming
		resolved.TempID = list[i].TempID
		resolved.Status = StatusConfirmed
		list[i] = &resolved
		return list, true
	}
	incoming.Status = StatusConfirmed
	return insertOrdered(list, incoming), true
}

// insertOrdered appends msg, walking back past later-timestamped entries so
// the list stays non-decreasing in createdAt. Push arrivals are almost
// always newest, so the common case is a plain append.
func insertOrdered(list []*Message, msg *Message) []*Message {
	i := len(list)
	for i > 0 && list[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list
}

// removeMessage deletes the entry with the given id (server id or temp id).
func removeMessage(list []*Message, id string) ([]*Message, bool) {
	for i, m := range list {
		if m.ID == id || (m.ID == "" && m.TempID == id) {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

// synthesizeChat builds a minimal chat entry from a push payload whose chat
// id is not yet in the collection, so new conversations appear without a
// refetch.
func synthesizeChat(msg *Message) *Chat {
	if msg.Chat != nil {
		c := *msg.Chat
		return &c
	}
	return &Chat{
		ID:    msg.ChatRef(),
		Users: []User{msg.Sender},
	}
}

// sortChatsByActivity orders the collection by latest-message timestamp,
// newest first, tie-broken by ascending chat id. Chats with no messages
// sink below all others, keeping their insertion order.
func sortChatsByActivity(chats []*Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i].LatestMessage, chats[j].LatestMessage
		switch {
		case a == nil && b == nil:
			return false
		case b == nil:
			return true
		case a == nil:
			return false
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return chats[i].ID < chats[j].ID
	})
}
