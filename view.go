package letschat

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Pure projection helpers shared by every consumer surface. None of them
// touch store state; they take the data they format.

// ChatDisplayName resolves the name a chat is shown under: the group name
// for groups, the counterpart's name for direct chats.
func ChatDisplayName(chat *Chat, selfID string) string {
	if chat == nil {
		return "Unknown Chat"
	}
	if chat.IsGroup {
		if chat.Name == "" {
			return "Unnamed Group"
		}
		return chat.Name
	}
	if other := chat.Counterpart(selfID); other != nil {
		return other.Name
	}
	return "Unknown User"
}

// ChatSubtitle returns the secondary line under a chat title.
func ChatSubtitle(chat *Chat) string {
	if chat == nil {
		return ""
	}
	if chat.IsGroup {
		return fmt.Sprintf("%d participant(s)", len(chat.Users))
	}
	return "Direct message"
}

// AvatarInitials returns the single uppercased initial for an avatar.
func AvatarInitials(name string) string {
	for _, r := range name {
		return string(unicode.ToUpper(r))
	}
	return "?"
}

// StringToColor hashes a name to a stable HSL color, so the same chat keeps
// the same avatar color across sessions and devices.
func StringToColor(s string) string {
	var hash int32
	for _, r := range s {
		hash = int32(r) + (hash << 5) - hash
	}
	return fmt.Sprintf("hsl(%d, 60%%, 50%%)", hash%360)
}

// LastMessagePreview renders the one-line summary of a chat's latest
// activity. File messages collapse to a marker, system messages render
// empty, group chats carry a sender prefix, and long content truncates at
// 30 characters.
func LastMessagePreview(chat *Chat, selfID string) string {
	if chat == nil || chat.LatestMessage == nil {
		return "No messages yet"
	}
	last := chat.LatestMessage
	if last.IsFile {
		return "\U0001F4CE File"
	}
	if IsSystemMessage(last) {
		return ""
	}

	prefix := ""
	if chat.IsGroup {
		if last.Sender.ID == selfID {
			prefix = "You: "
		} else if last.Sender.Name != "" {
			prefix = last.Sender.Name + ": "
		}
	}

	content := last.Content
	if runes := []rune(content); len(runes) > 30 {
		content = string(runes[:30]) + "..."
	}
	return prefix + content
}

// FormatDateHeading names the day a message belongs to, for grouping a
// message list under date separators.
func FormatDateHeading(t time.Time, now time.Time) string {
	t = t.Local()
	now = now.Local()
	if sameDay(t, now) {
		return "Today"
	}
	if sameDay(t, now.AddDate(0, 0, -1)) {
		return "Yesterday"
	}
	return t.Format("Jan 2, 2006")
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// FormatMessageTime renders the clock time shown next to a message.
func FormatMessageTime(t time.Time) string {
	return t.Local().Format("15:04")
}

// FileIcon picks a marker for a file message by its extension.
func FileIcon(fileName string) string {
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".jpeg"), strings.HasSuffix(lower, ".jpg"),
		strings.HasSuffix(lower, ".gif"), strings.HasSuffix(lower, ".png"),
		strings.HasSuffix(lower, ".bmp"), strings.HasSuffix(lower, ".webp"),
		strings.HasSuffix(lower, ".svg"):
		return "\U0001F5BC️"
	case strings.HasSuffix(lower, ".pdf"):
		return "\U0001F4C4"
	case strings.HasSuffix(lower, ".doc"), strings.HasSuffix(lower, ".docx"):
		return "\U0001F4DD"
	default:
		return "\U0001F4CE"
	}
}
