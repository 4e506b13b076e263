package letschat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Collaborator contracts
// ============================================================================

// Remote is the request/response surface the store consumes. *Client
// satisfies it.
type Remote interface {
	ListChats(ctx context.Context) ([]*Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]*Message, error)
	SendMessage(ctx context.Context, opts *SendMessageOptions) (*Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	DeleteChat(ctx context.Context, chatID string) error
	MarkViewed(ctx context.Context, messageID, userID string) error
}

// Transport is the push-channel surface the store consumes. *RealtimeClient
// satisfies it.
type Transport interface {
	JoinChat(ctx context.Context, chatID string) error
	EmitNewMessage(ctx context.Context, msg *Message) error
}

// ============================================================================
// Store events
// ============================================================================

// StoreEventHandler receives store change notifications. Consumers
// re-render from store state on every mutation.
type StoreEventHandler func(event string, payload any)

// Store event names.
const (
	StoreEventChats         = "chats.updated"
	StoreEventMessages      = "messages.updated"
	StoreEventSelection     = "selection.changed"
	StoreEventNotification  = "notification.new"
	StoreEventMessageFailed = "message.failed"
	StoreEventMessageHidden = "message.hidden"
	StoreEventTransport     = "transport.state"
)

type storeEmitter struct {
	mu        sync.RWMutex
	listeners map[string][]StoreEventHandler
}

func (e *storeEmitter) On(event string, handler StoreEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]StoreEventHandler)
	}
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *storeEmitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in consumer callbacks
			h(event, payload)
		}()
	}
}

// ============================================================================
// Store
// ============================================================================

// DefaultViewOnceDelay is how long a view-once message stays readable after
// first display.
const DefaultViewOnceDelay = 5 * time.Second

// Store is the conversation state synchronization engine. It owns the
// canonical in-memory collections (chats, active chat, the active chat's
// message list, pending notifications) and reconciles REST snapshots
// with push events into them.
//
// All mutations go through a single mutex; the lock is released across
// awaited network calls, so other operations may interleave there. The
// completion of a stale fetch is detected and discarded rather than
// applied.
type Store struct {
	storeEmitter

	remote        Remote
	transport     Transport
	session       *Session
	mirror        *SelectionMirror
	viewOnceDelay time.Duration

	mu             sync.Mutex
	chats          []*Chat
	selectedID     string
	messages       []*Message
	notifications  []*Notification
	msgFetchSeq    uint64
	restoreTried   bool
	transportDown  bool
	hiddenViewOnce map[string]struct{}
	viewTimers     map[string]*time.Timer
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithViewOnceDelay overrides the view-once visibility window.
func WithViewOnceDelay(d time.Duration) StoreOption {
	return func(s *Store) { s.viewOnceDelay = d }
}

// NewStore creates a store bound to its collaborators. mirror may be nil
// to disable selection persistence. An identity change on the session
// resets the store.
func NewStore(remote Remote, transport Transport, session *Session, mirror *SelectionMirror, opts ...StoreOption) *Store {
	s := &Store{
		remote:         remote,
		transport:      transport,
		session:        session,
		mirror:         mirror,
		viewOnceDelay:  DefaultViewOnceDelay,
		hiddenViewOnce: make(map[string]struct{}),
		viewTimers:     make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	session.OnChange(func(*User) { s.Reset() })
	return s
}

// Bind subscribes the store to a realtime client: incoming messages feed
// the reconciliation core, and connection loss/recovery drives the cached
// -state/resync behavior.
func (s *Store) Bind(rt *RealtimeClient) {
	rt.OnMessageReceived(s.HandleMessageReceived)
	rt.OnDisconnected(func(reason string) {
		s.mu.Lock()
		s.transportDown = true
		s.mu.Unlock()
		s.emit(StoreEventTransport, fmt.Errorf("%w: %s", ErrTransportDown, reason))
	})
	rt.OnConnected(func() {
		s.mu.Lock()
		wasDown := s.transportDown
		s.transportDown = false
		selected := s.selectedID
		s.mu.Unlock()
		s.emit(StoreEventTransport, nil)
		if !wasDown {
			return
		}
		// Recover anything missed while the channel was down.
		ctx := context.Background()
		_ = s.LoadChats(ctx)
		if selected != "" {
			_ = s.transport.JoinChat(ctx, selected)
		}
	})
}

// ============================================================================
// Accessors (snapshot copies)
// ============================================================================

// Chats returns the current chat collection.
func (s *Store) Chats() []*Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Chat{}, s.chats...)
}

// SelectedChat returns the active chat, or nil.
func (s *Store) SelectedChat() *Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findChatLocked(s.selectedID)
}

// SelectedChatID returns the active chat id, or "".
func (s *Store) SelectedChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

// Messages returns the active chat's message list.
func (s *Store) Messages() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Message{}, s.messages...)
}

// Notifications returns the pending notifications.
func (s *Store) Notifications() []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Notification{}, s.notifications...)
}

// NotificationCount returns the pending notification count for one chat.
func (s *Store) NotificationCount(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, note := range s.notifications {
		if note.ChatID == chatID {
			n++
		}
	}
	return n
}

// TransportDown reports whether the push channel is currently disconnected.
func (s *Store) TransportDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transportDown
}

// IsContentHidden reports whether a view-once message's content has become
// inaccessible to this session.
func (s *Store) IsContentHidden(messageKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hidden := s.hiddenViewOnce[messageKey]
	return hidden
}

func (s *Store) findChatLocked(chatID string) *Chat {
	if chatID == "" {
		return nil
	}
	for _, c := range s.chats {
		if c.ID == chatID {
			return c
		}
	}
	return nil
}

// ============================================================================
// LoadChats
// ============================================================================

// LoadChats fetches the authoritative chat list, applies 1:1 deduplication
// and deleted-for-self filtering, and replaces the collection wholesale.
// On the first successful load it attempts to restore the persisted
// selection. No-op when signed out; state unchanged on failure.
func (s *Store) LoadChats(ctx context.Context) error {
	self := s.session.CurrentUser()
	if self == nil {
		return nil
	}

	fetched, err := s.remote.ListChats(ctx)
	if err != nil {
		if !errors.Is(err, ErrFetchFailed) && !errors.Is(err, ErrForbidden) {
			err = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		return err
	}

	chats := dedupeChats(fetched, self.ID)
	sortChatsByActivity(chats)

	s.mu.Lock()
	s.chats = chats

	restore := ""
	if s.selectedID != "" && s.findChatLocked(s.selectedID) == nil {
		// The active chat vanished server-side.
		s.selectedID = ""
		s.messages = nil
	} else if s.selectedID == "" && !s.restoreTried && s.mirror != nil {
		if id, err := s.mirror.Load(); err == nil && s.findChatLocked(id) != nil {
			restore = id
		}
	}
	s.restoreTried = true
	s.mu.Unlock()

	s.emit(StoreEventChats, s.Chats())

	if restore != "" {
		return s.SelectChat(ctx, restore)
	}
	return nil
}

// ============================================================================
// SelectChat / LoadMessages
// ============================================================================

// SelectChat activates a chat: it clears that chat's notifications and
// unread counter atomically, persists the selection, and reloads the
// message list. Selecting "" clears the selection and message list.
// Re-selecting the active chat only re-clears notifications.
func (s *Store) SelectChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		s.mu.Lock()
		changed := s.selectedID != ""
		s.selectedID = ""
		s.messages = nil
		s.msgFetchSeq++
		s.mu.Unlock()
		s.persistSelection("")
		if changed {
			s.emit(StoreEventSelection, "")
			s.emit(StoreEventMessages, []*Message{})
		}
		return nil
	}

	s.mu.Lock()
	chat := s.findChatLocked(chatID)
	if chat == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	}

	// Notification clearing and unread zeroing are one atomic step.
	kept := s.notifications[:0]
	for _, note := range s.notifications {
		if note.ChatID != chatID {
			kept = append(kept, note)
		}
	}
	s.notifications = kept
	chat.UnreadCount = 0

	already := s.selectedID == chatID
	if !already {
		s.selectedID = chatID
		s.messages = nil
	}
	s.mu.Unlock()

	s.emit(StoreEventChats, s.Chats())
	s.persistSelection(chatID)

	if already {
		return nil
	}
	s.emit(StoreEventSelection, chatID)
	return s.LoadMessages(ctx, chatID)
}

// LoadMessages fetches the full ordered message list for chatID and
// replaces the local list wholesale, then joins the chat's push room. The
// response is discarded if chatID is no longer the active chat when it
// lands, or if a newer fetch superseded this one.
func (s *Store) LoadMessages(ctx context.Context, chatID string) error {
	s.mu.Lock()
	if s.selectedID != chatID {
		s.mu.Unlock()
		return nil
	}
	s.msgFetchSeq++
	seq := s.msgFetchSeq
	s.mu.Unlock()

	fetched, err := s.remote.ListMessages(ctx, chatID)
	if err != nil {
		if !errors.Is(err, ErrFetchFailed) && !errors.Is(err, ErrForbidden) && !errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		return err
	}

	s.mu.Lock()
	if s.selectedID != chatID || s.msgFetchSeq != seq {
		// Stale response: the user moved on while this was in flight.
		s.mu.Unlock()
		return nil
	}
	msgs := filterSystemMessages(fetched)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	for _, m := range msgs {
		if m.Status == "" {
			m.Status = StatusConfirmed
		}
		s.scheduleViewOnceLocked(m)
	}
	s.messages = msgs
	s.mu.Unlock()

	s.emit(StoreEventMessages, s.Messages())

	if err := s.transport.JoinChat(ctx, chatID); err != nil {
		// Room join is best-effort; reconnect handling re-joins later.
		s.emit(StoreEventTransport, err)
	}
	return nil
}

// ============================================================================
// Push reconciliation
// ============================================================================

// HandleMessageReceived is the reconciliation core for push events. Safe to
// call directly in tests; Bind wires it to the realtime client.
func (s *Store) HandleMessageReceived(msg *Message) {
	if IsSystemMessage(msg) {
		return
	}
	chatID := msg.ChatRef()
	if chatID == "" {
		return
	}

	s.mu.Lock()

	if s.selectedID != "" && chatID == s.selectedID {
		if containsMessage(s.messages, msg.ID) {
			s.mu.Unlock()
			return
		}
		s.messages, _ = mergeIncoming(s.messages, msg)
		if chat := s.findChatLocked(chatID); chat != nil {
			chat.LatestMessage = msg
			sortChatsByActivity(s.chats)
		}
		s.scheduleViewOnceLocked(msg)
		s.mu.Unlock()

		s.emit(StoreEventMessages, s.Messages())
		s.emit(StoreEventChats, s.Chats())
		return
	}

	// Inactive chat: surface as a notification and bump the unread badge.
	for _, note := range s.notifications {
		if msg.ID != "" && note.Message.ID == msg.ID {
			s.mu.Unlock()
			return
		}
	}
	chat := s.findChatLocked(chatID)
	if chat == nil {
		chat = synthesizeChat(msg)
		s.chats = append([]*Chat{chat}, s.chats...)
	}
	note := &Notification{Message: msg, ChatID: chatID}
	s.notifications = append(s.notifications, note)
	chat.UnreadCount++
	chat.LatestMessage = msg
	sortChatsByActivity(s.chats)
	s.mu.Unlock()

	s.emit(StoreEventNotification, note)
	s.emit(StoreEventChats, s.Chats())
}

// ============================================================================
// SendMessage
// ============================================================================

// SendMessage optimistically appends a message to the active chat, issues
// the send, reconciles the server echo into the list by substitution, and
// rebroadcasts the acknowledged message on the push channel. On failure the
// optimistic entry stays, flagged failed, and the error is returned.
func (s *Store) SendMessage(ctx context.Context, opts *SendMessageOptions) (*Message, error) {
	self := s.session.CurrentUser()
	if self == nil {
		return nil, fmt.Errorf("%w: not signed in", ErrSendFailed)
	}

	s.mu.Lock()
	chatID := opts.ChatID
	if chatID == "" {
		chatID = s.selectedID
	}
	if chatID == "" {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: no active chat", ErrSendFailed)
	}

	pending := &Message{
		TempID:    uuid.NewString(),
		ChatID:    chatID,
		Sender:    *self,
		Content:   opts.Content,
		IsFile:    opts.IsFile,
		FileName:  opts.FileName,
		ViewOnce:  opts.ViewOnce,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPending,
	}
	if chatID == s.selectedID {
		s.messages = insertOrdered(s.messages, pending)
	}
	if chat := s.findChatLocked(chatID); chat != nil {
		chat.LatestMessage = pending
		sortChatsByActivity(s.chats)
	}
	s.mu.Unlock()

	s.emit(StoreEventMessages, s.Messages())
	s.emit(StoreEventChats, s.Chats())

	wire := *opts
	wire.ChatID = chatID
	echoed, err := s.remote.SendMessage(ctx, &wire)
	if err != nil {
		s.mu.Lock()
		for _, m := range s.messages {
			if m.TempID == pending.TempID && m.ID == "" {
				m.Status = StatusFailed
				break
			}
		}
		s.mu.Unlock()
		if !errors.Is(err, ErrSendFailed) {
			err = fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
		s.emit(StoreEventMessageFailed, pending)
		return nil, err
	}

	if echoed.TempID == "" {
		echoed.TempID = pending.TempID
	}
	if echoed.ChatID == "" {
		echoed.ChatID = chatID
	}
	echoed.Status = StatusConfirmed

	s.mu.Lock()
	if chatID == s.selectedID {
		if containsMessage(s.messages, echoed.ID) {
			// The push echo raced ahead; drop the leftover placeholder.
			s.messages, _ = removeMessage(s.messages, pending.TempID)
		} else {
			s.messages, _ = mergeIncoming(s.messages, echoed)
		}
	}
	if chat := s.findChatLocked(chatID); chat != nil {
		chat.LatestMessage = echoed
		sortChatsByActivity(s.chats)
	}
	s.mu.Unlock()

	s.emit(StoreEventMessages, s.Messages())
	s.emit(StoreEventChats, s.Chats())

	if err := s.transport.EmitNewMessage(ctx, echoed); err != nil {
		s.emit(StoreEventTransport, err)
	}
	return echoed, nil
}

// ============================================================================
// Deletes
// ============================================================================

// DeleteMessage removes a message after server confirmation; the list is
// untouched while the call is in flight so a failure never makes content
// flash back. A server-side 404 still removes the local copy, since the
// message is already gone for everyone else.
func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	err := s.remote.DeleteMessage(ctx, messageID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	s.mu.Lock()
	s.messages, _ = removeMessage(s.messages, messageID)
	s.mu.Unlock()
	s.emit(StoreEventMessages, s.Messages())
	return err
}

// DeleteChat removes a chat after server confirmation, clearing the
// selection and any pending notifications that pointed at it.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	if err := s.remote.DeleteChat(ctx, chatID); err != nil {
		return err
	}

	s.mu.Lock()
	for i, c := range s.chats {
		if c.ID == chatID {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			break
		}
	}
	kept := s.notifications[:0]
	for _, note := range s.notifications {
		if note.ChatID != chatID {
			kept = append(kept, note)
		}
	}
	s.notifications = kept

	deselected := s.selectedID == chatID
	if deselected {
		s.selectedID = ""
		s.messages = nil
		s.msgFetchSeq++
	}
	s.mu.Unlock()

	if deselected {
		s.persistSelection("")
		s.emit(StoreEventSelection, "")
		s.emit(StoreEventMessages, []*Message{})
	}
	s.emit(StoreEventChats, s.Chats())
	return nil
}

// ============================================================================
// View-once
// ============================================================================

// scheduleViewOnceLocked arms per-session visibility handling for a
// view-once message: content already viewed by this identity hides
// immediately, otherwise a one-time mark-viewed call fires and the content
// hides when the window elapses. Caller holds s.mu.
func (s *Store) scheduleViewOnceLocked(m *Message) {
	if !m.ViewOnce || m.Key() == "" {
		return
	}
	key := m.Key()
	if _, done := s.hiddenViewOnce[key]; done {
		return
	}
	if _, armed := s.viewTimers[key]; armed {
		return
	}

	self := s.session.CurrentUserID()
	if self == "" {
		return
	}
	if m.ViewedByUser(self) {
		s.hiddenViewOnce[key] = struct{}{}
		return
	}

	go func() {
		// Best-effort: the hide timer runs regardless.
		_ = s.remote.MarkViewed(context.Background(), key, self)
	}()
	s.viewTimers[key] = time.AfterFunc(s.viewOnceDelay, func() {
		s.mu.Lock()
		delete(s.viewTimers, key)
		s.hiddenViewOnce[key] = struct{}{}
		s.mu.Unlock()
		s.emit(StoreEventMessageHidden, key)
	})
}

// ============================================================================
// Reset
// ============================================================================

// Reset drops every collection and cancels pending view-once timers.
// Invoked on identity change (including logout).
func (s *Store) Reset() {
	s.mu.Lock()
	for key, timer := range s.viewTimers {
		timer.Stop()
		delete(s.viewTimers, key)
	}
	s.chats = nil
	s.selectedID = ""
	s.messages = nil
	s.notifications = nil
	s.msgFetchSeq++
	s.restoreTried = false
	s.hiddenViewOnce = make(map[string]struct{})
	s.mu.Unlock()

	s.persistSelection("")
	s.emit(StoreEventSelection, "")
	s.emit(StoreEventChats, []*Chat{})
	s.emit(StoreEventMessages, []*Message{})
}

func (s *Store) persistSelection(chatID string) {
	if s.mirror == nil {
		return
	}
	// Best-effort mirror; a failed write never fails the operation.
	_ = s.mirror.Save(chatID)
}
