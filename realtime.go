package letschat

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Wire format
// ============================================================================

// Event names on the push channel.
const (
	EventSetup           = "setup"
	EventConnectedAck    = "connected"
	EventJoinChat        = "join-chat"
	EventNewMessage      = "new-message"
	EventMessageReceived = "message-received"
)

// RealtimeEnvelope is the wire format for all push events.
type RealtimeEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the push-channel client.
type RealtimeConfig struct {
	Token                string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// ============================================================================
// Event dispatcher
// ============================================================================

// RealtimeEventHandler is the generic event callback type.
type RealtimeEventHandler func(event string, payload json.RawMessage)

type eventDispatcher struct {
	mu             sync.RWMutex
	generic        map[string][]RealtimeEventHandler
	onMessage      []func(*Message)
	onConnected    []func()
	onDisconnected []func(reason string)
	onReconnecting []func(attempt int, delay time.Duration)
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{
		generic: make(map[string][]RealtimeEventHandler),
	}
}

// dispatch routes an envelope to its handlers. Message events are delivered
// synchronously so the store sees pushes in arrival order; meta events fan
// out on goroutines.
func (d *eventDispatcher) dispatch(env RealtimeEnvelope) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if env.Event == EventMessageReceived {
		var m Message
		if json.Unmarshal(env.Payload, &m) == nil {
			for _, h := range d.onMessage {
				h(&m)
			}
		}
	}

	for _, h := range d.generic[env.Event] {
		handler := h
		go handler(env.Event, env.Payload)
	}
}

func (d *eventDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (d *eventDispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(reason)
	}
}

func (d *eventDispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(attempt, delay)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// RealtimeClient
// ============================================================================

// RealtimeClient is the push-channel transport: a WebSocket connection with
// auto-reconnect, established once per identity and torn down on logout.
// Room membership (per chat) is layered on top via JoinChat.
type RealtimeClient struct {
	baseURL          string
	config           *RealtimeConfig
	conn             *websocket.Conn
	mu               sync.Mutex
	state            RealtimeState
	intentionalClose bool
	dispatcher       *eventDispatcher
	recon            *reconnector
	cancelFn         context.CancelFunc
}

// OnMessageReceived registers a handler for incoming chat messages.
// Handlers run inline on the read loop, in arrival order.
func (rt *RealtimeClient) OnMessageReceived(h func(*Message)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onMessage = append(rt.dispatcher.onMessage, h)
	rt.dispatcher.mu.Unlock()
}

// OnConnected registers a handler for the connected meta-event.
func (rt *RealtimeClient) OnConnected(h func()) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onConnected = append(rt.dispatcher.onConnected, h)
	rt.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (rt *RealtimeClient) OnDisconnected(h func(reason string)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onDisconnected = append(rt.dispatcher.onDisconnected, h)
	rt.dispatcher.mu.Unlock()
}

// OnReconnecting registers a handler for the reconnecting meta-event.
func (rt *RealtimeClient) OnReconnecting(h func(attempt int, delay time.Duration)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onReconnecting = append(rt.dispatcher.onReconnecting, h)
	rt.dispatcher.mu.Unlock()
}

// On registers a generic event handler.
func (rt *RealtimeClient) On(event string, h RealtimeEventHandler) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.generic[event] = append(rt.dispatcher.generic[event], h)
	rt.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (rt *RealtimeClient) State() RealtimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Connect establishes the WebSocket connection and announces the session
// identity with a setup event.
func (rt *RealtimeClient) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	rt.state = StateConnecting
	rt.intentionalClose = false
	rt.mu.Unlock()

	wsURL := strings.Replace(rt.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.TrimSuffix(wsURL, "/api")
	wsURL += "/ws?token=" + rt.config.Token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return fmt.Errorf("%w: websocket dial: %v", ErrTransportDown, err)
	}

	setup, _ := json.Marshal(RealtimeEnvelope{Event: EventSetup})
	if err := conn.Write(ctx, websocket.MessageText, setup); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return fmt.Errorf("%w: setup: %v", ErrTransportDown, err)
	}

	rt.mu.Lock()
	rt.conn = conn
	rt.state = StateConnected
	rt.mu.Unlock()
	rt.recon.markConnected()

	rt.dispatcher.emitConnected()

	// The caller's ctx bounds the dial only; the read loop outlives it.
	connCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	rt.cancelFn = cancel
	rt.mu.Unlock()

	go rt.readLoop(connCtx)

	return nil
}

// Disconnect gracefully closes the connection. Called on logout.
func (rt *RealtimeClient) Disconnect() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.state = StateDisconnected
	rt.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	rt.dispatcher.emitDisconnected("client disconnect")
	return nil
}

// JoinChat joins the push room for a chat id.
func (rt *RealtimeClient) JoinChat(ctx context.Context, chatID string) error {
	return rt.send(ctx, EventJoinChat, map[string]string{"chatId": chatID})
}

// EmitNewMessage broadcasts a server-acknowledged message so every
// subscriber of the chat, including the sender's other sessions, receives
// it through the same reconciliation path.
func (rt *RealtimeClient) EmitNewMessage(ctx context.Context, msg *Message) error {
	return rt.send(ctx, EventNewMessage, msg)
}

func (rt *RealtimeClient) send(ctx context.Context, event string, payload interface{}) error {
	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()

	if conn == nil {
		return ErrTransportDown
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(RealtimeEnvelope{Event: event, Payload: raw})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (rt *RealtimeClient) readLoop(ctx context.Context) {
	for {
		rt.mu.Lock()
		conn := rt.conn
		rt.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			rt.mu.Lock()
			intentional := rt.intentionalClose
			rt.mu.Unlock()
			if intentional {
				return
			}

			rt.mu.Lock()
			rt.state = StateDisconnected
			rt.conn = nil
			rt.mu.Unlock()

			rt.dispatcher.emitDisconnected(err.Error())

			if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
				rt.scheduleReconnect(ctx)
			}
			return
		}

		var env RealtimeEnvelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		rt.dispatcher.dispatch(env)
	}
}

func (rt *RealtimeClient) scheduleReconnect(ctx context.Context) {
	delay := rt.recon.nextDelay()
	rt.mu.Lock()
	rt.state = StateReconnecting
	rt.mu.Unlock()

	rt.dispatcher.emitReconnecting(rt.recon.attempt, delay)

	time.Sleep(delay)

	if err := rt.Connect(context.Background()); err != nil {
		if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
			rt.scheduleReconnect(ctx)
		} else {
			rt.mu.Lock()
			rt.state = StateDisconnected
			rt.mu.Unlock()
		}
	}
}
