package letschat

import (
	"encoding/json"
	"testing"
	"time"
)

func TestReconnectorBackoff(t *testing.T) {
	r := newReconnector(&RealtimeConfig{
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    10 * time.Second,
		MaxReconnectAttempts: 3,
	})

	var prev time.Duration
	for i := 0; i < 3; i++ {
		if !r.shouldReconnect() {
			t.Fatalf("attempt %d should be allowed", i)
		}
		d := r.nextDelay()
		if d > 10*time.Second {
			t.Fatalf("delay %v exceeds cap", d)
		}
		if d < prev/2 {
			t.Fatalf("delay should grow roughly exponentially: %v after %v", d, prev)
		}
		prev = d
	}
	if r.shouldReconnect() {
		t.Fatal("attempts exhausted, reconnect should stop")
	}
}

func TestReconnectorResetsAfterStableConnection(t *testing.T) {
	r := newReconnector(&RealtimeConfig{
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
	})
	for i := 0; i < 5; i++ {
		r.nextDelay()
	}
	// A connection that held for over a minute resets the counter.
	r.connectedAt = time.Now().Add(-2 * time.Minute)
	if d := r.nextDelay(); d >= 2*time.Second {
		t.Fatalf("expected reset to base delay, got %v", d)
	}
}

func TestDispatcherDeliversMessagesInOrder(t *testing.T) {
	d := newEventDispatcher()
	var got []string
	d.onMessage = append(d.onMessage, func(m *Message) {
		got = append(got, m.ID)
	})

	for _, id := range []string{"m1", "m2", "m3"} {
		payload, _ := json.Marshal(Message{ID: id, Content: "x"})
		d.dispatch(RealtimeEnvelope{Event: EventMessageReceived, Payload: payload})
	}

	if len(got) != 3 || got[0] != "m1" || got[1] != "m2" || got[2] != "m3" {
		t.Fatalf("messages delivered out of order: %v", got)
	}
}

func TestDispatcherIgnoresMalformedPayload(t *testing.T) {
	d := newEventDispatcher()
	called := false
	d.onMessage = append(d.onMessage, func(*Message) { called = true })

	d.dispatch(RealtimeEnvelope{Event: EventMessageReceived, Payload: json.RawMessage(`"not an object"`)})
	if called {
		t.Fatal("malformed payload must not reach handlers")
	}
}
