package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StatusEvent represents a single status message for SSE.
type StatusEvent struct {
	Time  string          `json:"t"`
	Level string          `json:"l,omitempty"`
	Msg   string          `json:"msg"`
	Data  json.RawMessage `json:"data,omitempty"` // e.g. a tracking cycle report
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of connected subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a message to all subscribed clients.
// Messages are sent as JSON: {"t":"...","l":"info","msg":"..."}
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastData sends msg with v attached as the event's data field.
func (b *StatusBroadcaster) BroadcastData(level, msg string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		b.Broadcast("error", "encode "+level+" event: "+err.Error())
		return
	}
	b.send(StatusEvent{Level: level, Msg: msg, Data: data})
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastHook returns a logrus hook that forwards every debug entry to
// SSE clients.
func BroadcastHook(b *StatusBroadcaster) logrus.Hook {
	return &broadcastHook{b: b}
}

type broadcastHook struct {
	b *StatusBroadcaster
}

func (h *broadcastHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *broadcastHook) Fire(e *logrus.Entry) error {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return nil
	}
	if az, ok := e.Data["azimuth"]; ok {
		msg += " (elevation " + toString(e.Data["elevation"]) + ", azimuth " + toString(az) + ")"
	}
	h.b.Broadcast(e.Level.String(), msg)
	return nil
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, _ := json.Marshal(v)
	return string(data)
}
