package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/koi-prep/internal/models"
)

const (
	subscriberBuffer = 16
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans session events out to WebSocket subscribers. It implements
// session.Publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan models.Event]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan models.Event]struct{})}
}

// Publish delivers event to every subscriber of sessionID. A subscriber
// whose buffer is full misses the event. EventClosed ends every
// subscription of the session.
func (h *Hub) Publish(sessionID string, event models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[sessionID] {
		select {
		case ch <- event:
		default:
			slog.Debug("dropping event for slow subscriber", "session_id", sessionID, "type", event.Type)
		}
	}

	if event.Type == models.EventClosed {
		for ch := range h.subs[sessionID] {
			close(ch)
		}
		delete(h.subs, sessionID)
	}
}

// Subscribe registers a subscriber for sessionID. The returned cancel func
// must be called once the subscriber stops reading.
func (h *Hub) Subscribe(sessionID string) (<-chan models.Event, func()) {
	ch := make(chan models.Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan models.Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[sessionID][ch]; ok {
			delete(h.subs[sessionID], ch)
			close(ch)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// Subscribers returns the number of subscribers of sessionID
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// handleSessionEvents streams session events over a WebSocket. The first
// message is a snapshot of the session.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe(sess.ID())
	defer cancel()

	slog.Info("event stream connected", "session_id", sess.ID())

	if err := sendEvent(conn, models.Event{Type: models.EventStep, Session: sess.View()}); err != nil {
		return
	}

	// Reader: only control frames are expected; a read error means the
	// client went away
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			slog.Info("event stream disconnected", "session_id", sess.ID())
			return
		case event, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := sendEvent(conn, event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func sendEvent(conn *websocket.Conn, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal event", "error", err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send event", "error", err)
		return err
	}
	return nil
}
