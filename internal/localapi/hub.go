package localapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quiz-runner/internal/attempt"
	"quiz-runner/internal/quiz"
	"quiz-runner/internal/timer"
)

const (
	messageTick    = "tick"
	messageSettled = "settled"

	writeWait     = 5 * time.Second
	clientBacklog = 16
)

func newUpgrader(checkOrigin func(*http.Request) bool) *websocket.Upgrader {
	// A nil CheckOrigin makes gorilla accept same-host origins only.
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
}

type message struct {
	Type      string            `json:"type"`
	AttemptID uuid.UUID         `json:"attempt_id"`
	QuizID    string            `json:"quiz_id"`
	Remaining *int              `json:"remaining_seconds,omitempty"`
	Reason    attempt.Reason    `json:"reason,omitempty"`
	Score     *quiz.ScoreResult `json:"score,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func tickMessage(attemptID uuid.UUID, quizID string, remaining int) message {
	return message{Type: messageTick, AttemptID: attemptID, QuizID: quizID, Remaining: &remaining}
}

// Hub fans countdown ticks and settlements out to every connected
// front-end. Slow clients drop messages rather than stall the watchdog.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader *websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{}), upgrader: newUpgrader(nil)}
}

// AllowOrigins replaces the websocket origin check.
func (h *Hub) AllowOrigins(checkOrigin func(*http.Request) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.upgrader = newUpgrader(checkOrigin)
}

// PublishTick is registered with the watchdog.
func (h *Hub) PublishTick(tick timer.Tick) {
	h.broadcast(tickMessage(tick.AttemptID, tick.QuizID, tick.Remaining))
}

// PublishSettlement is registered with the finisher.
func (h *Hub) PublishSettlement(settlement attempt.Settlement) {
	msg := message{
		Type:      messageSettled,
		AttemptID: settlement.AttemptID,
		QuizID:    settlement.QuizID,
		Reason:    settlement.Reason,
		Score:     settlement.Score,
	}
	if settlement.Err != nil {
		msg.Error = settlement.Err.Error()
	}
	h.broadcast(msg)
}

func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial any) {
	h.mu.Lock()
	upgrader := h.upgrader
	h.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBacklog)}
	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			c.send <- data
		}
	}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	glog.V(2).Infof("websocket connected (total: %d)", len(h.clients))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	glog.V(2).Infof("websocket disconnected (total: %d)", len(h.clients))
}

// readPump only watches for the client going away.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			glog.V(2).Infof("websocket write failed: %v", err)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		glog.Errorf("encode websocket message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			glog.V(2).Infof("websocket client is behind, dropping %d bytes", len(data))
		}
	}
}
