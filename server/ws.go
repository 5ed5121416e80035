package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xhad/mindvault/internal/models"
)

const (
	maxMessageBytes = 16 << 10
	maxQueuedAsks   = 4

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message is the websocket frame exchanged with the ask client.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(s.config.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// wsSession serializes writes to one connection. Pings go through
// WriteControl, which may run alongside them.
type wsSession struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger
}

func (c *wsSession) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Warn("error sending message", "error", err)
	}
}

func (c *wsSession) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handleWebSocket serves one authenticated ask session. Questions on a
// connection are answered in the order they arrive. The connection is read
// for its whole life, so a disconnect cancels the question in flight.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, p models.Principal) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &wsSession{conn: conn, logger: s.logger.With("owner", p.OwnerID)}
	asks := make(chan Message, maxQueuedAsks)

	go s.readMessages(sess, cancel, asks)
	go sess.keepAlive(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-asks:
			s.handleMessage(ctx, sess, p, msg)
		}
	}
}

// readMessages feeds asks until the connection fails, then cancels the
// session.
func (s *Server) readMessages(sess *wsSession, cancel context.CancelFunc, asks chan<- Message) {
	defer cancel()

	conn := sess.conn
	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Warn("error reading message", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.send(Message{Type: "error", Content: "Messages must be JSON"})
			continue
		}

		select {
		case asks <- msg:
		default:
			sess.send(Message{Type: "error", Content: "Too many questions waiting. Please wait for an answer."})
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, sess *wsSession, p models.Principal, msg Message) {
	switch msg.Type {
	case "ask", "":
	case "ping":
		sess.send(Message{Type: "pong"})
		return
	default:
		sess.send(Message{Type: "error", Content: "Unknown message type: " + msg.Type})
		return
	}

	if !s.limiter.Allow(p.OwnerID) {
		sess.send(Message{Type: "error", Content: "Too many searches. Please slow down."})
		return
	}

	sess.send(Message{Type: "status", Content: "Searching your vault..."})

	res, err := s.search.Answer(ctx, p, msg.Content)
	if err != nil {
		if ctx.Err() != nil {
			sess.logger.Info("websocket ask cancelled", "error", err)
			return
		}
		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			sess.logger.Error("websocket ask failed", "error", err)
		}
		sess.send(Message{Type: "error", Content: body.Message})
		return
	}

	sess.send(Message{Type: "response", Content: res.AnswerText, Data: res.MatchedContent})
}
