// Package devserver is a reference backend for the aider web client. It
// serves the five request/response endpoints and a websocket that pushes
// tool output for every session.
package devserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"aider-web/internal/logging"
	"aider-web/internal/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBufSize   = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Server routes REST calls to the registry and pushes tool output to
// websocket clients.
type Server struct {
	registry  *Registry
	logger    *zap.Logger
	clients   map[*client]bool
	clientsMu sync.RWMutex
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	subID  string
	server *Server
}

// New creates a server over registry.
func New(registry *Registry, logger *zap.Logger) *Server {
	return &Server{
		registry: registry,
		logger:   logging.OrNop(logger),
		clients:  make(map[*client]bool),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(protocol.PathRealtime, s.handleWebSocket)

	mux.HandleFunc("POST "+protocol.PathStartSession, s.handleStartSession)
	mux.HandleFunc("POST "+protocol.PathGetRepoFiles, s.handleGetRepoFiles)
	mux.HandleFunc("POST "+protocol.PathAddFiles, s.handleAddFiles)
	mux.HandleFunc("POST "+protocol.PathSendMessage, s.handleSendMessage)
	mux.HandleFunc("POST "+protocol.PathCommitChanges, s.handleCommitChanges)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection to WebSocket and subscribes
// it to tool output, replaying what is buffered first.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	subID, events, history := s.registry.Subscribe()
	c.subID = subID

	s.logger.Debug("client connected",
		zap.String("remote", r.RemoteAddr),
		zap.Int("replay", len(history)))

	go c.writePump()
	go c.readPump()
	go c.forward(history, events)
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Close disconnects every websocket client.
func (s *Server) Close() {
	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

// forward relays tool output until the subscription is closed.
func (c *client) forward(history []OutputEvent, events <-chan OutputEvent) {
	for _, event := range history {
		c.sendOutput(event)
	}
	for event := range events {
		c.sendOutput(event)
	}
}

func (c *client) sendOutput(event OutputEvent) {
	msg, err := protocol.NewToolOutputMessage(event.SessionID, event.Output)
	if err != nil {
		return
	}
	c.enqueue(msg)
}

func (c *client) sendError(code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		return
	}
	c.enqueue(msg)
}

func (c *client) enqueue(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.server.logger.Debug("client buffer full, dropping frame", zap.String("type", msg.Type))
	}
}

// readPump reads frames until the connection fails. The channel is
// server-to-client only, so every inbound frame is answered with an error.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read", zap.Error(err))
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type == "" {
			c.sendError(protocol.ErrInvalidMessage, "invalid message")
			continue
		}
		c.sendError(protocol.ErrReceiveOnly, "realtime channel is receive-only: "+msg.Type)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()

	s.registry.Unsubscribe(c.subID)
	c.once.Do(func() { close(c.done) })
}
