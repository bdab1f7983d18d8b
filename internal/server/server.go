// Package server implements the watch command's live-reload notification
// channel. Browsers viewing the rendered book connect over WebSocket; after
// each incremental rebuild the server broadcasts the affected pages so only
// stale views reload.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/prologbook/prologbook/internal/config"
	"github.com/prologbook/prologbook/internal/logging"
	"github.com/prologbook/prologbook/internal/types"
)

const (
	// writeWait bounds a single message write to a peer.
	writeWait = 10 * time.Second
	// pingPeriod is the keepalive interval for idle connections.
	pingPeriod = 54 * time.Second
)

// ReloadMessage is the JSON payload pushed to connected clients.
type ReloadMessage struct {
	Type  string   `json:"type"`
	Pages []string `json:"pages"`
}

// ReloadServer accepts WebSocket clients and broadcasts rebuild results.
type ReloadServer struct {
	cfg config.ServerConfig
	log logging.Logger

	httpServer *http.Server
	listener   net.Listener

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a reload server bound to the configured host and port.
func New(cfg config.ServerConfig, log logging.Logger) *ReloadServer {
	return &ReloadServer{
		cfg:     cfg,
		log:     log.WithComponent("server"),
		clients: make(map[*client]struct{}),
	}
}

// Start begins listening and serving in the background. The actual bound
// address is available from Addr afterwards.
func (s *ReloadServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","clients":%d}`, s.ClientCount())
	})

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error(ctx, err, "reload server stopped")
		}
	}()

	s.log.Info(ctx, "reload server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address after Start.
func (s *ReloadServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes every client connection and stops the HTTP server.
func (s *ReloadServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, c)
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Broadcast pushes the affected page set to every connected client. Clients
// too slow to drain their queue miss the message and catch up on the next
// one.
func (s *ReloadServer) Broadcast(ctx context.Context, pages []types.PageRef) {
	names := make([]string, len(pages))
	for i, page := range pages {
		names[i] = string(page)
	}
	payload, err := json.Marshal(ReloadMessage{Type: "reload", Pages: names})
	if err != nil {
		s.log.Error(ctx, err, "marshalling reload message")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
	s.log.Debug(ctx, "reload broadcast", "pages", len(names), "clients", len(s.clients))
}

// ClientCount returns the number of connected clients.
func (s *ReloadServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *ReloadServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*", s.cfg.Host + ":*"},
	})
	if err != nil {
		s.log.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writePump(c)
	go s.readPump(c)
}

// writePump drains the client's queue and keeps the connection alive.
func (s *ReloadServer) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				s.drop(c)
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				s.drop(c)
				return
			}
		}
	}
}

// readPump discards client messages; its only job is noticing disconnects.
func (s *ReloadServer) readPump(c *client) {
	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			s.drop(c)
			return
		}
	}
}

func (s *ReloadServer) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	c.conn.CloseNow()
}
