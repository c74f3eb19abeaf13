// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/logger"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Hub streams the latest frame to websocket clients.
type Hub struct {
	store    *Store
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	lastSeq uint64
}

// NewHub returns a hub broadcasting frames from store every interval.
// A non-positive interval selects DefaultInterval.
func NewHub(store *Store, interval time.Duration, log *zap.Logger) *Hub {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Hub{
		store:    store,
		interval: interval,
		log:      logger.OrNop(log),
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client. The latest frame
// is sent immediately.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws: upgrade error", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	if f, ok := h.store.Latest(); ok {
		h.send(conn, f)
	}
	h.mu.Unlock()
	h.log.Debug("ws: client connected", zap.String("remote", r.RemoteAddr))

	// Drain client messages so close frames are noticed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Debug("ws: read error", zap.Error(err))
				}
				h.remove(conn)
				return
			}
		}
	}()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends the latest frame to every client if it changed.
func (h *Hub) Broadcast() {
	f, ok := h.store.Latest()
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if f.Seq == h.lastSeq {
		return
	}
	h.lastSeq = f.Seq
	for conn := range h.clients {
		h.send(conn, f)
	}
}

// send must be called with h.mu held.
func (h *Hub) send(conn *websocket.Conn, f Frame) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(f); err != nil {
		h.log.Debug("ws: write error, dropping client", zap.Error(err))
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// Run broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return nil
		case <-ticker.C:
			h.Broadcast()
		}
	}
}
