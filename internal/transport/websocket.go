// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// FramesPath is the websocket endpoint frames are broadcast on.
const FramesPath = "/ws"

// broadcastQueue is how many payloads may wait for the broadcaster before
// new ones are dropped.
const broadcastQueue = 8

// WebSocketTransport broadcasts binary messages to every connected client.
type WebSocketTransport struct {
	addr     string
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	broadcast chan []byte
	sendMu    sync.RWMutex
	closed    bool
	server    *http.Server
	listener  net.Listener

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocketTransport creates a transport for addr. Extra handlers can be
// mounted with Handle before Start.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local preview only
			},
		},
		mux:       http.NewServeMux(),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, broadcastQueue),
	}
	wst.mux.HandleFunc(FramesPath, wst.handleWebSocket)
	return wst
}

// Handle mounts h on the transport's HTTP server.
func (wst *WebSocketTransport) Handle(pattern string, h http.Handler) {
	wst.mux.Handle(pattern, h)
}

// Handler returns the HTTP handler serving the websocket and mounted routes.
func (wst *WebSocketTransport) Handler() http.Handler { return wst.mux }

// Start listens on the configured address and begins broadcasting.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", wst.addr, err)
	}
	wst.listener = ln
	wst.server = &http.Server{Handler: wst.mux}

	wst.wg.Add(2)
	go func() {
		defer wst.wg.Done()
		logger.Infof("Serving frames on ws://%s%s", ln.Addr(), FramesPath)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server error: %v", err)
		}
	}()
	go func() {
		defer wst.wg.Done()
		wst.handleBroadcasts()
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (wst *WebSocketTransport) Addr() string {
	if wst.listener != nil {
		return wst.listener.Addr().String()
	}
	return wst.addr
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	logger.Infof("Client connected, total: %d", total)

	// Clients never send; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	if ok {
		conn.Close()
		logger.Infof("Client disconnected, total: %d", total)
	}
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for data := range wst.broadcast {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			if err := client.WriteMessage(websocket.BinaryMessage, data); err != nil {
				logger.Warnf("Error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast. When the queue is full the payload is
// dropped; a slow client must not stall the render loop.
func (wst *WebSocketTransport) Send(data []byte) error {
	wst.sendMu.RLock()
	defer wst.sendMu.RUnlock()
	if wst.closed {
		return ErrClosed
	}
	select {
	case wst.broadcast <- data:
	default:
		logger.Debugf("Broadcast queue full, dropping %d bytes", len(data))
	}
	return nil
}

// Close shuts down the server and disconnects every client.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		logger.Infof("Closing server")
		if wst.server != nil {
			err = wst.server.Close()
		}
		wst.sendMu.Lock()
		wst.closed = true
		close(wst.broadcast)
		wst.sendMu.Unlock()
		wst.wg.Wait()

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interfaces.
var (
	_ Transport = (*WebSocketTransport)(nil)
	_ Listeners = (*WebSocketTransport)(nil)
)
