// Package websocket serves the live change feed: every change event of every
// registered store is broadcast to connected clients as JSON, and clients may
// send set, delete and merge operations that are applied to the stores.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/logging"
	"github.com/conneroisu/reactive/internal/observable"
	"github.com/conneroisu/reactive/internal/registry"
	"github.com/conneroisu/reactive/internal/types"
)

const (
	readTimeout     = 60 * time.Second
	writeTimeout    = 10 * time.Second
	pingInterval    = 54 * time.Second
	clientBuffer    = 256
	messagesPerSec  = 50
	maxMessageBytes = 1 << 20
)

// Hub handles WebSocket connection management and broadcasting.
//
// One hub goroutine owns client registration, unregistration and every write
// into a client's send channel, so a send channel is only closed by the
// goroutine that writes to it.
type Hub struct {
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn
	direct     chan directMessage

	stores          *registry.StoreRegistry
	events          <-chan types.StoreEvent
	originValidator OriginValidator
	logger          logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	hubDone      chan struct{}
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
}

type directMessage struct {
	client *Client
	data   []byte
}

// NewHub creates a hub broadcasting the changes of stores. It starts the hub
// goroutine and subscribes to the registry; call Shutdown to stop both.
func NewHub(stores *registry.StoreRegistry, originValidator OriginValidator, logger logging.Logger) *Hub {
	if stores == nil {
		panic("websocket.NewHub: stores cannot be nil")
	}
	if originValidator == nil {
		originValidator = AllowedOrigins(nil)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:         make(map[*websocket.Conn]*Client),
		broadcast:       make(chan []byte, 256),
		register:        make(chan *Client, 32),
		unregister:      make(chan *websocket.Conn, 32),
		direct:          make(chan directMessage, 256),
		stores:          stores,
		events:          stores.Watch(),
		originValidator: originValidator,
		logger:          logger.WithComponent("websocket"),
		ctx:             ctx,
		cancel:          cancel,
		hubDone:         make(chan struct{}),
	}

	go h.runHub()
	go h.forward()

	return h
}

// HandleWebSocket upgrades the request and serves the client until it
// disconnects. The client first receives one snapshot message per store.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.isShutdown.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !h.originValidator.IsAllowedOrigin(origin) {
		h.logger.Warn(r.Context(), nil, "WebSocket connection rejected: invalid origin",
			"origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// Origins were validated above.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	client := &Client{
		conn:         conn,
		send:         make(chan []byte, clientBuffer),
		lastActivity: time.Now(),
		rateLimiter:  NewWindowRateLimiter(messagesPerSec, time.Second),
		remoteAddr:   r.RemoteAddr,
	}

	// Nothing else writes to send before registration.
	for _, name := range h.stores.Names() {
		if data, err := h.snapshotMessage(name); err == nil {
			select {
			case client.send <- data:
			default:
			}
		}
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	default:
		h.logger.Warn(r.Context(), nil, "WebSocket registration channel full, rejecting client")
		_ = conn.Close(websocket.StatusTryAgainLater, "Server busy")
		return
	}

	go h.writeToClient(client)
	h.readFromClient(client)
}

// runHub manages client connections and broadcasting
func (h *Hub) runHub() {
	defer close(h.hubDone)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case conn := <-h.unregister:
			h.unregisterClient(conn)

		case message := <-h.broadcast:
			h.broadcastToClients(message)

		case m := <-h.direct:
			h.clientsMutex.RLock()
			_, registered := h.clients[m.client.conn]
			h.clientsMutex.RUnlock()
			if registered {
				select {
				case m.client.send <- m.data:
				default:
				}
			}

		case <-h.ctx.Done():
			return
		}
	}
}

// forward turns registry events into broadcast messages.
func (h *Hub) forward() {
	for {
		select {
		case e, ok := <-h.events:
			if !ok {
				return
			}
			h.BroadcastEvent(e)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMutex.Lock()
	h.clients[client.conn] = client
	total := len(h.clients)
	h.clientsMutex.Unlock()

	h.logger.Info(h.ctx, "WebSocket client connected", "remote", client.remoteAddr, "clients", total)
}

func (h *Hub) unregisterClient(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	client, exists := h.clients[conn]
	if exists {
		delete(h.clients, conn)
		close(client.send)
	}
	total := len(h.clients)
	h.clientsMutex.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Info(h.ctx, "WebSocket client disconnected", "remote", client.remoteAddr, "clients", total)
	}
}

func (h *Hub) broadcastToClients(message []byte) {
	h.clientsMutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clientsMutex.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			// Client send buffer is full, drop the client.
			go func(c *Client) {
				select {
				case h.unregister <- c.conn:
				case <-h.ctx.Done():
				}
			}(client)
		}
	}
}

func (h *Hub) readFromClient(client *Client) {
	defer func() {
		select {
		case h.unregister <- client.conn:
		case <-h.ctx.Done():
		}
	}()

	for {
		ctx, cancel := context.WithTimeout(h.ctx, readTimeout)
		_, data, err := client.conn.Read(ctx)
		cancel()

		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "WebSocket read error", "remote", client.remoteAddr, "error", err.Error())
			}
			return
		}

		client.lastActivity = time.Now()

		if !client.rateLimiter.Allow() {
			h.logger.Warn(h.ctx, nil, "WebSocket message rate limit exceeded", "remote", client.remoteAddr)
			_ = client.conn.Close(websocket.StatusPolicyViolation, "rate limit exceeded")
			return
		}

		h.processClientMessage(client, data)
	}
}

func (h *Hub) writeToClient(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := client.conn.Write(ctx, websocket.MessageText, message)
			cancel()

			if err != nil {
				h.logger.Debug(h.ctx, "WebSocket write error", "remote", client.remoteAddr, "error", err.Error())
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := client.conn.Ping(ctx)
			cancel()

			if err != nil {
				return
			}

		case <-h.ctx.Done():
			return
		}
	}
}

// processClientMessage applies one client operation and answers the client
// with an ack, a snapshot or an error.
func (h *Hub) processClientMessage(client *Client, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(client, Message{Type: MessageError, Error: "invalid message: " + err.Error()})
		return
	}

	if msg.Op == OpSnapshot {
		out, err := h.snapshotMessage(msg.Store)
		if err != nil {
			h.reply(client, Message{Type: MessageError, ID: msg.ID, Store: msg.Store, Error: err.Error()})
			return
		}
		h.send(client, out)
		return
	}

	if err := Apply(h.stores, msg); err != nil {
		errors.NewErrorHandler(h.logger).Handle(h.ctx, err)
		h.reply(client, Message{Type: MessageError, ID: msg.ID, Store: msg.Store, Error: err.Error()})
		return
	}
	h.reply(client, Message{Type: MessageAck, ID: msg.ID, Store: msg.Store})
}

// Apply performs a set, delete or merge operation on a registered store.
func Apply(stores *registry.StoreRegistry, msg ClientMessage) error {
	switch msg.Op {
	case OpSet:
		return stores.Update(msg.Store, func(o *observable.Observable) error {
			return o.SetPath(msg.Path, msg.Value)
		})
	case OpDelete:
		return stores.Update(msg.Store, func(o *observable.Observable) error {
			return o.DeletePath(msg.Path)
		})
	case OpMerge:
		return stores.Update(msg.Store, func(o *observable.Observable) error {
			target, err := o.GetPath(msg.Path)
			if err != nil {
				return err
			}
			node, ok := target.(observable.Node)
			if !ok {
				return errors.NewValidationError(errors.ErrCodeInvalidPath, "merge target is not an object or array").
					WithPath(msg.Path)
			}
			if !observable.CanMerge(node, msg.Value) {
				return errors.NewValidationError(errors.ErrCodeValidationFailed, "merge value does not match the target's shape").
					WithPath(msg.Path)
			}
			switch t := node.(type) {
			case *observable.Object:
				t.Merge(msg.Value)
			case *observable.Array:
				t.Merge(msg.Value)
			}
			return nil
		})
	}
	return errors.NewValidationError(errors.ErrCodeValidationFailed, "unknown operation: "+msg.Op).
		WithContext("op", msg.Op)
}

func (h *Hub) snapshotMessage(store string) ([]byte, error) {
	var data []byte
	err := h.stores.View(store, func(o *observable.Observable) error {
		raw, err := o.MarshalJSON()
		if err != nil {
			return err
		}
		data, err = json.Marshal(Message{
			Type:      MessageSnapshot,
			Store:     store,
			Data:      json.RawMessage(raw),
			Timestamp: time.Now(),
		})
		return err
	})
	return data, err
}

func (h *Hub) reply(client *Client, msg Message) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to marshal reply")
		return
	}
	h.send(client, data)
}

func (h *Hub) send(client *Client, data []byte) {
	select {
	case h.direct <- directMessage{client: client, data: data}:
	case <-h.ctx.Done():
	}
}

// BroadcastEvent sends a store change to every connected client.
func (h *Hub) BroadcastEvent(e types.StoreEvent) {
	event := e.Event
	h.BroadcastMessage(Message{Type: MessageChange, Store: e.Store, Event: &event, Timestamp: e.Timestamp})
}

// BroadcastMessage sends a message to all connected WebSocket clients
func (h *Hub) BroadcastMessage(message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Warn(h.ctx, err, "Failed to marshal broadcast message", "store", message.Store)
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.logger.Warn(h.ctx, nil, "Broadcast channel full, dropping message", "store", message.Store)
	}
}

// ConnectedClients returns the number of connected clients
func (h *Hub) ConnectedClients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Shutdown stops the hub and closes every client connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	var err error
	h.shutdownOnce.Do(func() {
		h.isShutdown.Store(true)
		h.stores.UnWatch(h.events)
		h.cancel()

		select {
		case <-h.hubDone:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}

		h.clientsMutex.Lock()
		for conn, client := range h.clients {
			close(client.send)
			_ = conn.Close(websocket.StatusGoingAway, "Server shutdown")
		}
		h.clients = make(map[*websocket.Conn]*Client)
		h.clientsMutex.Unlock()

		h.logger.Info(context.Background(), "WebSocket hub shut down")
	})
	return err
}

// IsShutdown returns whether the hub has been shut down
func (h *Hub) IsShutdown() bool {
	return h.isShutdown.Load()
}
