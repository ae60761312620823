package websocket

import (
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/reactive/internal/types"
)

// Message types sent to clients.
const (
	MessageSnapshot = "snapshot"
	MessageChange   = "change"
	MessageError    = "error"
	MessageAck      = "ack"
)

// Operations accepted from clients.
const (
	OpSet      = "set"
	OpDelete   = "delete"
	OpMerge    = "merge"
	OpSnapshot = "snapshot"
)

// Client represents a WebSocket client connection
type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	lastActivity time.Time
	rateLimiter  RateLimiter
	remoteAddr   string
}

// Message is the envelope of everything the server writes to a client.
type Message struct {
	Type      string             `json:"type"`
	Store     string             `json:"store,omitempty"`
	Event     *types.ChangeEvent `json:"event,omitempty"`
	Data      any                `json:"data,omitempty"`
	ID        string             `json:"id,omitempty"`
	Error     string             `json:"error,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// ClientMessage is an operation a client asks the server to apply to a
// store. Path uses the observable path syntax, e.g. ".user.name".
type ClientMessage struct {
	ID    string `json:"id,omitempty"`
	Op    string `json:"op"`
	Store string `json:"store"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`
}

// RateLimiter interface for WebSocket rate limiting
type RateLimiter interface {
	Allow() bool
	Reset()
}

// OriginValidator interface for WebSocket origin validation
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}
