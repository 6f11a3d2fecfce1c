// Package transport defines the JSON-RPC message framing shared by the
// stdio and HTTP transports.
package transport

import (
	"context"
	"encoding/json"
)

// Message is a JSON-RPC 2.0 message. Requests set Method and Params,
// responses set Result or Error; notifications omit the ID.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Transport carries MCP messages between the server and a client.
type Transport interface {
	// Start begins the transport's read loop and blocks until the
	// context is cancelled or the peer disconnects.
	Start(ctx context.Context) error

	// ReadMessage returns the next inbound message.
	ReadMessage() (*Message, error)

	// WriteMessage sends a message to the peer.
	WriteMessage(msg *Message) error

	// Close shuts the transport down.
	Close() error
}

// Handler processes an inbound message and returns the response, or
// nil when the message is a notification.
type Handler func(ctx context.Context, msg *Message) (*Message, error)
