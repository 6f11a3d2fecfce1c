// Package http provides the HTTP-based MCP transports: a legacy SSE
// server and the streamable HTTP variant.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mcptools/odata-bridge/internal/transport"
)

// SSETransport serves MCP over Server-Sent Events. Clients open a
// stream on /sse and post requests to /rpc; responses for streamed
// requests are pushed back as SSE events.
type SSETransport struct {
	addr     string
	server   *http.Server
	handler  transport.Handler
	clients  map[string]*sseClient
	mu       sync.RWMutex
	messages chan *clientMessage
}

type sseClient struct {
	id      string
	events  chan []byte
	done    chan struct{}
	flusher http.Flusher
}

type clientMessage struct {
	clientID string
	message  *transport.Message
}

// NewSSE creates an SSE transport listening on addr.
func NewSSE(addr string, handler transport.Handler) *SSETransport {
	return &SSETransport{
		addr:     addr,
		handler:  handler,
		clients:  make(map[string]*sseClient),
		messages: make(chan *clientMessage, 100),
	}
}

// Start runs the HTTP server until the context is cancelled.
func (t *SSETransport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", t.handleSSE)
	mux.HandleFunc("/rpc", t.handleRPC)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	go t.processMessages(ctx)
	go func() {
		if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	<-ctx.Done()
	return t.Close()
}

func (t *SSETransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Accept") != "text/event-stream" {
		http.Error(w, "SSE not supported", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client := &sseClient{
		id:      fmt.Sprintf("client-%d", time.Now().UnixNano()),
		events:  make(chan []byte, 10),
		done:    make(chan struct{}),
		flusher: flusher,
	}

	t.mu.Lock()
	t.clients[client.id] = client
	t.mu.Unlock()

	t.sendEvent(client, "connected", map[string]string{"clientId": client.id})

	defer func() {
		t.mu.Lock()
		delete(t.clients, client.id)
		t.mu.Unlock()
		close(client.events)
		close(client.done)
	}()

	if r.Method == http.MethodPost {
		var msg transport.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err == nil {
			t.messages <- &clientMessage{clientID: client.id, message: &msg}
		}
	}

	for {
		select {
		case event := <-client.events:
			fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()
		case <-client.done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// handleRPC serves plain request-response JSON-RPC on /rpc.
func (t *SSETransport) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg transport.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response, err := t.handler(r.Context(), &msg)
	if err != nil {
		response = &transport.Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error: &transport.Error{
				Code:    -32603,
				Message: err.Error(),
			},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (t *SSETransport) processMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cm := <-t.messages:
			if cm.message.Method == "" || t.handler == nil {
				continue
			}
			response, err := t.handler(ctx, cm.message)
			if err != nil {
				response = &transport.Message{
					JSONRPC: "2.0",
					ID:      cm.message.ID,
					Error: &transport.Error{
						Code:    -32603,
						Message: err.Error(),
					},
				}
			}
			if response == nil {
				continue
			}

			t.mu.RLock()
			client, exists := t.clients[cm.clientID]
			t.mu.RUnlock()
			if exists {
				data, _ := json.Marshal(response)
				select {
				case client.events <- data:
				default:
					// client buffer full, drop
				}
			}
		}
	}
}

func (t *SSETransport) sendEvent(client *sseClient, eventType string, data interface{}) {
	event := map[string]interface{}{
		"type": eventType,
		"data": data,
	}
	if eventData, err := json.Marshal(event); err == nil {
		select {
		case client.events <- eventData:
		default:
		}
	}
}

// BroadcastMessage pushes a message to every connected SSE client.
func (t *SSETransport) BroadcastMessage(msg *transport.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, client := range t.clients {
		select {
		case client.events <- data:
		default:
		}
	}
	return nil
}

// ReadMessage is not supported; inbound traffic arrives via HTTP
// handlers.
func (t *SSETransport) ReadMessage() (*transport.Message, error) {
	return nil, fmt.Errorf("ReadMessage not implemented for HTTP/SSE transport")
}

// WriteMessage broadcasts to all connected clients.
func (t *SSETransport) WriteMessage(msg *transport.Message) error {
	return t.BroadcastMessage(msg)
}

// Close shuts the HTTP server down with a short drain timeout.
func (t *SSETransport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
