package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mcptools/odata-bridge/internal/transport"
)

// StreamableHTTPTransport serves the modern MCP streamable HTTP
// transport: JSON-RPC over POST /mcp, with an SSE upgrade when the
// client accepts text/event-stream and the response benefits from
// streaming.
type StreamableHTTPTransport struct {
	addr          string
	server        *http.Server
	handler       transport.Handler
	mu            sync.RWMutex
	activeStreams map[string]*streamContext
	allowRemote   bool
}

type streamContext struct {
	id       string
	writer   http.ResponseWriter
	flusher  http.Flusher
	done     chan struct{}
	lastSeen time.Time
}

// NewStreamableHTTP creates a streamable HTTP transport on addr.
// Unless allowRemote is set, non-localhost connections are refused.
func NewStreamableHTTP(addr string, handler transport.Handler, allowRemote bool) *StreamableHTTPTransport {
	return &StreamableHTTPTransport{
		addr:          addr,
		handler:       handler,
		activeStreams: make(map[string]*streamContext),
		allowRemote:   allowRemote,
	}
}

// Start runs the HTTP server until the context is cancelled.
func (t *StreamableHTTPTransport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", t.handleMCP)
	mux.HandleFunc("/sse", t.handleLegacySSE)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "ok",
			"transport": "streamable-http",
			"protocol":  "2024-11-05",
		})
	})

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: t.guardAndDecorate(mux),
	}

	go t.cleanupStreams(ctx)
	go func() {
		if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	<-ctx.Done()
	return t.Close()
}

// guardAndDecorate refuses remote connections unless explicitly
// allowed and attaches security and CORS headers.
func (t *StreamableHTTPTransport) guardAndDecorate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.allowRemote && !isLocalhost(r.RemoteAddr) && !isLocalhost(r.Host) {
			http.Error(w, "Remote connections not allowed without --i-am-security-expert-i-know-what-i-am-doing flag", http.StatusForbidden)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		if isLocalhost(r.Host) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Last-Event-ID")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (t *StreamableHTTPTransport) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	acceptSSE := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	lastEventID := r.Header.Get("Last-Event-ID")

	var msg transport.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
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

	if acceptSSE && t.shouldUpgradeToStream(&msg, response) {
		t.upgradeToSSE(w, r, response, lastEventID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Printf("Error encoding response: %v\n", err)
	}
}

// shouldUpgradeToStream decides whether a request warrants an SSE
// upgrade: long-running methods, or responses carrying continuation
// markers.
func (t *StreamableHTTPTransport) shouldUpgradeToStream(request, response *transport.Message) bool {
	streamingMethods := []string{
		"tools/call",
		"resources/read",
		"prompts/get",
	}
	for _, method := range streamingMethods {
		if strings.Contains(request.Method, method) {
			return true
		}
	}

	if response != nil && response.Result != nil {
		var result map[string]interface{}
		if err := json.Unmarshal(response.Result, &result); err == nil {
			if _, ok := result["has_more"]; ok {
				return true
			}
			if _, ok := result["continuation_token"]; ok {
				return true
			}
		}
	}
	return false
}

func (t *StreamableHTTPTransport) upgradeToSSE(w http.ResponseWriter, r *http.Request, initialResponse *transport.Message, lastEventID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(initialResponse)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx would buffer otherwise

	stream := &streamContext{
		id:       fmt.Sprintf("stream-%d", time.Now().UnixNano()),
		writer:   w,
		flusher:  flusher,
		done:     make(chan struct{}),
		lastSeen: time.Now(),
	}

	t.mu.Lock()
	t.activeStreams[stream.id] = stream
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.activeStreams, stream.id)
		t.mu.Unlock()
		close(stream.done)
	}()

	if initialResponse != nil {
		t.sendSSEMessage(stream, "message", initialResponse)
	}

	if lastEventID != "" {
		t.sendSSEMessage(stream, "resume", map[string]string{
			"last_event_id": lastEventID,
			"status":        "resumed",
		})
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ":ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
			stream.lastSeen = time.Now()

		case <-stream.done:
			return

		case <-r.Context().Done():
			return
		}
	}
}

func (t *StreamableHTTPTransport) sendSSEMessage(stream *streamContext, eventType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	eventID := fmt.Sprintf("%s-%d", stream.id, time.Now().UnixNano())
	_, err = fmt.Fprintf(stream.writer, "id: %s\nevent: %s\ndata: %s\n\n",
		eventID, eventType, jsonData)
	if err != nil {
		return err
	}

	stream.flusher.Flush()
	stream.lastSeen = time.Now()
	return nil
}

// handleLegacySSE keeps the old /sse endpoint alive for clients that
// still use it. Combined Accept headers are allowed.
func (t *StreamableHTTPTransport) handleLegacySSE(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		http.Error(w, "SSE not supported", http.StatusBadRequest)
		return
	}
	r.Header.Set("Accept", "text/event-stream")
	t.handleMCP(w, r)
}

// cleanupStreams drops streams that have not seen traffic in a while.
func (t *StreamableHTTPTransport) cleanupStreams(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			now := time.Now()
			for id, stream := range t.activeStreams {
				if now.Sub(stream.lastSeen) > 5*time.Minute {
					close(stream.done)
					delete(t.activeStreams, id)
				}
			}
			t.mu.Unlock()
		}
	}
}

// BroadcastMessage pushes a message to every active stream.
func (t *StreamableHTTPTransport) BroadcastMessage(msg *transport.Message) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, stream := range t.activeStreams {
		go t.sendSSEMessage(stream, "broadcast", msg)
	}
	return nil
}

// ReadMessage is not supported; inbound traffic arrives via HTTP
// handlers.
func (t *StreamableHTTPTransport) ReadMessage() (*transport.Message, error) {
	return nil, io.EOF
}

// WriteMessage broadcasts to all active streams.
func (t *StreamableHTTPTransport) WriteMessage(msg *transport.Message) error {
	return t.BroadcastMessage(msg)
}

// Close shuts the HTTP server down with a short drain timeout.
func (t *StreamableHTTPTransport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

func isLocalhost(addr string) bool {
	return strings.HasPrefix(addr, "127.") ||
		strings.HasPrefix(addr, "localhost") ||
		strings.HasPrefix(addr, "[::1]") ||
		strings.HasPrefix(addr, "::1")
}
