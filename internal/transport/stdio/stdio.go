// Package stdio implements the newline-delimited JSON transport used
// by MCP clients that spawn the bridge as a child process.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mcptools/odata-bridge/internal/debug"
	"github.com/mcptools/odata-bridge/internal/transport"
)

// Transport reads requests from stdin and writes responses to stdout,
// one JSON object per line. Nothing else may touch either stream while
// it runs.
type Transport struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	handler transport.Handler
	tracer  *debug.TraceLogger
}

// New creates a stdio transport bound to the process streams.
func New(handler transport.Handler) *Transport {
	return &Transport{
		reader:  bufio.NewReader(os.Stdin),
		writer:  os.Stdout,
		handler: handler,
	}
}

// SetTracer enables wire-level trace logging.
func (t *Transport) SetTracer(tracer *debug.TraceLogger) {
	t.tracer = tracer
}

// Start runs the read loop until stdin closes or the context ends.
// Malformed lines are skipped; writing diagnostics to stderr would
// confuse clients that multiplex it, so errors stay silent here and
// surface through the tracer when one is attached.
func (t *Transport) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := t.ReadMessage()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			continue
		}

		if msg.Method == "" || t.handler == nil {
			continue
		}

		response, err := t.handler(ctx, msg)
		if err != nil {
			id := msg.ID
			if len(id) == 0 || string(id) == "null" {
				id = json.RawMessage("0")
			}
			response = &transport.Message{
				JSONRPC: "2.0",
				ID:      id,
				Error: &transport.Error{
					Code:    -32603,
					Message: err.Error(),
				},
			}
		}
		if response != nil {
			_ = t.WriteMessage(response)
		}
	}
}

// ReadMessage reads one line-delimited JSON message from stdin.
func (t *Transport) ReadMessage() (*transport.Message, error) {
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	if t.tracer != nil {
		t.tracer.Log("TRANSPORT_IN", "Raw message received", map[string]interface{}{
			"raw":  string(line),
			"size": len(line),
		})
	}

	var msg transport.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		if t.tracer != nil {
			t.tracer.LogError("Failed to unmarshal message", err, map[string]interface{}{
				"raw": string(line),
			})
		}
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// WriteMessage writes one JSON message, newline-terminated, to stdout.
func (t *Transport) WriteMessage(msg *transport.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if t.tracer != nil {
		t.tracer.Log("TRANSPORT_OUT", "Sending message", map[string]interface{}{
			"raw":  string(data),
			"size": len(data),
		})
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return err
	}
	_, err = t.writer.Write([]byte("\n"))
	return err
}

// Close is a no-op; the process owns stdin and stdout.
func (t *Transport) Close() error {
	return nil
}
