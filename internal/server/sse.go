package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/drecchia/maplibre-layerlibre/internal/event"
)

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second

	// sseBufferSize bounds the per-client queue between the bus stream and
	// the network write. A client slower than that loses events.
	sseBufferSize = 32
)

// sseEvent is one outgoing SSE message: the bus topic as the event name and
// the already-encoded payload as the data line.
type sseEvent struct {
	topic string
	data  json.RawMessage
}

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	// Use ResponseController for more reliable flushing (Go 1.20+)
	rc := http.NewResponseController(w)

	// Try to get flusher interface as well
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE event.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	// Write SSE format: event type, data, and blank line
	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData)
	if err != nil {
		return err
	}

	// Flush immediately using ResponseController (more reliable than Flusher interface)
	// This ensures data is sent even through middleware wrappers
	if flushErr := s.rc.Flush(); flushErr != nil {
		// Fallback to traditional flusher
		s.flusher.Flush()
	}

	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events streams every bus event to the client. Each SSE message carries
// the bus topic as its event name and the payload JSON as its data.
func (srv *Server) events(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	msgs, err := srv.control.Bus().Stream(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Explicitly write status and flush headers immediately
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	// Send the current control snapshot first so a client needs no extra
	// round trip to draw its initial state.
	if err := sse.writeEvent("snapshot", srv.snapshot()); err != nil {
		return
	}

	// Pump the stream into a local queue, acking right away so a slow
	// client never backs up the bus. Drops are logged, not blocked on.
	events := make(chan sseEvent, sseBufferSize)
	go func() {
		for msg := range msgs {
			topic := msg.Metadata.Get("topic")
			data := json.RawMessage(msg.Payload)
			msg.Ack()

			// The umbrella change event duplicates every specific one.
			if topic == string(event.TopicChange) {
				continue
			}

			select {
			case events <- sseEvent{topic: topic, data: data}:
			default:
				srv.log.Warn().
					Str("topic", topic).
					Msg("SSE event dropped: client queue full")
			}
		}
	}()

	// Heartbeat ticker
	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	// Wait for client disconnect or context cancellation
	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent(e.topic, e.data); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
