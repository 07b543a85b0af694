package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SSEEvent is one event off the wire: the event name plus its raw data
// payload.
type SSEEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SSEClient consumes a control server's /event stream during tests. Every
// event is appended to an internal log; live events are also handed out
// over a buffered channel for the wait/collect helpers.
type SSEClient struct {
	BaseURL    string
	HTTPClient *http.Client

	mu     sync.Mutex
	log    []SSEEvent
	live   chan SSEEvent
	errs   chan error
	cancel context.CancelFunc
	body   io.ReadCloser
}

// NewSSEClient builds a client for the given server base URL. The HTTP
// client carries no timeout; the stream stays open until Close.
func NewSSEClient(baseURL string) *SSEClient {
	return &SSEClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		live:       make(chan SSEEvent, 100),
		errs:       make(chan error, 1),
	}
}

// Connect opens the stream at path and starts consuming it in the
// background. Fails when the server answers with anything but an SSE
// response.
func (c *SSEClient) Connect(ctx context.Context, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return fmt.Errorf("unexpected content type: %s", ct)
	}

	c.body = resp.Body
	go c.consume(resp.Body)
	return nil
}

// consume parses the stream line by line. A blank line completes the
// pending event; comment lines are the server's heartbeat.
func (c *SSEClient) consume(body io.Reader) {
	defer func() {
		close(c.live)
		close(c.errs)
	}()

	var name string
	var data strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				c.record(SSEEvent{Type: name, Data: json.RawMessage(data.String())})
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			c.record(SSEEvent{Type: "heartbeat"})
		default:
			if v, ok := strings.CutPrefix(line, "event:"); ok {
				name = strings.TrimSpace(v)
			} else if v, ok := strings.CutPrefix(line, "data:"); ok {
				data.WriteString(strings.TrimSpace(v))
			}
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		c.errs <- err
	}
}

func (c *SSEClient) record(evt SSEEvent) {
	c.mu.Lock()
	c.log = append(c.log, evt)
	c.mu.Unlock()

	select {
	case c.live <- evt:
	default:
		// Slow consumer; the log still has the event.
	}
}

// WaitForEvent blocks until an event of the given type arrives, discarding
// other types along the way.
func (c *SSEClient) WaitForEvent(eventType string, timeout time.Duration) (*SSEEvent, error) {
	deadline := time.After(timeout)
	for {
		select {
		case evt, ok := <-c.live:
			if !ok {
				return nil, fmt.Errorf("connection closed")
			}
			if evt.Type == eventType {
				return &evt, nil
			}
		case err, ok := <-c.errs:
			if !ok {
				return nil, fmt.Errorf("connection closed")
			}
			return nil, err
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event: %s", eventType)
		}
	}
}

// CollectEvents drains live events for the given window and returns them
// in arrival order. Events already consumed by WaitForEvent are not
// replayed.
func (c *SSEClient) CollectEvents(window time.Duration) []SSEEvent {
	var out []SSEEvent
	deadline := time.After(window)
	for {
		select {
		case evt, ok := <-c.live:
			if !ok {
				return out
			}
			out = append(out, evt)
		case <-deadline:
			return out
		}
	}
}

// GetAllEvents returns a copy of every event seen since Connect, including
// ones already consumed from the live channel.
func (c *SSEClient) GetAllEvents() []SSEEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SSEEvent, len(c.log))
	copy(out, c.log)
	return out
}

// Close tears the connection down. Safe to call twice.
func (c *SSEClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.body != nil {
		c.body.Close()
	}
}

// ---- SSE Event Data Helpers ----
//
// Event data lines carry the payload object directly; these mirror the wire
// shapes the bus publishes.

// OverlayEventData represents overlaychange event data
type OverlayEventData struct {
	ID      string  `json:"id"`
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity"`
}

// GroupEventData represents overlaygroupchange event data
type GroupEventData struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
}

// BaseEventData represents basechange event data
type BaseEventData struct {
	ID string `json:"id"`
}

// ZoomFilterEventData represents zoomfilter event data
type ZoomFilterEventData struct {
	ID       string `json:"id"`
	Filtered bool   `json:"filtered"`
}

// ParseOverlayEvent parses overlaychange event data
func (evt *SSEEvent) ParseOverlayEvent() (*OverlayEventData, error) {
	var data OverlayEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ParseGroupEvent parses overlaygroupchange event data
func (evt *SSEEvent) ParseGroupEvent() (*GroupEventData, error) {
	var data GroupEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ParseBaseEvent parses basechange event data
func (evt *SSEEvent) ParseBaseEvent() (*BaseEventData, error) {
	var data BaseEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ParseZoomFilterEvent parses zoomfilter event data
func (evt *SSEEvent) ParseZoomFilterEvent() (*ZoomFilterEventData, error) {
	var data ZoomFilterEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ParseSnapshot parses the initial snapshot event data
func (evt *SSEEvent) ParseSnapshot() (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(evt.Data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
