package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TestClient speaks JSON to a control server under test.
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient builds a client against the given base URL.
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// RequestOption mutates a request before it is sent.
type RequestOption func(*http.Request)

// WithHeader sets a header on the request.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error { return json.Unmarshal(r.Body, v) }

// String returns the body as text.
func (r *Response) String() string { return string(r.Body) }

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Get performs a GET request.
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs a POST request with a JSON body.
func (c *TestClient) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// Put performs a PUT request with a JSON body.
func (c *TestClient) Put(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body, opts...)
}

// Delete performs a DELETE request.
func (c *TestClient) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, opts...)
}

// do sends one JSON request and reads the whole response body.
func (c *TestClient) do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: raw}, nil
}

// ---- Wire Types ----
//
// These mirror the JSON the server emits. Specs decode into them instead of
// importing internal packages so a drifting response shape fails loudly here.

// OverlayStatus is an overlay's declaration merged with its runtime state
type OverlayStatus struct {
	ID             string  `json:"id"`
	Label          string  `json:"label"`
	Group          string  `json:"group,omitempty"`
	OpacityEnabled bool    `json:"opacityEnabled,omitempty"`
	Visible        bool    `json:"visible"`
	Opacity        float64 `json:"opacity"`
	Filtered       bool    `json:"filtered"`
	Loading        bool    `json:"loading"`
	Error          string  `json:"error,omitempty"`
}

// GroupStatus is a group's declaration merged with its runtime state
type GroupStatus struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Visible bool     `json:"visible"`
	Opacity float64  `json:"opacity"`
	Members []string `json:"members"`
}

// BaseStyle is a selectable base style entry
type BaseStyle struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Viewport is the camera state
type Viewport struct {
	Center  LngLat  `json:"center"`
	Zoom    float64 `json:"zoom"`
	Bearing float64 `json:"bearing"`
	Pitch   float64 `json:"pitch"`
}

// LngLat is a longitude/latitude pair
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Snapshot is the GET /control response
type Snapshot struct {
	ActiveBase string          `json:"activeBase"`
	BaseStyles []BaseStyle     `json:"baseStyles"`
	Overlays   []OverlayStatus `json:"overlays"`
	Groups     []GroupStatus   `json:"groups"`
	Viewport   Viewport        `json:"viewport"`
}

// APIError is the error envelope
type APIError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ---- Control Helpers ----

// GetControl retrieves the full control snapshot
func (c *TestClient) GetControl(ctx context.Context) (*Snapshot, error) {
	resp, err := c.Get(ctx, "/control")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get control: %d - %s", resp.StatusCode, resp.String())
	}

	var snap Snapshot
	if err := resp.JSON(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListOverlays retrieves all overlay statuses
func (c *TestClient) ListOverlays(ctx context.Context) ([]OverlayStatus, error) {
	resp, err := c.Get(ctx, "/overlays")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to list overlays: %d - %s", resp.StatusCode, resp.String())
	}

	var overlays []OverlayStatus
	if err := resp.JSON(&overlays); err != nil {
		return nil, err
	}
	return overlays, nil
}

// GetOverlay retrieves one overlay's status
func (c *TestClient) GetOverlay(ctx context.Context, id string) (*OverlayStatus, error) {
	resp, err := c.Get(ctx, "/overlays/"+id)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get overlay: %d - %s", resp.StatusCode, resp.String())
	}

	var status OverlayStatus
	if err := resp.JSON(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ActivateOverlay switches an overlay on
func (c *TestClient) ActivateOverlay(ctx context.Context, id string) (*OverlayStatus, error) {
	resp, err := c.Post(ctx, "/overlays/"+id+"/activate", nil)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to activate overlay: %d - %s", resp.StatusCode, resp.String())
	}

	var status OverlayStatus
	if err := resp.JSON(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// DeactivateOverlay switches an overlay off
func (c *TestClient) DeactivateOverlay(ctx context.Context, id string) (*OverlayStatus, error) {
	resp, err := c.Post(ctx, "/overlays/"+id+"/deactivate", nil)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to deactivate overlay: %d - %s", resp.StatusCode, resp.String())
	}

	var status OverlayStatus
	if err := resp.JSON(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetOverlayOpacity updates an overlay's opacity
func (c *TestClient) SetOverlayOpacity(ctx context.Context, id string, opacity float64) (*OverlayStatus, error) {
	resp, err := c.Put(ctx, "/overlays/"+id+"/opacity", map[string]float64{
		"opacity": opacity,
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to set opacity: %d - %s", resp.StatusCode, resp.String())
	}

	var status OverlayStatus
	if err := resp.JSON(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetGroupVisible flips a group's master switch
func (c *TestClient) SetGroupVisible(ctx context.Context, id string, visible bool) error {
	resp, err := c.Put(ctx, "/groups/"+id+"/visible", map[string]bool{
		"visible": visible,
	})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to set group visibility: %d - %s", resp.StatusCode, resp.String())
	}
	return nil
}

// SetActiveBase switches the active base style
func (c *TestClient) SetActiveBase(ctx context.Context, id string) error {
	resp, err := c.Put(ctx, "/bases/active", map[string]string{
		"id": id,
	})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to set base: %d - %s", resp.StatusCode, resp.String())
	}
	return nil
}

// MoveCamera posts a viewport directive and returns the settled viewport
func (c *TestClient) MoveCamera(ctx context.Context, directive map[string]interface{}) (*Viewport, error) {
	resp, err := c.Post(ctx, "/viewport", directive)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to move camera: %d - %s", resp.StatusCode, resp.String())
	}

	var v Viewport
	if err := resp.JSON(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ClearState wipes the persisted widget state
func (c *TestClient) ClearState(ctx context.Context) error {
	resp, err := c.Delete(ctx, "/state")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to clear state: %d - %s", resp.StatusCode, resp.String())
	}
	return nil
}

// ---- Assertion Helpers ----

// ContainsString checks if a string slice contains a value
func ContainsString(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}

// FindOverlay returns the overlay with the given id, or nil
func FindOverlay(overlays []OverlayStatus, id string) *OverlayStatus {
	for i := range overlays {
		if overlays[i].ID == id {
			return &overlays[i]
		}
	}
	return nil
}
