package testutil

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/afero"

	"github.com/drecchia/maplibre-layerlibre/internal/config"
	"github.com/drecchia/maplibre-layerlibre/internal/control"
	"github.com/drecchia/maplibre-layerlibre/internal/headless"
	"github.com/drecchia/maplibre-layerlibre/internal/server"
	"github.com/drecchia/maplibre-layerlibre/internal/storage"
	"github.com/drecchia/maplibre-layerlibre/internal/watcher"
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// TestServer wraps a running control server for testing
type TestServer struct {
	Server  *server.Server
	BaseURL string
	Control *control.Control
	Gateway *headless.Gateway
	Surface *headless.Surface
	Watcher *watcher.Watcher
	port    int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	catalog       *config.Catalog
	catalogPath   string
	watchDebounce time.Duration
	viewport      types.ViewportState
}

// WithCatalog overrides the default test catalog
func WithCatalog(cat *config.Catalog) TestServerOption {
	return func(c *testServerConfig) {
		c.catalog = cat
	}
}

// WithCatalogFile loads the catalog from a file and hot-reloads it on change
func WithCatalogFile(path string, debounce time.Duration) TestServerOption {
	return func(c *testServerConfig) {
		c.catalogPath = path
		c.watchDebounce = debounce
	}
}

// WithStartViewport sets the camera position the server starts at
func WithStartViewport(v types.ViewportState) TestServerOption {
	return func(c *testServerConfig) {
		c.viewport = v
	}
}

// DefaultCatalog builds the catalog the test server serves unless overridden:
// two base styles, two groups and four overlays covering opacity, zoom
// filtering and tooltips.
func DefaultCatalog() *config.Catalog {
	return &config.Catalog{
		BaseStyles: []types.BaseStyle{
			{ID: "streets", Label: "Streets", Style: "https://tiles.example.com/streets.json"},
			{ID: "satellite", Label: "Satellite", Style: "https://tiles.example.com/satellite.json"},
		},
		Groups: []types.Group{
			{ID: "hydrology", Label: "Hydrology"},
			{ID: "transport", Label: "Transport"},
		},
		Overlays: []types.Overlay{
			{
				ID:    "rivers",
				Label: "Rivers",
				Group: "hydrology",
				LayerSpecs: []types.LayerSpec{
					{ID: "rivers-line", Kind: "line", Props: map[string]any{"source": "rivers"}},
				},
				OpacityEnabled: true,
				DefaultOpacity: 0.8,
				Tooltip:        &types.TooltipSpec{Text: "River: {{ properties.name }}"},
			},
			{
				ID:    "lakes",
				Label: "Lakes",
				Group: "hydrology",
				LayerSpecs: []types.LayerSpec{
					{ID: "lakes-fill", Kind: "fill", Props: map[string]any{"source": "lakes"}},
				},
				DefaultOpacity: 1,
			},
			{
				ID:    "roads",
				Label: "Roads",
				Group: "transport",
				LayerSpecs: []types.LayerSpec{
					{ID: "roads-line", Kind: "line", Props: map[string]any{"source": "roads"}},
				},
				OpacityEnabled: true,
				DefaultOpacity: 1,
			},
			{
				ID:    "contours",
				Label: "Contour Lines",
				LayerSpecs: []types.LayerSpec{
					{ID: "contours-line", Kind: "line", Props: map[string]any{"source": "contours"}},
				},
				DefaultOpacity: 1,
				ZoomRange:      &types.ZoomRange{Min: floatPtr(10), Max: floatPtr(22)},
			},
		},
	}
}

func floatPtr(v float64) *float64 { return &v }

// StartViewport is the camera position test servers start at. Zoom 12 keeps
// the contours overlay inside its zoom range.
func StartViewport() types.ViewportState {
	return types.ViewportState{Center: types.LngLat{Lng: 13.4, Lat: 52.5}, Zoom: 12}
}

// StartTestServer creates and starts a test server
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{viewport: StartViewport()}
	for _, opt := range opts {
		opt(cfg)
	}

	cat := cfg.catalog
	if cfg.catalogPath != "" {
		loaded, err := config.LoadCatalog(cfg.catalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		cat = loaded
	}
	if cat == nil {
		cat = DefaultCatalog()
	}

	// Headless ports stand in for the real map. Style application is
	// instantaneous without a renderer, so style-ready fires inline.
	gateway := headless.NewGateway(
		headless.WithSyncStyleReady(),
		headless.WithViewport(cfg.viewport),
	)
	surface := headless.NewSurface()
	store := storage.New(afero.NewMemMapFs(), "state")

	ctrl, err := control.New(control.Options{
		Catalog: cat,
		Gateway: gateway,
		Surface: surface,
		Storage: store,
		// Short debounce so viewport specs settle fast.
		MoveDebounce: 50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build control: %w", err)
	}

	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		_ = ctrl.Close(ctx)
		return nil, fmt.Errorf("failed to start control: %w", err)
	}

	port, err := findAvailablePort()
	if err != nil {
		_ = ctrl.Close(ctx)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = port

	srv := server.New(serverConfig, ctrl, gateway)

	var fileWatcher *watcher.Watcher
	if cfg.catalogPath != "" {
		debounce := cfg.watchDebounce
		if debounce <= 0 {
			debounce = 50 * time.Millisecond
		}
		fileWatcher, err = watcher.New(cfg.catalogPath, ctrl, watcher.WithDebounce(debounce))
		if err != nil {
			_ = ctrl.Close(ctx)
			return nil, fmt.Errorf("failed to build watcher: %w", err)
		}
		fileWatcher.Start()
	}

	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://localhost:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		if fileWatcher != nil {
			fileWatcher.Stop()
		}
		_ = srv.Shutdown(ctx)
		_ = ctrl.Close(ctx)
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:  srv,
		BaseURL: baseURL,
		Control: ctrl,
		Gateway: gateway,
		Surface: surface,
		Watcher: fileWatcher,
		port:    port,
	}, nil
}

// Stop shuts down the test server and cleans up
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ts.Watcher != nil {
		ts.Watcher.Stop()
	}
	if ts.Server != nil {
		if err := ts.Server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if ts.Control != nil {
		return ts.Control.Close(ctx)
	}
	return nil
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/healthz")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
