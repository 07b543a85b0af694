package commands

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/drecchia/maplibre-layerlibre/internal/config"
	"github.com/drecchia/maplibre-layerlibre/internal/control"
	"github.com/drecchia/maplibre-layerlibre/internal/headless"
	"github.com/drecchia/maplibre-layerlibre/internal/server"
	"github.com/drecchia/maplibre-layerlibre/internal/storage"
	"github.com/drecchia/maplibre-layerlibre/internal/watcher"
)

var (
	servePort    int
	serveCatalog string
	serveState   string
	serveWatch   bool
	serveNoCORS  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the headless layer control service",
	Long: `Start layerlibre as a headless service that exposes the layer
control over an HTTP API, including a live SSE event stream.

The map runs in-process against a headless gateway; camera moves can be
simulated through POST /viewport.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVarP(&serveCatalog, "catalog", "c", "", "Catalog file (default: "+config.DefaultCatalogPath()+")")
	serveCmd.Flags().StringVar(&serveState, "state-dir", "", "State directory (default: XDG data dir)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload the catalog when its file changes")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false, "Disable CORS headers")
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Printf("Starting layerlibre v%s", Version)

	// Initialize paths
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	stateDir := serveState
	if stateDir == "" {
		stateDir = paths.Data
	}

	// Load the catalog. An explicit path must exist; the default location
	// may be absent, in which case the service starts empty and overlays
	// arrive via hot reload or the API.
	catalogPath := serveCatalog
	explicit := catalogPath != ""
	if !explicit {
		catalogPath = config.DefaultCatalogPath()
	}

	cat, err := config.LoadCatalog(catalogPath)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			log.Printf("No catalog at %s, starting empty", catalogPath)
			cat = &config.Catalog{}
		} else {
			return err
		}
	}
	log.Printf("Catalog: %d base styles, %d overlays", len(cat.BaseStyles), len(cat.Overlays))

	// Assemble the control around the headless map. Style application is
	// instantaneous without a real renderer, so style-ready fires inline.
	gateway := headless.NewGateway(headless.WithSyncStyleReady())
	ctrl, err := control.New(control.Options{
		Catalog: cat,
		Gateway: gateway,
		Surface: headless.NewSurface(),
		Storage: storage.New(afero.NewOsFs(), stateDir),
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	log.Printf("State directory: %s", stateDir)

	// Configure server
	serverConfig := server.DefaultConfig()
	serverConfig.Port = servePort
	serverConfig.EnableCORS = !serveNoCORS

	srv := server.New(serverConfig, ctrl, gateway)

	// Catalog hot reload
	var fileWatcher *watcher.Watcher
	if serveWatch {
		if _, statErr := os.Stat(catalogPath); statErr == nil {
			fileWatcher, err = watcher.New(catalogPath, ctrl)
			if err != nil {
				return err
			}
			fileWatcher.Start()
			log.Printf("Watching %s for changes", catalogPath)
		}
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", servePort)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	if fileWatcher != nil {
		if err := fileWatcher.Stop(); err != nil {
			log.Printf("Watcher stop error: %v", err)
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Flush pending state before exiting.
	if err := ctrl.Close(shutdownCtx); err != nil {
		log.Printf("State flush error: %v", err)
	}

	log.Println("Stopped")
	return nil
}
