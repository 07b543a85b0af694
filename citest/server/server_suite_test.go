package server_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/drecchia/maplibre-layerlibre/citest/testutil"
)

var (
	testServer *testutil.TestServer
	client     *testutil.TestClient
	ctx        context.Context
)

func TestServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Control API Suite")
}

var _ = BeforeSuite(func() {
	var err error
	testServer, err = testutil.StartTestServer()
	Expect(err).NotTo(HaveOccurred(), "Failed to start test server")

	client = testServer.Client()
	ctx = context.Background()
})

var _ = AfterSuite(func() {
	if testServer != nil {
		testServer.Stop()
	}
})

// resetControl returns the shared server to a known state: every overlay
// hidden, every group on, default base active and the camera back at the
// start position. Specs that mutate state call it from BeforeEach.
func resetControl() {
	snap, err := client.GetControl(ctx)
	Expect(err).NotTo(HaveOccurred())

	// Re-enabling a group can reactivate members, so groups go first and
	// the overlay pass works from a fresh snapshot.
	for _, g := range snap.Groups {
		if !g.Visible {
			Expect(client.SetGroupVisible(ctx, g.ID, true)).To(Succeed())
			snap, err = client.GetControl(ctx)
			Expect(err).NotTo(HaveOccurred())
		}
	}
	for _, o := range snap.Overlays {
		if o.Visible {
			_, err := client.DeactivateOverlay(ctx, o.ID)
			Expect(err).NotTo(HaveOccurred())
		}
	}
	if snap.ActiveBase != "streets" {
		Expect(client.SetActiveBase(ctx, "streets")).To(Succeed())
	}

	start := testutil.StartViewport()
	if snap.Viewport.Zoom != start.Zoom || snap.Viewport.Center.Lng != start.Center.Lng {
		_, err := client.MoveCamera(ctx, map[string]interface{}{
			"center": map[string]float64{"lng": start.Center.Lng, "lat": start.Center.Lat},
			"zoom":   start.Zoom,
		})
		Expect(err).NotTo(HaveOccurred())
	}
}
