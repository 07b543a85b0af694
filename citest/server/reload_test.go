package server_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/drecchia/maplibre-layerlibre/citest/testutil"
)

// These specs run their own server wired to a catalog file on disk, so edits
// to the file flow through the watcher into the live control.
var _ = Describe("Catalog Hot Reload", func() {
	var (
		tempDir     *testutil.TempDir
		catalogPath string
		srv         *testutil.TestServer
		srvClient   *testutil.TestClient
	)

	BeforeEach(func() {
		var err error
		tempDir, err = testutil.NewTempDir()
		Expect(err).NotTo(HaveOccurred())

		catalogPath, err = tempDir.WriteFile("catalog.json", testutil.CatalogJSON)
		Expect(err).NotTo(HaveOccurred())

		srv, err = testutil.StartTestServer(
			testutil.WithCatalogFile(catalogPath, 50*time.Millisecond),
		)
		Expect(err).NotTo(HaveOccurred())
		srvClient = srv.Client()
	})

	AfterEach(func() {
		if srv != nil {
			srv.Stop()
		}
		if tempDir != nil {
			tempDir.Cleanup()
		}
	})

	It("should apply catalog edits to the running control", func() {
		overlays, err := srvClient.ListOverlays(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(overlays).To(HaveLen(1))
		Expect(overlays[0].Label).To(Equal("Rivers"))

		_, err = tempDir.WriteFile("catalog.json", testutil.CatalogJSONUpdated)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() bool {
			overlays, err := srvClient.ListOverlays(ctx)
			if err != nil {
				return false
			}
			rivers := testutil.FindOverlay(overlays, "rivers")
			parks := testutil.FindOverlay(overlays, "parks")
			return rivers != nil && rivers.Label == "Waterways" && parks != nil
		}, 5*time.Second, 50*time.Millisecond).Should(BeTrue())
	})

	It("should keep runtime state across a reload", func() {
		_, err := srvClient.ActivateOverlay(ctx, "rivers")
		Expect(err).NotTo(HaveOccurred())

		_, err = tempDir.WriteFile("catalog.json", testutil.CatalogJSONUpdated)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() bool {
			status, err := srvClient.GetOverlay(ctx, "rivers")
			return err == nil && status.Label == "Waterways"
		}, 5*time.Second, 50*time.Millisecond).Should(BeTrue())

		// The relabeled overlay is still switched on.
		status, err := srvClient.GetOverlay(ctx, "rivers")
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Visible).To(BeTrue())
	})

	It("should reject a broken catalog and keep serving the old one", func() {
		_, err := tempDir.WriteFile("catalog.json", testutil.CatalogJSONBroken)
		Expect(err).NotTo(HaveOccurred())

		// Give the watcher time to see the write and reject it.
		Consistently(func() int {
			overlays, err := srvClient.ListOverlays(ctx)
			if err != nil {
				return -1
			}
			return len(overlays)
		}, 500*time.Millisecond, 100*time.Millisecond).Should(Equal(1))

		// A later fix lands normally.
		_, err = tempDir.WriteFile("catalog.json", testutil.CatalogJSONUpdated)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() bool {
			overlays, err := srvClient.ListOverlays(ctx)
			return err == nil && len(overlays) == 2
		}, 5*time.Second, 50*time.Millisecond).Should(BeTrue())
	})
})
