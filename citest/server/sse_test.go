package server_test

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/drecchia/maplibre-layerlibre/citest/testutil"
)

var _ = Describe("SSE Event Streaming", func() {
	BeforeEach(func() {
		resetControl()
	})

	Describe("GET /event", func() {
		It("should return SSE content-type header", func() {
			req, err := http.NewRequest("GET", testServer.BaseURL+"/event", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Accept", "text/event-stream")

			reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			resp, err := http.DefaultClient.Do(req.WithContext(reqCtx))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		})

		It("should send the control snapshot as the first event", func() {
			sseClient := testServer.SSEClient()
			err := sseClient.Connect(ctx, "/event")
			Expect(err).NotTo(HaveOccurred())
			defer sseClient.Close()

			evt, err := sseClient.WaitForEvent("snapshot", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			snap, err := evt.ParseSnapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.ActiveBase).To(Equal("streets"))
			Expect(snap.Overlays).To(HaveLen(4))

			// Nothing may precede the snapshot.
			all := sseClient.GetAllEvents()
			Expect(all[0].Type).To(Equal("snapshot"))
		})

		It("should stream overlay activation events", func() {
			sseClient := testServer.SSEClient()
			err := sseClient.Connect(ctx, "/event")
			Expect(err).NotTo(HaveOccurred())
			defer sseClient.Close()

			_, err = sseClient.WaitForEvent("snapshot", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			go func() {
				defer GinkgoRecover()
				_, err := client.ActivateOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())
			}()

			evt, err := sseClient.WaitForEvent("overlaychange", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			data, err := evt.ParseOverlayEvent()
			Expect(err).NotTo(HaveOccurred())
			Expect(data.ID).To(Equal("rivers"))
			Expect(data.Visible).To(BeTrue())
		})

		It("should stream base switch events", func() {
			sseClient := testServer.SSEClient()
			err := sseClient.Connect(ctx, "/event")
			Expect(err).NotTo(HaveOccurred())
			defer sseClient.Close()

			_, err = sseClient.WaitForEvent("snapshot", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			go func() {
				defer GinkgoRecover()
				Expect(client.SetActiveBase(ctx, "satellite")).To(Succeed())
			}()

			evt, err := sseClient.WaitForEvent("basechange", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			data, err := evt.ParseBaseEvent()
			Expect(err).NotTo(HaveOccurred())
			Expect(data.ID).To(Equal("satellite"))

			// The style swap re-applies overlays and reports completion.
			_, err = sseClient.WaitForEvent("styleload", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should fan a group toggle out to every member", func() {
			_, err := client.ActivateOverlay(ctx, "rivers")
			Expect(err).NotTo(HaveOccurred())
			_, err = client.ActivateOverlay(ctx, "lakes")
			Expect(err).NotTo(HaveOccurred())

			sseClient := testServer.SSEClient()
			Expect(sseClient.Connect(ctx, "/event")).To(Succeed())
			defer sseClient.Close()

			_, err = sseClient.WaitForEvent("snapshot", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			go func() {
				defer GinkgoRecover()
				Expect(client.SetGroupVisible(ctx, "hydrology", false)).To(Succeed())
			}()

			matcher := testutil.NewEventMatcher(sseClient.CollectEvents(2 * time.Second))
			Expect(matcher.CountType("overlaygroupchange")).To(Equal(1))
			Expect(matcher.CountType("overlaychange")).To(Equal(2))

			// Members keep their own flags while the group is off.
			for _, evt := range matcher.FilterType("overlaychange") {
				data, err := evt.ParseOverlayEvent()
				Expect(err).NotTo(HaveOccurred())
				Expect(data.Visible).To(BeTrue())
			}
		})

		It("should stream zoom filter transitions", func() {
			_, err := client.ActivateOverlay(ctx, "contours")
			Expect(err).NotTo(HaveOccurred())

			sseClient := testServer.SSEClient()
			err = sseClient.Connect(ctx, "/event")
			Expect(err).NotTo(HaveOccurred())
			defer sseClient.Close()

			_, err = sseClient.WaitForEvent("snapshot", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			go func() {
				defer GinkgoRecover()
				_, err := client.MoveCamera(ctx, map[string]interface{}{"zoom": 5})
				Expect(err).NotTo(HaveOccurred())
			}()

			evt, err := sseClient.WaitForEvent("zoomfilter", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			data, err := evt.ParseZoomFilterEvent()
			Expect(err).NotTo(HaveOccurred())
			Expect(data.ID).To(Equal("contours"))
			Expect(data.Filtered).To(BeTrue())
		})
	})

	Describe("SSE Connection Lifecycle", func() {
		It("should handle client disconnect gracefully", func() {
			sseClient := testServer.SSEClient()
			err := sseClient.Connect(ctx, "/event")
			Expect(err).NotTo(HaveOccurred())

			sseClient.Close()

			// Server keeps serving after the stream drops.
			resp, err := client.Get(ctx, "/healthz")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())
		})

		It("should stop sending after context cancel", func() {
			cancelCtx, cancel := context.WithCancel(ctx)

			sseClient := testServer.SSEClient()
			err := sseClient.Connect(cancelCtx, "/event")
			Expect(err).NotTo(HaveOccurred())

			cancel()
			time.Sleep(200 * time.Millisecond)
			sseClient.Close()

			resp, err := client.Get(ctx, "/healthz")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())
		})

		It("should serve several streams at once", func() {
			clients := make([]*testutil.SSEClient, 3)
			for i := range clients {
				clients[i] = testServer.SSEClient()
				Expect(clients[i].Connect(ctx, "/event")).To(Succeed())
				defer clients[i].Close()

				_, err := clients[i].WaitForEvent("snapshot", 5*time.Second)
				Expect(err).NotTo(HaveOccurred())
			}

			go func() {
				defer GinkgoRecover()
				_, err := client.ActivateOverlay(ctx, "lakes")
				Expect(err).NotTo(HaveOccurred())
			}()

			for _, c := range clients {
				evt, err := c.WaitForEvent("overlaychange", 5*time.Second)
				Expect(err).NotTo(HaveOccurred())

				data, err := evt.ParseOverlayEvent()
				Expect(err).NotTo(HaveOccurred())
				Expect(data.ID).To(Equal("lakes"))
			}
		})
	})
})
