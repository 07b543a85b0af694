package server_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/drecchia/maplibre-layerlibre/citest/testutil"
)

var _ = Describe("Control API Endpoints", func() {
	BeforeEach(func() {
		resetControl()
	})

	// ==================== Control Snapshot ====================
	Describe("GET /control", func() {
		It("should return the full widget snapshot", func() {
			snap, err := client.GetControl(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(snap.ActiveBase).To(Equal("streets"))
			Expect(snap.BaseStyles).To(HaveLen(2))
			Expect(snap.Overlays).To(HaveLen(4))
			Expect(snap.Groups).To(HaveLen(2))
			Expect(snap.Viewport.Zoom).To(Equal(12.0))
		})

		It("should list overlays in catalog order", func() {
			snap, err := client.GetControl(ctx)
			Expect(err).NotTo(HaveOccurred())

			var ids []string
			for _, o := range snap.Overlays {
				ids = append(ids, o.ID)
			}
			Expect(ids).To(Equal([]string{"rivers", "lakes", "roads", "contours"}))
		})

		It("should resolve group members", func() {
			snap, err := client.GetControl(ctx)
			Expect(err).NotTo(HaveOccurred())

			for _, g := range snap.Groups {
				switch g.ID {
				case "hydrology":
					Expect(g.Members).To(ConsistOf("rivers", "lakes"))
				case "transport":
					Expect(g.Members).To(ConsistOf("roads"))
				}
			}
		})
	})

	// ==================== Overlay Endpoints ====================
	Describe("Overlay Endpoints", func() {
		Describe("GET /overlays", func() {
			It("should list all overlays with runtime state", func() {
				overlays, err := client.ListOverlays(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(len(overlays)).To(Equal(4))

				rivers := testutil.FindOverlay(overlays, "rivers")
				Expect(rivers).NotTo(BeNil())
				Expect(rivers.Visible).To(BeFalse())
				Expect(rivers.Opacity).To(Equal(0.8))
				Expect(rivers.OpacityEnabled).To(BeTrue())
			})
		})

		Describe("GET /overlays/{overlayID}", func() {
			It("should retrieve one overlay", func() {
				status, err := client.GetOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())
				Expect(status.ID).To(Equal("rivers"))
				Expect(status.Label).To(Equal("Rivers"))
				Expect(status.Group).To(Equal("hydrology"))
			})

			It("should return 404 for an unknown overlay", func() {
				resp, err := client.Get(ctx, "/overlays/nope")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))

				var apiErr testutil.APIError
				Expect(resp.JSON(&apiErr)).To(Succeed())
				Expect(apiErr.Error.Code).To(Equal("NOT_FOUND"))
				Expect(apiErr.Error.Message).To(ContainSubstring("nope"))
			})
		})

		Describe("POST /overlays/{overlayID}/activate", func() {
			It("should switch the overlay on", func() {
				status, err := client.ActivateOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Visible).To(BeTrue())
				Expect(status.Filtered).To(BeFalse())
				Expect(status.Loading).To(BeFalse())
			})

			It("should be idempotent", func() {
				_, err := client.ActivateOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())

				status, err := client.ActivateOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Visible).To(BeTrue())
			})

			It("should mark an out-of-range overlay as filtered", func() {
				// Move below the contours zoom range first.
				_, err := client.MoveCamera(ctx, map[string]interface{}{"zoom": 5})
				Expect(err).NotTo(HaveOccurred())

				status, err := client.ActivateOverlay(ctx, "contours")
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Visible).To(BeTrue())
				Expect(status.Filtered).To(BeTrue())
			})

			It("should return 404 for an unknown overlay", func() {
				resp, err := client.Post(ctx, "/overlays/nope/activate", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))
			})
		})

		Describe("POST /overlays/{overlayID}/deactivate", func() {
			It("should switch the overlay off", func() {
				_, err := client.ActivateOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())

				status, err := client.DeactivateOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Visible).To(BeFalse())
			})

			It("should tolerate deactivating an inactive overlay", func() {
				status, err := client.DeactivateOverlay(ctx, "lakes")
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Visible).To(BeFalse())
			})
		})

		Describe("PUT /overlays/{overlayID}/opacity", func() {
			It("should update opacity", func() {
				status, err := client.SetOverlayOpacity(ctx, "rivers", 0.4)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Opacity).To(Equal(0.4))
			})

			It("should clamp opacity into [0,1]", func() {
				status, err := client.SetOverlayOpacity(ctx, "rivers", 1.7)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Opacity).To(Equal(1.0))

				status, err = client.SetOverlayOpacity(ctx, "rivers", -0.3)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Opacity).To(Equal(0.0))
			})

			It("should return 400 for a malformed body", func() {
				resp, err := client.Put(ctx, "/overlays/rivers/opacity", "not an object")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(400))
			})
		})
	})

	// ==================== Group Endpoints ====================
	Describe("Group Endpoints", func() {
		Describe("GET /groups", func() {
			It("should list groups with members", func() {
				resp, err := client.Get(ctx, "/groups")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.IsSuccess()).To(BeTrue())

				var groups []testutil.GroupStatus
				Expect(resp.JSON(&groups)).To(Succeed())
				Expect(len(groups)).To(Equal(2))
			})
		})

		Describe("PUT /groups/{groupID}/visible", func() {
			It("should suppress members without clearing their flags", func() {
				_, err := client.ActivateOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())

				Expect(client.SetGroupVisible(ctx, "hydrology", false)).To(Succeed())

				// The member keeps its own visible flag; only the group
				// master switch is off.
				status, err := client.GetOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Visible).To(BeTrue())

				resp, err := client.Get(ctx, "/groups/hydrology/visible")
				Expect(err).NotTo(HaveOccurred())
				var group testutil.GroupStatus
				Expect(resp.JSON(&group)).To(Succeed())
				Expect(group.Visible).To(BeFalse())
			})

			It("should restore members when switched back on", func() {
				_, err := client.ActivateOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())

				before := testServer.Surface.Layers()

				Expect(client.SetGroupVisible(ctx, "hydrology", false)).To(Succeed())
				Expect(len(testServer.Surface.Layers())).To(BeNumerically("<", len(before)))

				Expect(client.SetGroupVisible(ctx, "hydrology", true)).To(Succeed())
				Expect(testServer.Surface.Layers()).To(HaveLen(len(before)))
			})

			It("should return 404 for an unknown group", func() {
				resp, err := client.Put(ctx, "/groups/nope/visible", map[string]bool{"visible": false})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))
			})
		})

		Describe("PUT /groups/{groupID}/opacity", func() {
			It("should accept a group opacity", func() {
				resp, err := client.Put(ctx, "/groups/hydrology/opacity", map[string]float64{"opacity": 0.5})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.IsSuccess()).To(BeTrue())

				var group testutil.GroupStatus
				Expect(resp.JSON(&group)).To(Succeed())
				Expect(group.Opacity).To(Equal(0.5))
			})
		})
	})

	// ==================== Base Style Endpoints ====================
	Describe("Base Style Endpoints", func() {
		Describe("GET /bases", func() {
			It("should list base styles and the active one", func() {
				resp, err := client.Get(ctx, "/bases")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.IsSuccess()).To(BeTrue())

				var result struct {
					Active string               `json:"active"`
					Styles []testutil.BaseStyle `json:"styles"`
				}
				Expect(resp.JSON(&result)).To(Succeed())
				Expect(result.Active).To(Equal("streets"))
				Expect(result.Styles).To(HaveLen(2))
			})
		})

		Describe("PUT /bases/active", func() {
			It("should switch the base style", func() {
				Expect(client.SetActiveBase(ctx, "satellite")).To(Succeed())

				snap, err := client.GetControl(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(snap.ActiveBase).To(Equal("satellite"))
			})

			It("should keep visible overlays across the switch", func() {
				_, err := client.ActivateOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())
				layersBefore := len(testServer.Surface.Layers())

				Expect(client.SetActiveBase(ctx, "satellite")).To(Succeed())

				// The style-ready continuation re-activates rivers onto the
				// fresh style.
				status, err := client.GetOverlay(ctx, "rivers")
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Visible).To(BeTrue())
				Expect(testServer.Surface.Layers()).To(HaveLen(layersBefore))
			})

			It("should return 404 for an unknown base", func() {
				resp, err := client.Put(ctx, "/bases/active", map[string]string{"id": "watercolor"})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))
			})

			It("should return 400 when the id is missing", func() {
				resp, err := client.Put(ctx, "/bases/active", map[string]string{})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(400))
			})
		})
	})

	// ==================== Viewport Endpoints ====================
	Describe("Viewport Endpoints", func() {
		Describe("GET /viewport", func() {
			It("should return the camera state", func() {
				resp, err := client.Get(ctx, "/viewport")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.IsSuccess()).To(BeTrue())

				var v testutil.Viewport
				Expect(resp.JSON(&v)).To(Succeed())
				Expect(v.Zoom).To(Equal(12.0))
			})
		})

		Describe("POST /viewport", func() {
			It("should move the camera", func() {
				v, err := client.MoveCamera(ctx, map[string]interface{}{
					"center": map[string]float64{"lng": 2.35, "lat": 48.85},
					"zoom":   9,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Center.Lng).To(BeNumerically("~", 2.35, 0.001))
				Expect(v.Zoom).To(Equal(9.0))
			})

			It("should reject an empty directive", func() {
				resp, err := client.Post(ctx, "/viewport", map[string]interface{}{})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(400))
			})

			It("should re-filter zoom-ranged overlays after the move settles", func() {
				status, err := client.ActivateOverlay(ctx, "contours")
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Filtered).To(BeFalse())

				_, err = client.MoveCamera(ctx, map[string]interface{}{"zoom": 5})
				Expect(err).NotTo(HaveOccurred())

				// The move-end debounce runs the re-evaluation shortly after.
				Eventually(func() bool {
					s, err := client.GetOverlay(ctx, "contours")
					return err == nil && s.Filtered
				}, 2*time.Second, 50*time.Millisecond).Should(BeTrue())

				_, err = client.MoveCamera(ctx, map[string]interface{}{"zoom": 13})
				Expect(err).NotTo(HaveOccurred())

				Eventually(func() bool {
					s, err := client.GetOverlay(ctx, "contours")
					return err == nil && !s.Filtered
				}, 2*time.Second, 50*time.Millisecond).Should(BeTrue())
			})
		})
	})

	// ==================== Tooltip Endpoint ====================
	Describe("POST /tooltip", func() {
		It("should render the overlay's tooltip template", func() {
			resp, err := client.Post(ctx, "/tooltip", map[string]interface{}{
				"overlayId":  "rivers",
				"lngLat":     []float64{2.35, 48.85},
				"properties": map[string]interface{}{"name": "Seine"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			var content struct {
				HTML string `json:"html"`
			}
			Expect(resp.JSON(&content)).To(Succeed())
			Expect(content.HTML).To(ContainSubstring("Seine"))
		})

		It("should return 204 when the overlay declares no tooltip", func() {
			resp, err := client.Post(ctx, "/tooltip", map[string]interface{}{
				"overlayId": "roads",
				"lngLat":    []float64{0, 0},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(204))
		})

		It("should return 400 when the overlay id is missing", func() {
			resp, err := client.Post(ctx, "/tooltip", map[string]interface{}{
				"lngLat": []float64{0, 0},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
		})
	})

	// ==================== State Endpoint ====================
	Describe("DELETE /state", func() {
		It("should clear persisted state", func() {
			_, err := client.ActivateOverlay(ctx, "rivers")
			Expect(err).NotTo(HaveOccurred())

			Expect(client.ClearState(ctx)).To(Succeed())
		})
	})
})

// Error envelope and unknown-route behavior
var _ = Describe("Error Handling", func() {
	It("should return 404 for unknown paths", func() {
		resp, err := client.Get(ctx, "/unknown/endpoint")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(404))
	})

	It("should return 400 for malformed JSON", func() {
		resp, err := client.Put(ctx, "/overlays/rivers/opacity", "invalid json{")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(400))

		var apiErr testutil.APIError
		Expect(resp.JSON(&apiErr)).To(Succeed())
		Expect(apiErr.Error.Code).To(Equal("INVALID_REQUEST"))
	})
})

// Concurrent access against the shared engine
var _ = Describe("Concurrent Access", func() {
	BeforeEach(func() {
		resetControl()
	})

	It("should handle concurrent overlay toggles", func() {
		ids := []string{"rivers", "lakes", "roads"}
		done := make(chan error, len(ids)*2)

		for _, id := range ids {
			go func(id string) {
				_, err := client.ActivateOverlay(ctx, id)
				done <- err
			}(id)
			go func(id string) {
				_, err := client.SetOverlayOpacity(ctx, id, 0.6)
				done <- err
			}(id)
		}

		for i := 0; i < len(ids)*2; i++ {
			select {
			case err := <-done:
				Expect(err).NotTo(HaveOccurred())
			case <-time.After(10 * time.Second):
				Fail("Timeout waiting for concurrent overlay operations")
			}
		}

		overlays, err := client.ListOverlays(ctx)
		Expect(err).NotTo(HaveOccurred())
		for _, id := range ids {
			status := testutil.FindOverlay(overlays, id)
			Expect(status).NotTo(BeNil())
			Expect(status.Visible).To(BeTrue())
			Expect(status.Opacity).To(Equal(0.6))
		}
	})

	It("should handle concurrent snapshot reads", func() {
		const numReads = 10
		done := make(chan error, numReads)

		for i := 0; i < numReads; i++ {
			go func() {
				_, err := client.GetControl(ctx)
				done <- err
			}()
		}

		for i := 0; i < numReads; i++ {
			select {
			case err := <-done:
				Expect(err).NotTo(HaveOccurred())
			case <-time.After(10 * time.Second):
				Fail("Timeout waiting for concurrent snapshot reads")
			}
		}
	})
})

// Health and monitoring
var _ = Describe("Health and Monitoring", func() {
	It("should respond to the health endpoint", func() {
		resp, err := client.Get(ctx, "/healthz")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.IsSuccess()).To(BeTrue())
	})

	It("should expose request metrics", func() {
		resp, err := client.Get(ctx, "/metrics")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.IsSuccess()).To(BeTrue())
		Expect(resp.String()).To(ContainSubstring("layerlibre_http_requests_total"))
	})

	It("should include CORS headers", func() {
		resp, err := client.Get(ctx, "/control", testutil.WithHeader("Origin", "http://example.com"))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.IsSuccess()).To(BeTrue())
		Expect(resp.Headers.Get("Access-Control-Allow-Origin")).NotTo(BeEmpty())
	})
})
