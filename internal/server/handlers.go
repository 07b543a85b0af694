package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drecchia/maplibre-layerlibre/internal/overlay"
	"github.com/drecchia/maplibre-layerlibre/pkg/types"
)

// controlSnapshot is the GET /control response: everything a client needs
// to draw the widget in one round trip.
type controlSnapshot struct {
	ActiveBase string                  `json:"activeBase"`
	BaseStyles []types.BaseStyle       `json:"baseStyles"`
	Overlays   []overlay.OverlayStatus `json:"overlays"`
	Groups     []overlay.GroupStatus   `json:"groups"`
	Viewport   types.ViewportState     `json:"viewport"`
}

func (s *Server) snapshot() controlSnapshot {
	return controlSnapshot{
		ActiveBase: s.control.ActiveBase(),
		BaseStyles: s.control.BaseStyles(),
		Overlays:   s.control.Statuses(),
		Groups:     s.control.GroupStatuses(),
		Viewport:   s.control.Viewport(),
	}
}

func (s *Server) getControl(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) listOverlays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.control.Statuses())
}

func (s *Server) getOverlay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "overlayID")
	status, ok := s.control.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown overlay: "+id)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) activateOverlay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "overlayID")
	if !s.control.Activate(r.Context(), id) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown overlay: "+id)
		return
	}
	status, _ := s.control.Status(id)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) deactivateOverlay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "overlayID")
	if !s.control.Deactivate(id) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown overlay: "+id)
		return
	}
	status, _ := s.control.Status(id)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) setOverlayOpacity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "overlayID")

	var req struct {
		Opacity float64 `json:"opacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	if !s.control.SetOpacity(id, req.Opacity) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown overlay: "+id)
		return
	}
	status, _ := s.control.Status(id)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.control.GroupStatuses())
}

func (s *Server) groupStatus(id string) (overlay.GroupStatus, bool) {
	for _, g := range s.control.GroupStatuses() {
		if g.ID == id {
			return g, true
		}
	}
	return overlay.GroupStatus{}, false
}

func (s *Server) getGroupVisible(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "groupID")
	status, ok := s.groupStatus(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown group: "+id)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) setGroupVisible(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "groupID")

	var req struct {
		Visible bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	if !s.control.SetGroupVisible(r.Context(), id, req.Visible) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown group: "+id)
		return
	}
	status, _ := s.groupStatus(id)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) setGroupOpacity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "groupID")

	var req struct {
		Opacity float64 `json:"opacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	if !s.control.SetGroupOpacity(id, req.Opacity) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown group: "+id)
		return
	}
	status, _ := s.groupStatus(id)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) listBases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active": s.control.ActiveBase(),
		"styles": s.control.BaseStyles(),
	})
}

func (s *Server) setActiveBase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "id required")
		return
	}

	if !s.control.SwitchBase(req.ID) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown base style: "+req.ID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": s.control.ActiveBase()})
}

func (s *Server) getViewport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.control.Viewport())
}

// moveViewport simulates a camera move on the headless gateway. The move-end
// it fires flows through the same debounce as real map interaction.
func (s *Server) moveViewport(w http.ResponseWriter, r *http.Request) {
	if s.mover == nil {
		notImplemented(w)
		return
	}

	var directive types.ViewportDirective
	if err := json.NewDecoder(r.Body).Decode(&directive); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if directive.Empty() {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "directive carries no camera instruction")
		return
	}

	s.mover.FlyTo(directive)
	s.mover.FireMoveEnd()
	writeJSON(w, http.StatusOK, s.control.Viewport())
}

func (s *Server) resolveTooltip(w http.ResponseWriter, r *http.Request) {
	var pick types.Pick
	if err := json.NewDecoder(r.Body).Decode(&pick); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if pick.OverlayID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "overlayId required")
		return
	}

	content := s.control.ResolveTooltip(pick)
	if content == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) clearState(w http.ResponseWriter, r *http.Request) {
	if err := s.control.ClearMemory(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
