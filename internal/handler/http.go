package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crossway/internal/domain"
	"crossway/internal/layout"
	"crossway/internal/store"
)

// FrameMirror is the read side of the optional out-of-process frame cache.
type FrameMirror interface {
	LatestFrame(ctx context.Context) (domain.Frame, bool, error)
}

type HTTPHandler struct {
	store  *store.Store
	mirror FrameMirror
}

func NewHTTPHandler(store *store.Store, mirror FrameMirror) *HTTPHandler {
	return &HTTPHandler{store: store, mirror: mirror}
}

type VehiclesResponse struct {
	Vehicles   []*domain.Vehicle `json:"vehicles"`
	Count      int               `json:"count"`
	Tick       uint64            `json:"tick"`
	ServerTime time.Time         `json:"serverTime"`
}

func (h *HTTPHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{}

	if dirStr := r.URL.Query().Get("direction"); dirStr != "" {
		d, err := domain.ParseDirection(dirStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid direction parameter: must be north, south, east or west")
			return
		}
		opts.Direction = &d
	}

	if rectStr := r.URL.Query().Get("rect"); rectStr != "" {
		parts := strings.Split(rectStr, ",")
		if len(parts) != 4 {
			respondError(w, http.StatusBadRequest, "invalid rect format: expected minX,minY,maxX,maxY")
			return
		}
		rect, err := parseRect(parts)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid rect values: "+err.Error())
			return
		}
		opts.Rect = rect
	}

	vehicles := h.store.List(opts)
	frame, _ := h.store.Frame()

	respondJSON(w, http.StatusOK, VehiclesResponse{
		Vehicles:   vehicles,
		Count:      len(vehicles),
		Tick:       frame.Tick,
		ServerTime: time.Now(),
	})
}

func (h *HTTPHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	vehicle, ok := h.store.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "vehicle not found")
		return
	}

	respondJSON(w, http.StatusOK, vehicle)
}

func (h *HTTPHandler) GetSignals(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Signals())
}

// GetFrame serves the latest frame. With ?source=mirror it reads the frame
// back from the external cache instead, to check that mirroring works.
func (h *HTTPHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "mirror" {
		if h.mirror == nil {
			respondError(w, http.StatusNotFound, "frame mirror not configured")
			return
		}
		frame, ok, err := h.mirror.LatestFrame(r.Context())
		if err != nil {
			respondError(w, http.StatusBadGateway, "frame mirror unavailable")
			return
		}
		if !ok {
			respondError(w, http.StatusNotFound, "no mirrored frame")
			return
		}
		respondJSON(w, http.StatusOK, frame)
		return
	}

	frame, ok := h.store.Frame()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no frame published yet")
		return
	}
	respondJSON(w, http.StatusOK, frame)
}

func (h *HTTPHandler) GetLayout(w http.ResponseWriter, r *http.Request) {
	data, err := layout.Build().MarshalJSON()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode layout")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func parseRect(parts []string) (*domain.Rect, error) {
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return &domain.Rect{
		MinX: vals[0], MinY: vals[1],
		MaxX: vals[2], MaxY: vals[3],
	}, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
