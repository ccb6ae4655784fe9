package handler

import (
	"net/http"
	"time"

	"crossway/internal/store"
)

// ReadinessChecker reports whether the simulation has ticked at least once.
type ReadinessChecker interface {
	IsReady() bool
}

type HealthHandler struct {
	engine      ReadinessChecker
	store       *store.Store
	maxFrameAge time.Duration
	now         func() time.Time
}

// NewHealthHandler reports not ready until the engine has ticked and a frame
// younger than maxFrameAge is published. A zero maxFrameAge skips the age check.
func NewHealthHandler(engine ReadinessChecker, s *store.Store, maxFrameAge time.Duration) *HealthHandler {
	return &HealthHandler{
		engine:      engine,
		store:       s,
		maxFrameAge: maxFrameAge,
		now:         time.Now,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready        bool      `json:"ready"`
	Reason       string    `json:"reason,omitempty"`
	Tick         uint64    `json:"tick"`
	VehicleCount int       `json:"vehicleCount"`
	FrameAgeMs   int64     `json:"frameAgeMs"`
	ServerTime   time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	frame, published := h.store.Frame()
	age := now.Sub(h.store.PublishedAt())

	resp := ReadyResponse{
		Ready:        true,
		Tick:         frame.Tick,
		VehicleCount: len(frame.Vehicles),
		ServerTime:   now,
	}
	switch {
	case !h.engine.IsReady():
		resp.Ready, resp.Reason = false, "simulation not started"
	case !published:
		resp.Ready, resp.Reason = false, "no frame published"
	case h.maxFrameAge > 0 && age > h.maxFrameAge:
		resp.Ready, resp.Reason = false, "frame stale"
	}
	if published {
		resp.FrameAgeMs = age.Milliseconds()
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
