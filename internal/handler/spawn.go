package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"crossway/internal/domain"
)

// Spawner admits vehicles into the running simulation.
type Spawner interface {
	Spawn(dir domain.Direction, class domain.LaneClass) (domain.Vehicle, bool)
	SpawnRandomClass(dir domain.Direction) (domain.Vehicle, bool)
	SpawnRandom() (domain.Vehicle, bool)
}

type SpawnHandler struct {
	spawner Spawner
	logger  *slog.Logger
}

func NewSpawnHandler(spawner Spawner, logger *slog.Logger) *SpawnHandler {
	return &SpawnHandler{spawner: spawner, logger: logger.With("component", "spawn_handler")}
}

type SpawnRequest struct {
	Lane string `json:"lane,omitempty"`
}

// SpawnResponse reports whether the vehicle was admitted. A declined spawn
// is not an error: the lane was full or too close to its last vehicle.
type SpawnResponse struct {
	Accepted bool            `json:"accepted"`
	Vehicle  *domain.Vehicle `json:"vehicle,omitempty"`
}

// Spawn handles POST /v1/spawn/{direction}. direction may be "random".
func (h *SpawnHandler) Spawn(w http.ResponseWriter, r *http.Request) {
	var req SpawnRequest
	if r.Body != nil {
		err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	v, accepted, err := spawnRequest(h.spawner, r.PathValue("direction"), req.Lane)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := SpawnResponse{Accepted: accepted}
	if accepted {
		resp.Vehicle = &v
		h.logger.Debug("vehicle spawned", "id", v.ID, "direction", v.Origin, "lane", v.Class)
	}
	respondJSON(w, http.StatusOK, resp)
}

func spawnRequest(s Spawner, dirStr, laneStr string) (domain.Vehicle, bool, error) {
	if strings.EqualFold(dirStr, "random") {
		if laneStr != "" {
			return domain.Vehicle{}, false, fmt.Errorf("lane cannot be set for a random spawn")
		}
		v, ok := s.SpawnRandom()
		return v, ok, nil
	}

	dir, err := domain.ParseDirection(dirStr)
	if err != nil {
		return domain.Vehicle{}, false, err
	}
	if laneStr == "" {
		v, ok := s.SpawnRandomClass(dir)
		return v, ok, nil
	}

	class, err := domain.ParseLaneClass(laneStr)
	if err != nil {
		return domain.Vehicle{}, false, err
	}
	v, ok := s.Spawn(dir, class)
	return v, ok, nil
}
