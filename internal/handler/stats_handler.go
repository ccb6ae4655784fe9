package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"crossway/internal/domain"
	"crossway/internal/engine"
	"crossway/internal/store"
)

// Stats tracks server-wide metrics
type Stats struct {
	startTime        time.Time
	requestCount     atomic.Int64
	wsConnections    atomic.Int64
	wsMessagesIn     atomic.Int64
	wsMessagesOut    atomic.Int64
	rateLimitBlocked atomic.Int64
}

// Global stats instance
var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()         { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections()    { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections()    { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()     { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut()    { s.wsMessagesOut.Add(1) }
func (s *Stats) IncRateLimitBlocked() { s.rateLimitBlocked.Add(1) }

// EngineStatser exposes the simulation counters.
type EngineStatser interface {
	Stats() engine.Stats
	RunID() string
}

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

type StatsHandler struct {
	engine  EngineStatser
	store   *store.Store
	clients ClientCounter
}

func NewStatsHandler(e EngineStatser, s *store.Store, clients ClientCounter) *StatsHandler {
	return &StatsHandler{
		engine:  e,
		store:   s,
		clients: clients,
	}
}

type StatsResponse struct {
	Server     ServerStatsResponse     `json:"server"`
	Simulation SimulationStatsResponse `json:"simulation"`
	Vehicles   VehicleStatsResponse    `json:"vehicles"`
	WebSocket  WebSocketStatsResponse  `json:"websocket"`
	Go         GoStatsResponse         `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
	Version       string    `json:"version"`
}

type SimulationStatsResponse struct {
	RunID string `json:"run_id"`
	engine.Stats
	Signals domain.SignalState `json:"signals"`
}

type VehicleStatsResponse struct {
	Total       int            `json:"total"`
	ByDirection map[string]int `json:"by_direction"`
}

type WebSocketStatsResponse struct {
	Clients     int   `json:"clients"`
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(ServerStats.startTime)

	byDirection := make(map[string]int, len(domain.Directions))
	for _, d := range domain.Directions {
		byDirection[d.String()] = 0
	}
	for d, n := range h.store.CountByDirection() {
		byDirection[d.String()] = n
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			RateLimited:   ServerStats.rateLimitBlocked.Load(),
			Version:       "1.0.0",
		},
		Simulation: SimulationStatsResponse{
			RunID:   h.engine.RunID(),
			Stats:   h.engine.Stats(),
			Signals: h.store.Signals(),
		},
		Vehicles: VehicleStatsResponse{
			Total:       h.store.Count(),
			ByDirection: byDirection,
		},
		WebSocket: WebSocketStatsResponse{
			Clients:     h.clients.ClientCount(),
			Connections: ServerStats.wsConnections.Load(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
