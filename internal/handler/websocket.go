package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"crossway/internal/domain"
	"crossway/internal/hub"
	"crossway/internal/input"
	"crossway/internal/middleware"
	"crossway/internal/store"
)

type WSHandler struct {
	hub     *hub.Hub
	store   *store.Store
	grid    *hub.Grid
	spawner Spawner
	keys    *input.KeyMap
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// NewWSHandler serves the websocket API. Key and spawn messages share the
// HTTP spawn limiter; a nil limiter leaves them unlimited.
func NewWSHandler(h *hub.Hub, s *store.Store, spawner Spawner, keys *input.KeyMap, limiter *middleware.RateLimiter, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:     h,
		store:   s,
		grid:    hub.NewGrid(s.CellSize()),
		spawner: spawner,
		keys:    keys,
		limiter: limiter,
		logger:  logger,
	}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload selects cells explicitly, by covering rectangle, or
// the whole field when All is set.
type SubscribePayload struct {
	CellIDs []string     `json:"cellIds"`
	Rect    *domain.Rect `json:"rect,omitempty"`
	All     bool         `json:"all,omitempty"`
}

type UnsubscribePayload struct {
	CellIDs []string `json:"cellIds"`
	All     bool     `json:"all,omitempty"`
}

type KeyPayload struct {
	Key string `json:"key"`
}

type SpawnPayload struct {
	Direction string `json:"direction"`
	Lane      string `json:"lane,omitempty"`
}

type SnapshotMessage struct {
	Type    string          `json:"type"`
	Payload SnapshotPayload `json:"payload"`
}

type SnapshotPayload struct {
	Vehicles []*domain.Vehicle  `json:"vehicles"`
	Signals  domain.SignalState `json:"signals"`
}

type SpawnedMessage struct {
	Type    string        `json:"type"`
	Payload SpawnResponse `json:"payload"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	ip := middleware.ClientIP(r)
	clientID := uuid.New().String()
	client := hub.NewClient(clientID, 256)

	h.hub.Register(client)
	ServerStats.IncWSConnections()
	defer ServerStats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client, ip)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client, ip string) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		ServerStats.IncWSMessagesIn()

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		h.handleMessage(client, ip, msg)
	}
}

func (h *WSHandler) handleMessage(client *hub.Client, ip string, msg WSMessage) {
	switch msg.Type {
	case "subscribe":
		var payload SubscribePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if payload.All {
			h.hub.SubscribeField(client)
			h.sendSnapshot(client, h.grid.All())
			return
		}
		cells := h.resolveCells(payload)
		if len(cells) > 0 {
			h.hub.Subscribe(client, cells)
			h.sendSnapshot(client, cells)
		}

	case "unsubscribe":
		var payload UnsubscribePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if payload.All {
			h.hub.UnsubscribeField(client)
		}
		if cells := h.grid.Filter(payload.CellIDs); len(cells) > 0 {
			h.hub.Unsubscribe(client, cells)
		}

	case "key":
		var payload KeyPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		cmd, ok := h.keys.Lookup(payload.Key)
		if !ok {
			h.logger.Debug("unmapped key", "client_id", client.ID, "key", payload.Key)
			return
		}
		if !h.admit(ip, "ws:key") {
			h.sendSpawned(client, domain.Vehicle{}, false)
			return
		}
		var (
			v        domain.Vehicle
			accepted bool
		)
		if cmd.Random {
			v, accepted = h.spawner.SpawnRandom()
		} else {
			v, accepted = h.spawner.SpawnRandomClass(cmd.Direction)
		}
		h.sendSpawned(client, v, accepted)

	case "spawn":
		var payload SpawnPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if !h.admit(ip, "ws:spawn") {
			h.sendSpawned(client, domain.Vehicle{}, false)
			return
		}
		v, accepted, err := spawnRequest(h.spawner, payload.Direction, payload.Lane)
		if err != nil {
			h.logger.Debug("invalid spawn request", "client_id", client.ID, "error", err)
			return
		}
		h.sendSpawned(client, v, accepted)

	case "ping":
		h.sendPong(client)
	}
}

// resolveCells maps a subscribe request onto field cells. Rectangles are
// clipped to the field and explicit ids not on the grid are dropped.
func (h *WSHandler) resolveCells(p SubscribePayload) []string {
	if p.Rect != nil {
		return h.grid.CellsInRect(*p.Rect)
	}
	return h.grid.Filter(p.CellIDs)
}

func (h *WSHandler) admit(ip, source string) bool {
	if h.limiter == nil {
		return true
	}
	ok, _ := h.limiter.Admit(ip, source)
	return ok
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) sendSnapshot(client *hub.Client, cellIDs []string) {
	msg := SnapshotMessage{
		Type: "snapshot",
		Payload: SnapshotPayload{
			Vehicles: h.store.SnapshotForCells(cellIDs),
			Signals:  h.store.Signals(),
		},
	}
	h.enqueue(client, msg, "snapshot")
}

func (h *WSHandler) sendSpawned(client *hub.Client, v domain.Vehicle, accepted bool) {
	resp := SpawnResponse{Accepted: accepted}
	if accepted {
		resp.Vehicle = &v
	}
	h.enqueue(client, SpawnedMessage{Type: "spawned", Payload: resp}, "spawned")
}

func (h *WSHandler) sendPong(client *hub.Client) {
	h.enqueue(client, PongMessage{Type: "pong"}, "pong")
}

func (h *WSHandler) enqueue(client *hub.Client, msg any, kind string) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
		h.logger.Debug("failed to send message, buffer full", "client_id", client.ID, "type", kind)
	}
}
