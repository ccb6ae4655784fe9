package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"crossway/internal/domain"
)

// Client is one websocket connection's outbound queue. Its subscriptions
// are kept by the Hub.
type Client struct {
	ID   string
	Send chan []byte
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, bufferSize),
	}
}

// view is what a client watches: the whole field, or a set of cells.
type view struct {
	field bool
	cells map[string]struct{}
}

// Hub fans frame changes out to websocket clients. Vehicle deltas go to
// clients watching the vehicle's cell or the whole field; signal updates go
// to everyone.
type Hub struct {
	mu       sync.RWMutex
	views    map[*Client]*view
	byCell   map[string]map[*Client]struct{}
	watchAll map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []domain.VehicleDelta
	signals    chan domain.SignalState

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		views:      make(map[*Client]*view),
		byCell:     make(map[string]map[*Client]struct{}),
		watchAll:   make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []domain.VehicleDelta, 256),
		signals:    make(chan domain.SignalState, 64),
		logger:     logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.viewOf(client)
			total := len(h.views)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case deltas := <-h.broadcast:
			h.fanoutDeltas(deltas)

		case state := <-h.signals:
			h.fanoutSignals(state)
		}
	}
}

// viewOf returns client's view, creating it on first use. Callers hold h.mu.
func (h *Hub) viewOf(client *Client) *view {
	v, ok := h.views[client]
	if !ok {
		v = &view{cells: make(map[string]struct{})}
		h.views[client] = v
	}
	return v
}

// Subscribe adds cells to client's view.
func (h *Hub) Subscribe(client *Client, cellIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	v := h.viewOf(client)
	for _, id := range cellIDs {
		v.cells[id] = struct{}{}
		if h.byCell[id] == nil {
			h.byCell[id] = make(map[*Client]struct{})
		}
		h.byCell[id][client] = struct{}{}
	}
}

// SubscribeField makes client receive deltas for every cell.
func (h *Hub) SubscribeField(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.viewOf(client).field = true
	h.watchAll[client] = struct{}{}
}

// Unsubscribe drops cells from client's view. It does not affect a whole-field
// subscription; use UnsubscribeField for that.
func (h *Hub) Unsubscribe(client *Client, cellIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.views[client]
	if !ok {
		return
	}
	for _, id := range cellIDs {
		delete(v.cells, id)
		h.dropFromCell(id, client)
	}
}

func (h *Hub) UnsubscribeField(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if v, ok := h.views[client]; ok {
		v.field = false
	}
	delete(h.watchAll, client)
}

// Cells lists client's subscribed cells in sorted order.
func (h *Hub) Cells(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	v, ok := h.views[client]
	if !ok {
		return nil
	}
	cells := make([]string, 0, len(v.cells))
	for id := range v.cells {
		cells = append(cells, id)
	}
	sort.Strings(cells)
	return cells
}

// WatchesField reports whether client subscribed to the whole field.
func (h *Hub) WatchesField(client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.watchAll[client]
	return ok
}

func (h *Hub) Broadcast(deltas []domain.VehicleDelta) {
	if len(deltas) == 0 {
		return
	}
	select {
	case h.broadcast <- deltas:
	default:
		h.logger.Warn("broadcast channel full, dropping deltas", "count", len(deltas))
	}
}

func (h *Hub) BroadcastSignals(state domain.SignalState) {
	select {
	case h.signals <- state:
	default:
		h.logger.Warn("signal channel full, dropping update")
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.views)
}

type DeltaMessage struct {
	Type    string       `json:"type"`
	Payload DeltaPayload `json:"payload"`
}

type DeltaPayload struct {
	Updates []*domain.Vehicle `json:"updates,omitempty"`
	Removes []uint64          `json:"removes,omitempty"`
}

type SignalsMessage struct {
	Type    string             `json:"type"`
	Payload domain.SignalState `json:"payload"`
}

func (h *Hub) fanoutDeltas(deltas []domain.VehicleDelta) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	perClient := make(map[*Client][]domain.VehicleDelta)
	if len(h.watchAll) > 0 {
		// Field watchers see every delta except the removes emitted when a
		// vehicle merely changes cell.
		field := fieldDeltas(deltas)
		for client := range h.watchAll {
			perClient[client] = field
		}
	}

	for _, d := range deltas {
		for client := range h.byCell[d.CellID] {
			if _, all := h.watchAll[client]; all {
				continue
			}
			perClient[client] = append(perClient[client], d)
		}
	}

	for client, ds := range perClient {
		if len(ds) == 0 {
			continue
		}
		data, err := json.Marshal(buildDeltaMessage(ds))
		if err != nil {
			continue
		}
		h.send(client, data)
	}
}

// fieldDeltas drops removes for vehicles that are updated in the same batch.
func fieldDeltas(deltas []domain.VehicleDelta) []domain.VehicleDelta {
	updated := make(map[uint64]struct{})
	for _, d := range deltas {
		if d.Type == domain.DeltaUpdate {
			updated[d.Vehicle.ID] = struct{}{}
		}
	}
	out := make([]domain.VehicleDelta, 0, len(deltas))
	for _, d := range deltas {
		if d.Type == domain.DeltaRemove {
			if _, moved := updated[d.ID]; moved {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

func (h *Hub) fanoutSignals(state domain.SignalState) {
	data, err := json.Marshal(SignalsMessage{Type: "signals", Payload: state})
	if err != nil {
		h.logger.Error("failed to encode signals", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.views {
		h.send(client, data)
	}
}

func (h *Hub) send(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.logger.Debug("client send buffer full", "client_id", client.ID)
	}
}

func buildDeltaMessage(deltas []domain.VehicleDelta) DeltaMessage {
	var updates []*domain.Vehicle
	var removes []uint64

	for _, d := range deltas {
		switch d.Type {
		case domain.DeltaUpdate:
			updates = append(updates, d.Vehicle)
		case domain.DeltaRemove:
			removes = append(removes, d.ID)
		}
	}

	return DeltaMessage{
		Type: "delta",
		Payload: DeltaPayload{
			Updates: updates,
			Removes: removes,
		},
	}
}

func (h *Hub) dropFromCell(id string, client *Client) {
	if set, ok := h.byCell[id]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byCell, id)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.views[client]
	if !ok {
		return
	}
	for id := range v.cells {
		h.dropFromCell(id, client)
	}
	delete(h.watchAll, client)
	delete(h.views, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.views))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.views {
		close(client.Send)
	}
	h.views = make(map[*Client]*view)
	h.byCell = make(map[string]map[*Client]struct{})
	h.watchAll = make(map[*Client]struct{})
}
