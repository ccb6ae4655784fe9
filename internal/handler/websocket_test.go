package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossway/internal/domain"
	"crossway/internal/hub"
	"crossway/internal/input"
	"crossway/internal/middleware"
)

type wsReply struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialTestWS(t *testing.T, sp Spawner, variant input.Variant, limiter *middleware.RateLimiter) (context.Context, *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsHub := hub.NewHub(discard)
	go wsHub.Run(ctx)

	h := NewWSHandler(wsHub, publishedStore(), sp, input.NewKeyMap(variant), limiter, discard)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return ctx, conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) wsReply {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var r wsReply
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func TestWSSubscribeAll(t *testing.T) {
	ctx, conn := dialTestWS(t, &fakeSpawner{}, input.VariantStandard, nil)

	send(t, ctx, conn, "subscribe", SubscribePayload{All: true})

	r := read(t, ctx, conn)
	require.Equal(t, "snapshot", r.Type)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(r.Payload, &snap))
	assert.Len(t, snap.Vehicles, 2)
	assert.True(t, snap.Signals.Green)
}

func TestWSSubscribeRect(t *testing.T) {
	ctx, conn := dialTestWS(t, &fakeSpawner{}, input.VariantStandard, nil)

	send(t, ctx, conn, "subscribe", map[string]any{"rect": map[string]int{"minX": 0, "minY": 300, "maxX": 199, "maxY": 399}})

	r := read(t, ctx, conn)
	require.Equal(t, "snapshot", r.Type)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(r.Payload, &snap))
	require.Len(t, snap.Vehicles, 1)
	assert.Equal(t, uint64(1), snap.Vehicles[0].ID)
}

func TestWSKeySpawns(t *testing.T) {
	sp := &fakeSpawner{}
	ctx, conn := dialTestWS(t, sp, input.VariantMirrored, nil)

	send(t, ctx, conn, "key", KeyPayload{Key: "ArrowLeft"})
	r := read(t, ctx, conn)
	require.Equal(t, "spawned", r.Type)
	var resp SpawnResponse
	require.NoError(t, json.Unmarshal(r.Payload, &resp))
	assert.True(t, resp.Accepted)

	send(t, ctx, conn, "key", KeyPayload{Key: "r"})
	assert.Equal(t, "spawned", read(t, ctx, conn).Type)

	send(t, ctx, conn, "spawn", SpawnPayload{Direction: "south", Lane: "right"})
	assert.Equal(t, "spawned", read(t, ctx, conn).Type)

	assert.Equal(t, []string{"class:east", "random", "spawn:south:right"}, sp.Calls())
}

func TestWSPing(t *testing.T) {
	ctx, conn := dialTestWS(t, &fakeSpawner{}, input.VariantStandard, nil)

	send(t, ctx, conn, "key", KeyPayload{Key: "Escape"})
	send(t, ctx, conn, "ping", nil)
	assert.Equal(t, "pong", read(t, ctx, conn).Type, "unmapped keys are ignored")
}

func TestWSSubscribeHugeRect(t *testing.T) {
	ctx, conn := dialTestWS(t, &fakeSpawner{}, input.VariantStandard, nil)

	send(t, ctx, conn, "subscribe", map[string]any{"rect": map[string]int{
		"minX": -1_000_000, "minY": -1_000_000, "maxX": 1_000_000, "maxY": 1_000_000,
	}})

	r := read(t, ctx, conn)
	require.Equal(t, "snapshot", r.Type)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(r.Payload, &snap))
	assert.Len(t, snap.Vehicles, 2)
}

func TestWSResolveCells(t *testing.T) {
	h := NewWSHandler(hub.NewHub(discard), publishedStore(), &fakeSpawner{}, input.NewKeyMap(input.VariantStandard), nil, discard)

	huge := domain.Rect{MinX: -1_000_000, MinY: -1_000_000, MaxX: 1_000_000, MaxY: 1_000_000}
	assert.Len(t, h.resolveCells(SubscribePayload{Rect: &huge}), 10*8, "clipped to the field")

	away := domain.Rect{MinX: 2000, MinY: 2000, MaxX: 3000, MaxY: 3000}
	assert.Empty(t, h.resolveCells(SubscribePayload{Rect: &away}))

	ids := []string{"100/1/3", "100/1/3", "garbage", "50/2/6", "100/900/900", "100/1/3/extra"}
	assert.Equal(t, []string{"100/1/3"}, h.resolveCells(SubscribePayload{CellIDs: ids}))
}

func TestWSSubscribeIgnoresUnknownCells(t *testing.T) {
	ctx, conn := dialTestWS(t, &fakeSpawner{}, input.VariantStandard, nil)

	send(t, ctx, conn, "subscribe", SubscribePayload{CellIDs: []string{"garbage", "50/2/6", "100/900/900"}})
	send(t, ctx, conn, "ping", nil)
	assert.Equal(t, "pong", read(t, ctx, conn).Type, "nothing to snapshot")

	send(t, ctx, conn, "subscribe", SubscribePayload{CellIDs: []string{"100/1/3", "bogus"}})
	r := read(t, ctx, conn)
	require.Equal(t, "snapshot", r.Type)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(r.Payload, &snap))
	require.Len(t, snap.Vehicles, 1)
	assert.Equal(t, uint64(1), snap.Vehicles[0].ID)
}

func TestWSSpawnRateLimited(t *testing.T) {
	sp := &fakeSpawner{}
	limiter := middleware.NewRateLimiter(1, time.Minute, nil, discard)
	var blocked atomic.Int32
	limiter.OnBlocked(func() { blocked.Add(1) })
	ctx, conn := dialTestWS(t, sp, input.VariantStandard, limiter)

	spawned := func() SpawnResponse {
		r := read(t, ctx, conn)
		require.Equal(t, "spawned", r.Type)
		var resp SpawnResponse
		require.NoError(t, json.Unmarshal(r.Payload, &resp))
		return resp
	}

	send(t, ctx, conn, "spawn", SpawnPayload{Direction: "north"})
	assert.True(t, spawned().Accepted)

	send(t, ctx, conn, "spawn", SpawnPayload{Direction: "north"})
	resp := spawned()
	assert.False(t, resp.Accepted)
	assert.Nil(t, resp.Vehicle)

	send(t, ctx, conn, "key", KeyPayload{Key: "r"})
	assert.False(t, spawned().Accepted)

	assert.Len(t, sp.Calls(), 1, "limited requests never reach the engine")
	assert.Equal(t, int32(2), blocked.Load())
}
