package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossway/internal/config"
	"crossway/internal/domain"
	"crossway/internal/signal"
	"crossway/internal/store"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeBroadcaster struct {
	mu      sync.Mutex
	deltas  [][]domain.VehicleDelta
	signals []domain.SignalState
}

func (b *fakeBroadcaster) Broadcast(deltas []domain.VehicleDelta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deltas = append(b.deltas, deltas)
}

func (b *fakeBroadcaster) BroadcastSignals(state domain.SignalState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, state)
}

type fakeMirror struct {
	runIDs []string
	frames []domain.Frame
	err    error
}

func (m *fakeMirror) MirrorFrame(_ context.Context, runID string, frame domain.Frame) error {
	m.runIDs = append(m.runIDs, runID)
	m.frames = append(m.frames, frame)
	return m.err
}

func testConfig() *config.Config {
	return &config.Config{
		TickInterval:      time.Millisecond,
		PublishInterval:   5 * time.Millisecond,
		SignalPolicy:      signal.PolicyAdaptive,
		GreenDuration:     signal.DefaultGreenDuration,
		ClearanceDuration: signal.DefaultClearanceDuration,
		RandomSeed:        1,
		CellSize:          100,
	}
}

func newTestEngine(opts ...Option) (*Engine, *store.Store, *fakeBroadcaster, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	st := store.New(100)
	b := &fakeBroadcaster{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(testConfig(), st, b, logger, opts...), st, b, clock
}

func TestReadyAfterFirstTick(t *testing.T) {
	e, _, _, _ := newTestEngine()
	assert.False(t, e.IsReady())

	res := e.Tick()
	assert.Equal(t, uint64(1), res.Tick)
	assert.True(t, e.IsReady())
	assert.Zero(t, e.Snapshot().Elapsed, "first tick has nothing to measure against")
}

func TestTickUsesClock(t *testing.T) {
	e, _, _, clock := newTestEngine()

	e.Tick()
	clock.Advance(16 * time.Millisecond)
	e.Tick()
	clock.Advance(4 * time.Millisecond)
	e.Tick()

	f := e.Snapshot()
	assert.Equal(t, uint64(3), f.Tick)
	assert.Equal(t, 20*time.Millisecond, f.Elapsed)
}

func TestSpawnStats(t *testing.T) {
	e, _, _, _ := newTestEngine()

	v, ok := e.Spawn(domain.East, domain.LaneThrough)
	require.True(t, ok)
	assert.Equal(t, domain.Point{X: -30, Y: 310}, v.Position)

	_, ok = e.Spawn(domain.East, domain.LaneLeftTurn)
	assert.False(t, ok, "entry still occupied")

	_, ok = e.SpawnRandomClass(domain.North)
	assert.True(t, ok)

	stats := e.Stats()
	assert.Equal(t, uint64(2), stats.SpawnsAccepted)
	assert.Equal(t, uint64(1), stats.SpawnsDeclined)
}

func TestSpawnRandomDeterministic(t *testing.T) {
	a, _, _, _ := newTestEngine(WithRand(rand.New(rand.NewPCG(7, 7))))
	b, _, _, _ := newTestEngine(WithRand(rand.New(rand.NewPCG(7, 7))))

	va, oka := a.SpawnRandom()
	vb, okb := b.SpawnRandom()
	require.True(t, oka)
	require.True(t, okb)
	assert.Equal(t, va, vb)
}

func TestPublish(t *testing.T) {
	mirror := &fakeMirror{}
	e, st, b, clock := newTestEngine(WithMirror(mirror))

	_, ok := e.Spawn(domain.East, domain.LaneThrough)
	require.True(t, ok)

	e.Tick()
	e.Publish(context.Background())

	require.Len(t, b.deltas, 1)
	require.Len(t, b.deltas[0], 1)
	assert.Equal(t, domain.DeltaUpdate, b.deltas[0][0].Type)
	assert.Empty(t, b.signals, "lights unchanged")
	assert.Equal(t, 1, st.Count())

	require.Len(t, mirror.frames, 1)
	assert.Equal(t, e.RunID(), mirror.runIDs[0])

	// Uncontested approach is granted once the vehicle passes its midpoint.
	for i := 0; i < 200; i++ {
		clock.Advance(10 * time.Millisecond)
		e.Tick()
	}
	e.Publish(context.Background())

	require.Len(t, b.signals, 1)
	assert.True(t, b.signals[0].Lights.Green(domain.East))
	assert.True(t, st.Signals().Lights.Green(domain.East))
	assert.Equal(t, uint64(1), e.Stats().PhaseChanges)

	t.Run("mirror errors do not stop publishing", func(t *testing.T) {
		mirror.err = errors.New("redis down")
		e.Tick()
		e.Publish(context.Background())
		assert.Len(t, mirror.frames, 3)
		assert.Len(t, b.deltas, 3)
	})
}

func TestVehicleExitCounted(t *testing.T) {
	e, _, _, clock := newTestEngine()

	_, ok := e.Spawn(domain.East, domain.LaneThrough)
	require.True(t, ok)

	for i := 0; i < 900; i++ {
		clock.Advance(10 * time.Millisecond)
		e.Tick()
	}

	stats := e.Stats()
	assert.Equal(t, uint64(900), stats.Ticks)
	assert.Equal(t, uint64(1), stats.Exited)
	assert.Zero(t, stats.Turned)
	assert.Empty(t, e.Snapshot().Vehicles)
	// green on arrival, all-red once the field empties
	assert.Equal(t, uint64(2), stats.PhaseChanges)
}

func TestRun(t *testing.T) {
	st := store.New(100)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(testConfig(), st, &fakeBroadcaster{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	var wg sync.WaitGroup
	for _, d := range domain.Directions {
		wg.Add(1)
		go func(d domain.Direction) {
			defer wg.Done()
			e.SpawnRandomClass(d)
		}(d)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		f, ok := st.Frame()
		return ok && f.Tick > 1 && len(f.Vehicles) == 4
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
	assert.True(t, e.IsReady())
}
