// Package engine drives the simulation in real time and publishes frames
// to readers.
package engine

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"crossway/internal/config"
	"crossway/internal/domain"
	"crossway/internal/signal"
	"crossway/internal/sim"
	"crossway/internal/store"
)

type Broadcaster interface {
	Broadcast(deltas []domain.VehicleDelta)
	BroadcastSignals(state domain.SignalState)
}

// Mirror receives every published frame, e.g. an out-of-process cache.
type Mirror interface {
	MirrorFrame(ctx context.Context, runID string, frame domain.Frame) error
}

// Clock is the monotonic time source sampled once per tick.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock, whose readings carry a monotonic component.
var SystemClock Clock = systemClock{}

// Stats are cumulative counters since the engine was created.
type Stats struct {
	Ticks          uint64 `json:"ticks"`
	SpawnsAccepted uint64 `json:"spawnsAccepted"`
	SpawnsDeclined uint64 `json:"spawnsDeclined"`
	Exited         uint64 `json:"exited"`
	Turned         uint64 `json:"turned"`
	PhaseChanges   uint64 `json:"phaseChanges"`
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithMirror(m Mirror) Option {
	return func(e *Engine) { e.mirror = m }
}

func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// Engine owns the simulation state. Spawns from any goroutine are
// serialized against ticks, so admission always happens between ticks.
type Engine struct {
	mu    sync.Mutex
	state *sim.State

	store       *store.Store
	broadcaster Broadcaster
	mirror      Mirror
	clock       Clock
	rng         *rand.Rand
	config      *config.Config
	logger      *slog.Logger
	runID       string

	lastTick     time.Time
	lastSignals  domain.Signals
	lastCurrent  domain.Direction
	signalsDirty bool

	ticks          atomic.Uint64
	spawnsAccepted atomic.Uint64
	spawnsDeclined atomic.Uint64
	exited         atomic.Uint64
	turned         atomic.Uint64
	phaseChanges   atomic.Uint64

	ready   bool
	readyMu sync.RWMutex
}

func New(cfg *config.Config, st *store.Store, broadcaster Broadcaster, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		broadcaster: broadcaster,
		clock:       SystemClock,
		config:      cfg,
		runID:       uuid.New().String(),
		logger:      logger.With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(cfg.RandomSeed, cfg.RandomSeed^0x9e3779b97f4a7c15))
	}

	e.state = sim.New(signal.Config{
		Policy:    cfg.SignalPolicy,
		Green:     cfg.GreenDuration,
		Clearance: cfg.ClearanceDuration,
	}, e.rng)
	e.state.Controller.OnPhaseChange(e.onPhaseChange)
	e.logger = e.logger.With("run_id", e.runID)
	return e
}

func (e *Engine) RunID() string {
	return e.runID
}

// Run ticks the simulation every TickInterval and publishes a frame every
// PublishInterval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	publishTicker := time.NewTicker(e.config.PublishInterval)
	defer publishTicker.Stop()

	e.logger.Info("simulation started",
		"policy", e.config.SignalPolicy.String(),
		"tick_interval", e.config.TickInterval,
		"publish_interval", e.config.PublishInterval,
	)

	e.Tick()
	e.Publish(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("simulation stopped", "ticks", e.ticks.Load())
			return
		case <-ticker.C:
			e.Tick()
		case <-publishTicker.C:
			e.Publish(ctx)
		}
	}
}

// Tick samples the clock once and advances the simulation by the real
// time elapsed since the previous tick.
func (e *Engine) Tick() sim.TickResult {
	now := e.clock.Now()

	e.mu.Lock()
	var elapsed time.Duration
	if !e.lastTick.IsZero() {
		elapsed = now.Sub(e.lastTick)
	}
	e.lastTick = now
	res := e.state.Tick(elapsed)
	e.mu.Unlock()

	e.ticks.Add(1)
	e.turned.Add(uint64(res.Turned))
	if n := len(res.Exited); n > 0 {
		e.exited.Add(uint64(n))
		e.logger.Debug("vehicles exited", "count", n, "tick", res.Tick)
	}

	if !e.IsReady() {
		e.setReady(true)
		e.logger.Info("engine ready")
	}
	return res
}

// Publish stores the current frame and fans the changes out.
func (e *Engine) Publish(ctx context.Context) {
	e.mu.Lock()
	frame := e.state.Snapshot()
	dirty := e.signalsDirty || frame.Signals.Lights != e.lastSignals || frame.Signals.Current != e.lastCurrent
	e.signalsDirty = false
	e.lastSignals = frame.Signals.Lights
	e.lastCurrent = frame.Signals.Current
	e.mu.Unlock()

	deltas := e.store.Publish(frame)

	if e.broadcaster != nil {
		e.broadcaster.Broadcast(deltas)
		if dirty {
			e.broadcaster.BroadcastSignals(frame.Signals)
		}
	}

	if e.mirror != nil {
		if err := e.mirror.MirrorFrame(ctx, e.runID, frame); err != nil {
			e.logger.Warn("frame mirror failed", "error", err)
		}
	}

	e.logger.Debug("frame published",
		"tick", frame.Tick,
		"vehicles", len(frame.Vehicles),
		"deltas", len(deltas),
	)
}

// Spawn requests a vehicle on dir. Declines are normal admission outcomes.
func (e *Engine) Spawn(dir domain.Direction, class domain.LaneClass) (domain.Vehicle, bool) {
	e.mu.Lock()
	v, ok := e.state.Spawn(dir, class)
	e.mu.Unlock()
	return e.recordSpawn(v, ok, dir)
}

// SpawnRandomClass spawns on dir with a random lane class.
func (e *Engine) SpawnRandomClass(dir domain.Direction) (domain.Vehicle, bool) {
	e.mu.Lock()
	v, ok := e.state.SpawnRandomClass(dir)
	e.mu.Unlock()
	return e.recordSpawn(v, ok, dir)
}

// SpawnRandom picks heading and lane class at random.
func (e *Engine) SpawnRandom() (domain.Vehicle, bool) {
	e.mu.Lock()
	v, ok := e.state.SpawnRandom()
	e.mu.Unlock()
	return e.recordSpawn(v, ok, v.Direction)
}

func (e *Engine) recordSpawn(v domain.Vehicle, ok bool, dir domain.Direction) (domain.Vehicle, bool) {
	if !ok {
		e.spawnsDeclined.Add(1)
		e.logger.Debug("spawn declined", "direction", dir.String())
		return v, false
	}
	e.spawnsAccepted.Add(1)
	e.logger.Debug("vehicle spawned", "id", v.ID, "direction", v.Direction.String(), "lane", v.Class.String())
	return v, true
}

// Snapshot returns the live state, bypassing the publish interval.
func (e *Engine) Snapshot() domain.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Snapshot()
}

func (e *Engine) Stats() Stats {
	return Stats{
		Ticks:          e.ticks.Load(),
		SpawnsAccepted: e.spawnsAccepted.Load(),
		SpawnsDeclined: e.spawnsDeclined.Load(),
		Exited:         e.exited.Load(),
		Turned:         e.turned.Load(),
		PhaseChanges:   e.phaseChanges.Load(),
	}
}

// onPhaseChange runs inside Tick with e.mu held.
func (e *Engine) onPhaseChange(pc signal.PhaseChange) {
	e.phaseChanges.Add(1)
	e.signalsDirty = true
	e.logger.Debug("signal phase changed",
		"green", pc.Green,
		"current", pc.Current.String(),
		"reason", pc.Reason,
		"at", pc.At,
	)
}

func (e *Engine) IsReady() bool {
	e.readyMu.RLock()
	defer e.readyMu.RUnlock()
	return e.ready
}

func (e *Engine) setReady(ready bool) {
	e.readyMu.Lock()
	defer e.readyMu.Unlock()
	e.ready = ready
}
