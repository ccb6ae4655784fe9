// Package sim ties the vehicle registry and the signal controller together
// into a single-writer tick.
package sim

import (
	"math/rand/v2"
	"time"

	"crossway/internal/domain"
	"crossway/internal/registry"
	"crossway/internal/signal"
)

// TickResult summarizes what changed during one tick.
type TickResult struct {
	Tick    uint64
	Exited  []domain.Vehicle
	Turned  int
	Stopped int
}

// State is the whole simulation. It carries no process-wide globals, so a
// test can drive it tick by tick.
type State struct {
	Registry   *registry.Registry
	Controller *signal.Controller

	rng     *rand.Rand
	tick    uint64
	elapsed time.Duration
}

// New creates an empty simulation. A nil rng gets a randomly seeded source.
func New(cfg signal.Config, rng *rand.Rand) *State {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &State{
		Registry:   registry.New(),
		Controller: signal.NewController(cfg),
		rng:        rng,
	}
}

// Spawn asks the registry to admit a vehicle at dir's entry point.
func (s *State) Spawn(dir domain.Direction, class domain.LaneClass) (domain.Vehicle, bool) {
	return s.Registry.Spawn(dir, class)
}

// SpawnRandomClass spawns on dir with a random lane class.
func (s *State) SpawnRandomClass(dir domain.Direction) (domain.Vehicle, bool) {
	return s.Spawn(dir, s.RandomClass())
}

// SpawnRandom picks both heading and lane class at random.
func (s *State) SpawnRandom() (domain.Vehicle, bool) {
	dir := domain.Directions[s.rng.IntN(len(domain.Directions))]
	return s.SpawnRandomClass(dir)
}

func (s *State) RandomClass() domain.LaneClass {
	return domain.LaneClasses[s.rng.IntN(len(domain.LaneClasses))]
}

// Tick advances the simulation by elapsed real time: signal update, vehicle
// behavior against a snapshot taken before anyone moves, then pruning.
func (s *State) Tick(elapsed time.Duration) TickResult {
	if elapsed > 0 {
		s.elapsed += elapsed
	}
	s.tick++

	snapshot := s.Registry.All()
	s.Controller.Update(snapshot, s.elapsed)

	res := TickResult{Tick: s.tick}
	s.Registry.Update(func(v *domain.Vehicle) {
		turned := v.Turned
		Step(v, s.Controller, snapshot)
		if !turned && v.Turned {
			res.Turned++
		}
		if !v.Moving {
			res.Stopped++
		}
	})

	res.Exited = s.Registry.Prune()
	return res
}

// Snapshot returns the read-only view a renderer draws from.
func (s *State) Snapshot() domain.Frame {
	return domain.Frame{
		Tick:     s.tick,
		Elapsed:  s.elapsed,
		Vehicles: s.Registry.All(),
		Signals:  s.Controller.State(),
	}
}

func (s *State) Ticks() uint64 {
	return s.tick
}

func (s *State) Elapsed() time.Duration {
	return s.elapsed
}
