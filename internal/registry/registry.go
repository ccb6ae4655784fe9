// Package registry owns the live set of vehicles and decides which spawn
// requests are admitted.
package registry

import (
	"crossway/internal/domain"
)

// Registry holds vehicles in insertion order. It is not safe for
// concurrent use; the simulation loop is its only writer.
type Registry struct {
	vehicles []domain.Vehicle
	capacity int
	nextID   uint64
}

func New() *Registry {
	return &Registry{
		vehicles: make([]domain.Vehicle, 0, domain.MaxVehicles),
		capacity: domain.MaxVehicles,
		nextID:   1,
	}
}

// Spawn places a vehicle at the entry point for dir. It returns the new
// vehicle and true, or a zero vehicle and false when admission declines it.
func (r *Registry) Spawn(dir domain.Direction, class domain.LaneClass) (domain.Vehicle, bool) {
	if !dir.Valid() || !class.Valid() {
		return domain.Vehicle{}, false
	}
	if len(r.vehicles) >= r.capacity {
		return domain.Vehicle{}, false
	}

	approach := domain.ApproachFor(dir)
	if last, ok := r.lastHeading(dir); ok {
		if approach.Travelled(last.Position) <= domain.SpawnGap {
			return domain.Vehicle{}, false
		}
	}

	v := domain.Vehicle{
		ID:        r.nextID,
		Position:  approach.Entry,
		Direction: dir,
		Origin:    dir,
		Class:     class,
	}
	r.nextID++
	r.vehicles = append(r.vehicles, v)
	return v, true
}

// lastHeading finds the most recently added vehicle currently travelling in dir.
func (r *Registry) lastHeading(dir domain.Direction) (domain.Vehicle, bool) {
	for i := len(r.vehicles) - 1; i >= 0; i-- {
		if r.vehicles[i].Direction == dir {
			return r.vehicles[i], true
		}
	}
	return domain.Vehicle{}, false
}

// Prune removes vehicles outside domain.Bounds and returns the removed ones.
func (r *Registry) Prune() []domain.Vehicle {
	var removed []domain.Vehicle
	kept := r.vehicles[:0]
	for _, v := range r.vehicles {
		if domain.Bounds.Contains(v.Position) {
			kept = append(kept, v)
			continue
		}
		removed = append(removed, v)
	}
	clear(r.vehicles[len(kept):])
	r.vehicles = kept
	return removed
}

// All returns a copy of the live vehicles in insertion order.
func (r *Registry) All() []domain.Vehicle {
	out := make([]domain.Vehicle, len(r.vehicles))
	copy(out, r.vehicles)
	return out
}

// Update applies fn to every vehicle in place, in insertion order.
func (r *Registry) Update(fn func(v *domain.Vehicle)) {
	for i := range r.vehicles {
		fn(&r.vehicles[i])
	}
}

func (r *Registry) Len() int {
	return len(r.vehicles)
}

func (r *Registry) Capacity() int {
	return r.capacity
}
