// Package store keeps the most recently published frame for readers and
// turns consecutive frames into update/remove deltas.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"crossway/internal/domain"
	"crossway/internal/hub"
)

type ListOptions struct {
	Direction *domain.Direction
	Rect      *domain.Rect
}

type Store struct {
	mu       sync.RWMutex
	frame    domain.Frame
	vehicles map[uint64]*domain.Vehicle
	cellOf   map[uint64]string
	byCell   map[string]map[uint64]struct{}

	cellSize    int
	publishedAt time.Time
	published   bool
}

func New(cellSize int) *Store {
	if cellSize <= 0 {
		cellSize = 100
	}
	return &Store{
		vehicles: make(map[uint64]*domain.Vehicle),
		cellOf:   make(map[uint64]string),
		byCell:   make(map[string]map[uint64]struct{}),
		cellSize: cellSize,
	}
}

func (s *Store) CellSize() int {
	return s.cellSize
}

// Publish replaces the current frame and returns what changed since the
// previous one. A vehicle that changed cell also yields a remove for its
// old cell so viewers of that cell drop it.
func (s *Store) Publish(frame domain.Frame) []domain.VehicleDelta {
	s.mu.Lock()
	defer s.mu.Unlock()

	deltas := make([]domain.VehicleDelta, 0, len(frame.Vehicles))
	seen := make(map[uint64]struct{}, len(frame.Vehicles))

	for i := range frame.Vehicles {
		v := frame.Vehicles[i]
		seen[v.ID] = struct{}{}
		cellID := hub.CellID(v.Position, s.cellSize)

		existing, exists := s.vehicles[v.ID]
		if exists && *existing == v {
			continue
		}

		if oldCell, ok := s.cellOf[v.ID]; ok && oldCell != cellID {
			s.removeFromCellIndex(v.ID, oldCell)
			deltas = append(deltas, domain.VehicleDelta{
				Type:   domain.DeltaRemove,
				ID:     v.ID,
				CellID: oldCell,
			})
		}

		stored := v
		s.vehicles[v.ID] = &stored
		s.addToCellIndex(v.ID, cellID)

		deltas = append(deltas, domain.VehicleDelta{
			Type:    domain.DeltaUpdate,
			Vehicle: &stored,
			CellID:  cellID,
		})
	}

	for id := range s.vehicles {
		if _, ok := seen[id]; ok {
			continue
		}
		deltas = append(deltas, domain.VehicleDelta{
			Type:   domain.DeltaRemove,
			ID:     id,
			CellID: s.cellOf[id],
		})
		s.removeFromCellIndex(id, s.cellOf[id])
		delete(s.vehicles, id)
	}

	s.frame = frame
	s.publishedAt = time.Now()
	s.published = true
	return deltas
}

// Frame returns the latest published frame.
func (s *Store) Frame() (domain.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := s.frame
	f.Vehicles = append([]domain.Vehicle(nil), s.frame.Vehicles...)
	return f, s.published
}

func (s *Store) Signals() domain.SignalState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame.Signals
}

func (s *Store) Get(id uint64) (*domain.Vehicle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, false
	}
	copy := *v
	return &copy, true
}

func (s *Store) List(opts ListOptions) []*domain.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := lo.Filter(s.frame.Vehicles, func(v domain.Vehicle, _ int) bool {
		if opts.Direction != nil && v.Direction != *opts.Direction {
			return false
		}
		if opts.Rect != nil && !opts.Rect.Contains(v.Position) {
			return false
		}
		return true
	})

	result := make([]*domain.Vehicle, 0, len(matched))
	for i := range matched {
		result = append(result, &matched[i])
	}
	return result
}

func (s *Store) SnapshotForCells(cellIDs []string) []*domain.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uint64]struct{})
	var result []*domain.Vehicle

	for _, cellID := range cellIDs {
		if ids, ok := s.byCell[cellID]; ok {
			for id := range ids {
				if _, exists := seen[id]; exists {
					continue
				}
				seen[id] = struct{}{}
				copy := *s.vehicles[id]
				result = append(result, &copy)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vehicles)
}

// CountByDirection counts vehicles by their current heading.
func (s *Store) CountByDirection() map[domain.Direction]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.Direction]int, len(domain.Directions))
	for _, d := range domain.Directions {
		counts[d] = lo.CountBy(s.frame.Vehicles, func(v domain.Vehicle) bool {
			return v.Direction == d
		})
	}
	return counts
}

// PublishedAt reports when the latest frame was stored.
func (s *Store) PublishedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publishedAt
}

func (s *Store) addToCellIndex(id uint64, cellID string) {
	if s.byCell[cellID] == nil {
		s.byCell[cellID] = make(map[uint64]struct{})
	}
	s.byCell[cellID][id] = struct{}{}
	s.cellOf[id] = cellID
}

func (s *Store) removeFromCellIndex(id uint64, cellID string) {
	if s.byCell[cellID] != nil {
		delete(s.byCell[cellID], id)
		if len(s.byCell[cellID]) == 0 {
			delete(s.byCell, cellID)
		}
	}
	delete(s.cellOf, id)
}
