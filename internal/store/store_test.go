package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossway/internal/domain"
)

func vehicle(id uint64, x, y int, dir domain.Direction) domain.Vehicle {
	return domain.Vehicle{
		ID:        id,
		Position:  domain.Point{X: x, Y: y},
		Direction: dir,
		Origin:    dir,
		Class:     domain.LaneThrough,
		Moving:    true,
	}
}

func TestPublishDeltas(t *testing.T) {
	s := New(100)

	_, ok := s.Frame()
	assert.False(t, ok)

	deltas := s.Publish(domain.Frame{Tick: 1, Vehicles: []domain.Vehicle{
		vehicle(1, -30, 310, domain.East),
		vehicle(2, 360, -30, domain.North),
	}})
	require.Len(t, deltas, 2)
	assert.Equal(t, domain.DeltaUpdate, deltas[0].Type)
	assert.Equal(t, "100/-1/3", deltas[0].CellID)
	assert.Equal(t, "100/3/-1", deltas[1].CellID)

	t.Run("unchanged vehicles produce nothing", func(t *testing.T) {
		deltas := s.Publish(domain.Frame{Tick: 2, Vehicles: []domain.Vehicle{
			vehicle(1, -30, 310, domain.East),
			vehicle(2, 360, -30, domain.North),
		}})
		assert.Empty(t, deltas)
	})

	t.Run("cell change removes from old cell", func(t *testing.T) {
		deltas := s.Publish(domain.Frame{Tick: 3, Vehicles: []domain.Vehicle{
			vehicle(1, 0, 310, domain.East),
			vehicle(2, 360, -29, domain.North),
		}})
		require.Len(t, deltas, 3)
		assert.Equal(t, domain.VehicleDelta{Type: domain.DeltaRemove, ID: 1, CellID: "100/-1/3"}, deltas[0])
		assert.Equal(t, domain.DeltaUpdate, deltas[1].Type)
		assert.Equal(t, "100/0/3", deltas[1].CellID)
		assert.Equal(t, "100/3/-1", deltas[2].CellID, "same cell, position changed")

		assert.Empty(t, s.SnapshotForCells([]string{"100/-1/3"}))
		assert.Len(t, s.SnapshotForCells([]string{"100/0/3"}), 1)
	})

	t.Run("vanished vehicles are removed", func(t *testing.T) {
		deltas := s.Publish(domain.Frame{Tick: 4, Vehicles: []domain.Vehicle{
			vehicle(2, 360, -28, domain.North),
		}})
		require.Len(t, deltas, 2)
		assert.Equal(t, domain.DeltaUpdate, deltas[0].Type)
		assert.Equal(t, domain.VehicleDelta{Type: domain.DeltaRemove, ID: 1, CellID: "100/0/3"}, deltas[1])

		_, ok := s.Get(1)
		assert.False(t, ok)
		assert.Equal(t, 1, s.Count())
	})

	f, ok := s.Frame()
	require.True(t, ok)
	assert.Equal(t, uint64(4), f.Tick)
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(100)
	s.Publish(domain.Frame{Vehicles: []domain.Vehicle{vehicle(7, 100, 310, domain.East)}})

	v, ok := s.Get(7)
	require.True(t, ok)
	v.Position.X = 999

	again, _ := s.Get(7)
	assert.Equal(t, 100, again.Position.X)
}

func TestList(t *testing.T) {
	s := New(100)
	s.Publish(domain.Frame{Vehicles: []domain.Vehicle{
		vehicle(1, 100, 310, domain.East),
		vehicle(2, 200, 310, domain.East),
		vehicle(3, 360, 50, domain.North),
	}})

	assert.Len(t, s.List(ListOptions{}), 3)

	east := domain.East
	assert.Len(t, s.List(ListOptions{Direction: &east}), 2)

	rect := domain.Rect{MinX: 150, MinY: 0, MaxX: 400, MaxY: 400}
	got := s.List(ListOptions{Rect: &rect})
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].ID)
	assert.Equal(t, uint64(3), got[1].ID)

	got = s.List(ListOptions{Direction: &east, Rect: &rect})
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].ID)
}

func TestCountByDirection(t *testing.T) {
	s := New(100)
	s.Publish(domain.Frame{Vehicles: []domain.Vehicle{
		vehicle(1, 100, 310, domain.East),
		vehicle(2, 200, 310, domain.East),
		vehicle(3, 360, 50, domain.North),
	}})

	counts := s.CountByDirection()
	assert.Equal(t, 2, counts[domain.East])
	assert.Equal(t, 1, counts[domain.North])
	assert.Equal(t, 0, counts[domain.West])
	assert.Equal(t, 0, counts[domain.South])
}

func TestSnapshotForCellsSortedAndDeduplicated(t *testing.T) {
	s := New(100)
	s.Publish(domain.Frame{Vehicles: []domain.Vehicle{
		vehicle(5, 110, 310, domain.East),
		vehicle(2, 120, 310, domain.East),
		vehicle(9, 360, 50, domain.North),
	}})

	got := s.SnapshotForCells([]string{"100/1/3", "100/1/3", "100/3/0"})
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{2, 5, 9}, []uint64{got[0].ID, got[1].ID, got[2].ID})
}
