package sim

import (
	"crossway/internal/domain"
)

// SignalReader is the per-lane signal lookup vehicles consult.
type SignalReader interface {
	Green(d domain.Direction) bool
}

// Step runs one tick of vehicle behavior against the signal and a snapshot
// of every vehicle position taken at the start of the tick.
func Step(v *domain.Vehicle, signals SignalReader, snapshot []domain.Vehicle) {
	approach := domain.ApproachFor(v.Direction)
	v.Moving = signals.Green(v.Direction) || !approach.AtStopLine(v.Position)

	if v.Moving && !Blocked(*v, snapshot) {
		dx, dy := v.Direction.Step()
		v.Position = v.Position.Add(dx, dy)
	}

	if !v.Turned {
		if heading, ok := domain.TurnAt(v.Direction, v.Position, v.Class); ok {
			v.Direction = heading
			v.Turned = true
		}
	}
}

// Blocked reports whether another vehicle with the same heading lies
// strictly ahead of v within domain.SafeDistance.
func Blocked(v domain.Vehicle, others []domain.Vehicle) bool {
	for _, o := range others {
		if o.ID == v.ID || o.Direction != v.Direction {
			continue
		}
		gap := v.Direction.Ahead(v.Position, o.Position)
		if gap > 0 && gap <= domain.SafeDistance {
			return true
		}
	}
	return false
}
