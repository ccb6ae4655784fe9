package domain

import (
	"encoding/json"
	"time"
)

// Vehicle is a single car on the intersection grid.
type Vehicle struct {
	ID        uint64    `json:"id"`
	Position  Point     `json:"position"`
	Direction Direction `json:"direction"`
	// Origin is the direction the vehicle was spawned with.
	Origin Direction `json:"origin"`
	Class  LaneClass `json:"lane"`
	Turned bool      `json:"turned"`
	// Moving is this tick's go/no-go decision and is recomputed every tick.
	Moving bool `json:"moving"`
}

// Color is the render hint for the vehicle's lane class.
func (v Vehicle) Color() string {
	return v.Class.Color()
}

// Signals holds one light per direction of travel.
type Signals [4]bool

// Green reports whether the light for d is green.
func (s Signals) Green(d Direction) bool {
	if !d.Valid() {
		return false
	}
	return s[d]
}

// GreenCount is the number of lights currently green.
func (s Signals) GreenCount() int {
	n := 0
	for _, g := range s {
		if g {
			n++
		}
	}
	return n
}

func (s Signals) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, '{')
	for i, d := range Directions {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '"')
		buf = append(buf, d.String()...)
		buf = append(buf, `":`...)
		if s[d] {
			buf = append(buf, "true"...)
		} else {
			buf = append(buf, "false"...)
		}
	}
	buf = append(buf, '}')
	return buf, nil
}

func (s *Signals) UnmarshalJSON(data []byte) error {
	var m map[Direction]bool
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = Signals{}
	for d, on := range m {
		s[d] = on
	}
	return nil
}

// SignalState is the controller's public state.
type SignalState struct {
	Lights  Signals   `json:"lights"`
	Current Direction `json:"current"`
	// Green is false during the all-red clearance interval.
	Green bool `json:"green"`
	// PhaseAge is how long the current phase has lasted.
	PhaseAge time.Duration `json:"phaseAgeNs"`
}

// Frame is a read-only snapshot of the simulation after a tick.
type Frame struct {
	Tick     uint64        `json:"tick"`
	Elapsed  time.Duration `json:"elapsedNs"`
	Vehicles []Vehicle     `json:"vehicles"`
	Signals  SignalState   `json:"signals"`
}

// DeltaType indicates whether a vehicle was updated or removed
type DeltaType string

const (
	DeltaUpdate DeltaType = "update"
	DeltaRemove DeltaType = "remove"
)

// VehicleDelta represents a change in vehicle state between published frames
type VehicleDelta struct {
	Type    DeltaType `json:"type"`
	Vehicle *Vehicle  `json:"vehicle,omitempty"`
	ID      uint64    `json:"id,omitempty"`
	CellID  string    `json:"cellId"`
}
