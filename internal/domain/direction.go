package domain

import (
	"fmt"
	"strings"
)

// Direction is the heading a vehicle travels in, not the side it entered from.
type Direction int

// Ring order: East -> North -> West -> South -> East.
const (
	East Direction = iota
	North
	West
	South
)

// Directions lists every heading in ring order.
var Directions = [4]Direction{East, North, West, South}

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// Next returns the heading that follows d in the signal ring.
func (d Direction) Next() Direction {
	return (d + 1) % 4
}

func (d Direction) Valid() bool {
	return d >= East && d <= South
}

// Step returns the unit displacement for one tick of travel.
func (d Direction) Step() (dx, dy int) {
	switch d {
	case North:
		return 0, 1
	case South:
		return 0, -1
	case East:
		return 1, 0
	case West:
		return -1, 0
	default:
		return 0, 0
	}
}

// Ahead reports how far q lies in front of p along d's axis.
// Negative or zero means q is not ahead.
func (d Direction) Ahead(p, q Point) int {
	dx, dy := d.Step()
	return (q.X-p.X)*dx + (q.Y-p.Y)*dy
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirection accepts the lowercase heading names plus a few aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n", "up":
		return North, nil
	case "south", "s", "down":
		return South, nil
	case "east", "e", "right":
		return East, nil
	case "west", "w", "left":
		return West, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// LaneClass selects which turn, if any, a vehicle takes at the intersection.
// It is assigned at spawn time and is independent of how the vehicle is drawn.
type LaneClass int

const (
	LaneThrough LaneClass = iota
	LaneRightTurn
	LaneLeftTurn
)

// LaneClasses lists every lane class.
var LaneClasses = [3]LaneClass{LaneThrough, LaneRightTurn, LaneLeftTurn}

func (c LaneClass) String() string {
	switch c {
	case LaneThrough:
		return "through"
	case LaneRightTurn:
		return "right"
	case LaneLeftTurn:
		return "left"
	default:
		return "unknown"
	}
}

// Color is the palette renderers use to draw the class.
func (c LaneClass) Color() string {
	switch c {
	case LaneRightTurn:
		return "yellow"
	case LaneLeftTurn:
		return "purple"
	default:
		return "blue"
	}
}

func (c LaneClass) Valid() bool {
	return c >= LaneThrough && c <= LaneLeftTurn
}

func (c LaneClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid lane class %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *LaneClass) UnmarshalText(text []byte) error {
	parsed, err := ParseLaneClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func ParseLaneClass(s string) (LaneClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "through", "straight", "blue":
		return LaneThrough, nil
	case "right", "yellow":
		return LaneRightTurn, nil
	case "left", "purple":
		return LaneLeftTurn, nil
	default:
		return 0, fmt.Errorf("unknown lane class %q", s)
	}
}
