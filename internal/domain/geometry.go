package domain

// Field dimensions. y grows northward.
const (
	FieldWidth  = 800
	FieldHeight = 600
)

const (
	// MaxVehicles caps the live fleet.
	MaxVehicles = 20
	// SpawnGap is how far the newest vehicle on an approach must have
	// travelled from the entry point before another may spawn behind it.
	SpawnGap = 65
	// SafeDistance is the following distance; a leader this close or closer blocks.
	SafeDistance = 65
)

// Bounds is the rectangle outside of which vehicles are removed.
var Bounds = Rect{MinX: -30, MinY: -30, MaxX: 830, MaxY: 630}

// Point is a position on the integer grid.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Add(dx, dy int) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// Rect is an inclusive integer rectangle.
type Rect struct {
	MinX int `json:"minX"`
	MinY int `json:"minY"`
	MaxX int `json:"maxX"`
	MaxY int `json:"maxY"`
}

// Contains checks if a point is within the rectangle
func (r Rect) Contains(p Point) bool {
	return p.X >= r.MinX && p.X <= r.MaxX &&
		p.Y >= r.MinY && p.Y <= r.MaxY
}

// Intersect returns the overlap of r and o, and false when they are disjoint
// or either is empty.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	out := Rect{
		MinX: max(r.MinX, o.MinX),
		MinY: max(r.MinY, o.MinY),
		MaxX: min(r.MaxX, o.MaxX),
		MaxY: min(r.MaxY, o.MaxY),
	}
	if out.MinX > out.MaxX || out.MinY > out.MaxY {
		return Rect{}, false
	}
	return out, true
}

// Approach describes one inbound lane, keyed by its direction of travel.
type Approach struct {
	Direction Direction
	Entry     Point
	// StopLine is the coordinate on the travel axis where a red light holds vehicles.
	StopLine int
}

// Approaches is indexed by Direction.
var Approaches = [4]Approach{
	East:  {Direction: East, Entry: Point{X: -30, Y: 310}, StopLine: 300},
	North: {Direction: North, Entry: Point{X: 360, Y: -30}, StopLine: 240},
	West:  {Direction: West, Entry: Point{X: 800, Y: 260}, StopLine: 470},
	South: {Direction: South, Entry: Point{X: 410, Y: 600}, StopLine: 420},
}

// ApproachFor returns the inbound lane for vehicles travelling in d.
func ApproachFor(d Direction) Approach {
	return Approaches[d]
}

// Axis returns the coordinate of p along the approach's travel axis.
func (a Approach) Axis(p Point) int {
	if a.Direction == North || a.Direction == South {
		return p.Y
	}
	return p.X
}

// AtStopLine is an exact point check; movement is one unit per tick so
// every vehicle lands on the line.
func (a Approach) AtStopLine(p Point) bool {
	return a.Axis(p) == a.StopLine
}

// Travelled is the distance from the entry point along the travel axis.
func (a Approach) Travelled(p Point) int {
	return a.Direction.Ahead(a.Entry, p)
}

// Midpoint is the distance from entry to halfway to the stop line.
func (a Approach) Midpoint() int {
	stop := a.Entry
	if a.Direction == North || a.Direction == South {
		stop.Y = a.StopLine
	} else {
		stop.X = a.StopLine
	}
	return a.Direction.Ahead(a.Entry, stop) / 2
}

// Waypoint is one entry of the turn table.
type Waypoint struct {
	Heading Direction
	At      Point
	Class   LaneClass
	Turn    Direction
}

// Waypoints encodes the two turning lanes of every approach.
var Waypoints = []Waypoint{
	{Heading: North, At: Point{X: 360, Y: 260}, Class: LaneLeftTurn, Turn: West},
	{Heading: North, At: Point{X: 360, Y: 310}, Class: LaneRightTurn, Turn: East},
	{Heading: South, At: Point{X: 410, Y: 260}, Class: LaneRightTurn, Turn: West},
	{Heading: South, At: Point{X: 410, Y: 310}, Class: LaneLeftTurn, Turn: East},
	{Heading: East, At: Point{X: 360, Y: 310}, Class: LaneLeftTurn, Turn: North},
	{Heading: East, At: Point{X: 410, Y: 310}, Class: LaneRightTurn, Turn: South},
	{Heading: West, At: Point{X: 360, Y: 260}, Class: LaneRightTurn, Turn: North},
	{Heading: West, At: Point{X: 410, Y: 260}, Class: LaneLeftTurn, Turn: South},
}

// TurnAt looks up the turn table for an exact (heading, position, class) match.
func TurnAt(heading Direction, p Point, class LaneClass) (Direction, bool) {
	for _, w := range Waypoints {
		if w.Heading == heading && w.At == p && w.Class == class {
			return w.Turn, true
		}
	}
	return heading, false
}
