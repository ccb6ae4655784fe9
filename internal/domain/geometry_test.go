package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionRing(t *testing.T) {
	assert.Equal(t, North, East.Next())
	assert.Equal(t, West, North.Next())
	assert.Equal(t, South, West.Next())
	assert.Equal(t, East, South.Next())
}

func TestDirectionAhead(t *testing.T) {
	origin := Point{X: 100, Y: 100}

	assert.Equal(t, 10, North.Ahead(origin, Point{X: 100, Y: 110}))
	assert.Equal(t, -10, South.Ahead(origin, Point{X: 100, Y: 110}))
	assert.Equal(t, 5, West.Ahead(origin, Point{X: 95, Y: 100}))
	assert.Equal(t, 0, East.Ahead(origin, Point{X: 100, Y: 300}))
}

func TestParseDirection(t *testing.T) {
	for _, d := range Directions {
		parsed, err := ParseDirection(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}

	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}

func TestParseLaneClass(t *testing.T) {
	c, err := ParseLaneClass("purple")
	require.NoError(t, err)
	assert.Equal(t, LaneLeftTurn, c)

	_, err = ParseLaneClass("green")
	assert.Error(t, err)
}

func TestApproachMidpoint(t *testing.T) {
	t.Run("east", func(t *testing.T) {
		a := ApproachFor(East)
		assert.Equal(t, 165, a.Midpoint())
		assert.Equal(t, 0, a.Travelled(a.Entry))
		assert.True(t, a.AtStopLine(Point{X: 300, Y: 310}))
	})

	t.Run("south", func(t *testing.T) {
		a := ApproachFor(South)
		assert.Equal(t, 90, a.Midpoint())
		assert.Equal(t, 100, a.Travelled(Point{X: 410, Y: 500}))
		assert.True(t, a.AtStopLine(Point{X: 410, Y: 420}))
		assert.False(t, a.AtStopLine(Point{X: 410, Y: 421}))
	})
}

func TestTurnAt(t *testing.T) {
	heading, ok := TurnAt(North, Point{X: 360, Y: 260}, LaneLeftTurn)
	require.True(t, ok)
	assert.Equal(t, West, heading)

	_, ok = TurnAt(North, Point{X: 360, Y: 260}, LaneRightTurn)
	assert.False(t, ok)

	for _, d := range Directions {
		for _, w := range Waypoints {
			_, ok := TurnAt(d, w.At, LaneThrough)
			assert.False(t, ok, "through traffic never turns")
		}
	}
}

func TestWaypointsPerpendicular(t *testing.T) {
	for _, w := range Waypoints {
		hx, hy := w.Heading.Step()
		tx, ty := w.Turn.Step()
		assert.Zero(t, hx*tx+hy*ty, "turn from %s to %s", w.Heading, w.Turn)
	}
}

func TestBoundsContains(t *testing.T) {
	for _, a := range Approaches {
		assert.True(t, Bounds.Contains(a.Entry), a.Direction.String())
	}
	assert.False(t, Bounds.Contains(Point{X: 831, Y: 310}))
	assert.False(t, Bounds.Contains(Point{X: 410, Y: -31}))
}

func TestSignalsMarshalJSON(t *testing.T) {
	var s Signals
	s[West] = true

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"east":false,"north":false,"west":true,"south":false}`, string(data))
	assert.Equal(t, 1, s.GreenCount())
}

func TestFrameJSONRoundTrip(t *testing.T) {
	in := Frame{
		Tick: 7,
		Vehicles: []Vehicle{{
			ID: 3, Position: Point{X: 300, Y: 310}, Direction: East, Origin: East,
			Class: LaneLeftTurn, Moving: true,
		}},
		Signals: SignalState{Current: South, Green: true},
	}
	in.Signals.Lights[South] = true

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Frame
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	var bad Signals
	assert.Error(t, json.Unmarshal([]byte(`{"up-left":true}`), &bad))
}

func TestRectIntersect(t *testing.T) {
	huge := Rect{MinX: -100000, MinY: -100000, MaxX: 100000, MaxY: 100000}
	got, ok := huge.Intersect(Bounds)
	require.True(t, ok)
	assert.Equal(t, Bounds, got)

	got, ok = Rect{MinX: 0, MinY: 0, MaxX: 50, MaxY: 50}.Intersect(Rect{MinX: 40, MinY: 45, MaxX: 90, MaxY: 90})
	require.True(t, ok)
	assert.Equal(t, Rect{MinX: 40, MinY: 45, MaxX: 50, MaxY: 50}, got)

	_, ok = Rect{MinX: 900, MinY: 0, MaxX: 1000, MaxY: 10}.Intersect(Bounds)
	assert.False(t, ok)
	_, ok = Rect{MinX: 10, MaxX: 0}.Intersect(Bounds)
	assert.False(t, ok, "inverted rect is empty")
}
