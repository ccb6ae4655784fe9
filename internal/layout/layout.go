// Package layout exports the fixed intersection geometry as GeoJSON in
// planar field coordinates, for renderers that draw the static scene.
package layout

import (
	geojson "github.com/paulmach/go.geojson"

	"crossway/internal/domain"
)

// Road surfaces of the two crossing streets.
var (
	HorizontalRoad = domain.Rect{MinX: 0, MinY: 250, MaxX: domain.FieldWidth, MaxY: 350}
	VerticalRoad   = domain.Rect{MinX: 350, MinY: 0, MaxX: 450, MaxY: domain.FieldHeight}
)

// Build returns roads, inbound lanes, stop lines and turn waypoints.
func Build() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for name, r := range map[string]domain.Rect{"horizontal": HorizontalRoad, "vertical": VerticalRoad} {
		f := geojson.NewPolygonFeature(rectPolygon(r))
		f.SetProperty("kind", "road")
		f.SetProperty("name", name)
		fc.AddFeature(f)
	}

	for _, a := range domain.Approaches {
		stop := stopPoint(a)

		lane := geojson.NewLineStringFeature([][]float64{coord(a.Entry), coord(stop)})
		lane.SetProperty("kind", "approach")
		lane.SetProperty("direction", a.Direction.String())
		lane.SetProperty("midpoint", a.Midpoint())
		fc.AddFeature(lane)

		sl := geojson.NewPointFeature(coord(stop))
		sl.SetProperty("kind", "stop_line")
		sl.SetProperty("direction", a.Direction.String())
		fc.AddFeature(sl)
	}

	for _, w := range domain.Waypoints {
		f := geojson.NewPointFeature(coord(w.At))
		f.SetProperty("kind", "waypoint")
		f.SetProperty("heading", w.Heading.String())
		f.SetProperty("lane", w.Class.String())
		f.SetProperty("color", w.Class.Color())
		f.SetProperty("turn", w.Turn.String())
		fc.AddFeature(f)
	}

	bounds := geojson.NewPolygonFeature(rectPolygon(domain.Bounds))
	bounds.SetProperty("kind", "bounds")
	fc.AddFeature(bounds)

	return fc
}

func stopPoint(a domain.Approach) domain.Point {
	p := a.Entry
	if a.Direction == domain.North || a.Direction == domain.South {
		p.Y = a.StopLine
	} else {
		p.X = a.StopLine
	}
	return p
}

func coord(p domain.Point) []float64 {
	return []float64{float64(p.X), float64(p.Y)}
}

func rectPolygon(r domain.Rect) [][][]float64 {
	return [][][]float64{{
		{float64(r.MinX), float64(r.MinY)},
		{float64(r.MaxX), float64(r.MinY)},
		{float64(r.MaxX), float64(r.MaxY)},
		{float64(r.MinX), float64(r.MaxY)},
		{float64(r.MinX), float64(r.MinY)},
	}}
}
