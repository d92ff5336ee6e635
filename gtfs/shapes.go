package gtfs

import (
	"math"
	"sort"
)

// EarthRadiusMeters is the radius used for every great-circle distance.
const EarthRadiusMeters = 6378137.0

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Point) float64 {
	rad := math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLon := (b.Lon - a.Lon) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// NewShape sorts points by sequence and derives the polyline length.
func NewShape(id string, points []ShapePoint) Shape {
	pts := make([]ShapePoint, len(points))
	copy(pts, points)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Sequence < pts[j].Sequence })
	return Shape{ID: id, Points: pts, Length: PolylineLength(pts)}
}

// PolylineLength sums the haversine length of consecutive points.
func PolylineLength(pts []ShapePoint) float64 {
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += Haversine(pts[i-1].Point(), pts[i].Point())
	}
	return total
}

// StopsNear returns the stops within radius meters of p, nearest first.
func (g *Index) StopsNear(p Point, radius float64) []Stop {
	type hit struct {
		stop Stop
		dist float64
	}
	var hits []hit
	for _, s := range g.stops {
		if d := Haversine(p, s.Point()); d <= radius {
			hits = append(hits, hit{s, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist == hits[j].dist {
			return hits[i].stop.ID < hits[j].stop.ID
		}
		return hits[i].dist < hits[j].dist
	})
	out := make([]Stop, len(hits))
	for i, h := range hits {
		out[i] = h.stop
	}
	return out
}
