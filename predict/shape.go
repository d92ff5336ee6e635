package predict

import (
	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

// ShapeLookup resolves shape ids to polished shapes.
type ShapeLookup interface {
	ShapeByID(id string) (gtfs.Shape, bool)
}

// NearestPointOnShape returns the shape point closest to p. Ties go to the
// lowest sequence number. It reports false for an empty shape.
func NearestPointOnShape(shape gtfs.Shape, p gtfs.Point) (gtfs.ShapePoint, bool) {
	if len(shape.Points) == 0 {
		return gtfs.ShapePoint{}, false
	}
	best := shape.Points[0]
	bestDist := gtfs.Haversine(best.Point(), p)
	for _, sp := range shape.Points[1:] {
		d := gtfs.Haversine(sp.Point(), p)
		if d < bestDist || (d == bestDist && sp.Sequence < best.Sequence) {
			best, bestDist = sp, d
		}
	}
	return best, true
}

// segmentLength sums the polyline between two sequence numbers, inclusive,
// in either order.
func segmentLength(shape gtfs.Shape, fromSeq, toSeq int) float64 {
	lo, hi := fromSeq, toSeq
	if lo > hi {
		lo, hi = hi, lo
	}
	total := 0.0
	var prev *gtfs.ShapePoint
	for i := range shape.Points {
		sp := &shape.Points[i]
		if sp.Sequence < lo || sp.Sequence > hi {
			continue
		}
		if prev != nil {
			total += gtfs.Haversine(prev.Point(), sp.Point())
		}
		prev = sp
	}
	return total
}

// PathDistance is the distance in meters from one point to another along
// shape: the snap distance at each end plus the polyline between the two
// snapped points. An empty shape degrades to the great-circle distance.
func PathDistance(shape gtfs.Shape, from, to gtfs.Point) float64 {
	a, ok := NearestPointOnShape(shape, from)
	if !ok {
		return gtfs.Haversine(from, to)
	}
	b, _ := NearestPointOnShape(shape, to)
	return gtfs.Haversine(a.Point(), from) +
		gtfs.Haversine(b.Point(), to) +
		segmentLength(shape, a.Sequence, b.Sequence)
}

// DistanceToEnd is the distance from p to the last point of shape, walking
// the polyline from the point nearest p.
func DistanceToEnd(shape gtfs.Shape, p gtfs.Point) (float64, bool) {
	a, ok := NearestPointOnShape(shape, p)
	if !ok {
		return 0, false
	}
	last := shape.Points[len(shape.Points)-1]
	return gtfs.Haversine(a.Point(), p) + segmentLength(shape, a.Sequence, last.Sequence), true
}

// DistanceWithFutureTrip measures how far a vehicle at location is from
// target when target lies on targetShapeID. If the vehicle is on another
// shape it first drives to the end of that shape, then from the start of
// the target shape to target. An unknown current shape is ignored.
func DistanceWithFutureTrip(shapes ShapeLookup, location, target gtfs.Point, currentShapeID, targetShapeID string) float64 {
	targetShape, _ := shapes.ShapeByID(targetShapeID)
	if currentShapeID == "" || currentShapeID == targetShapeID {
		return PathDistance(targetShape, location, target)
	}
	current, ok := shapes.ShapeByID(currentShapeID)
	if !ok || len(current.Points) == 0 {
		return PathDistance(targetShape, location, target)
	}
	toEnd, _ := DistanceToEnd(current, location)
	start := current.Points[len(current.Points)-1].Point()
	if len(targetShape.Points) > 0 {
		start = targetShape.Points[0].Point()
	}
	return toEnd + PathDistance(targetShape, start, target)
}
