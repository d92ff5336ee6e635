// Package predict estimates how far a vehicle is from a stop along the
// route geometry and when it will get there.
//
// Distances are measured on a shape's polyline: both endpoints are snapped
// to their nearest shape point and the segments between them are summed.
// When the vehicle still has to finish a different trip first, the rest of
// that trip's shape is added in front.
//
// ETAs are offsets against the vehicle's adherence-adjusted clock and must
// be recomputed on every tick; nothing here caches a countdown.
package predict
