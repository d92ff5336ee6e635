// Package gtfsrt is a live vehicle source built on GTFS-Realtime feeds.
//
// VehiclePositions supply the vehicle number, position and current trip.
// TripUpdates supply the delay used as schedule adherence: a delay of d
// seconds is reported as -d/60 minutes, positive meaning ahead of schedule.
package gtfsrt
