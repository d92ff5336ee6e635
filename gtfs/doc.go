/*
Package gtfs loads a static GTFS feed and exposes it as a read-only Index.

Loading is split in two steps. A FeedSource produces raw tables whose fields
are the unconverted GTFS text values:

	src := gtfs.NewHTTPZipSource(url, 60*time.Second, log)
	feed, err := src.LoadFeed(ctx)
	if errors.Is(err, gtfs.ErrNotModified) {
	    // keep serving the current index
	}

NewIndex then converts the tables. Times may run past 24:00:00 and are kept
as seconds from the service day's midnight, so 25:30:00 becomes 91800.
Malformed rows are logged and skipped:

	index, err := gtfs.NewIndex(feed, log)
	trip, ok := index.TripByID("1234567")
	stops := index.StopTimesForTrip(trip.ID)
	shape, ok := index.ShapeByID(trip.ShapeID)
	running := index.ActiveServiceIDs(time.Now())

# Sources

  - HTTPZipSource: downloads the zip, honours Last-Modified.
  - FileZipSource: local zip, reloads when the file changes.
  - PostgresSource: tables imported into Postgres (pgx driver via sqlx).

SaveSnapshot and LoadSnapshot keep a gob copy of the raw tables on disk so a
restarted process can serve the last schedule while the upstream is down.

# Calendar

ActiveServiceIDs applies calendar.txt within its date range, adds
calendar_dates "added" exceptions, then subtracts "removed" exceptions. A
service both added and removed on the same date is not active.

# Distances

Haversine uses a 6,378,137 m Earth radius. Shapes are sorted by
shape_pt_sequence and carry their total length in meters.
*/
package gtfs
