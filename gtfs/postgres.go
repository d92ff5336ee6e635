package gtfs

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// OpenPostgres opens a pgx-backed sqlx handle for a database populated by a
// GTFS importer.
func OpenPostgres(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// PostgresSource reads the feed tables from Postgres. Every column is cast
// to text so the rows carry the same raw values a zip feed would. The
// non-standard trips.block, trips.display_code and stop_times.stop_code
// columns are read when the importer kept them and left empty otherwise;
// without display_code, touching trips with equal headsign, shape and
// direction merge into one block trip.
type PostgresSource struct {
	db  *sqlx.DB
	log logrus.FieldLogger
}

func NewPostgresSource(db *sqlx.DB, log logrus.FieldLogger) *PostgresSource {
	return &PostgresSource{db: db, log: log}
}

const (
	qAgency = `SELECT COALESCE(agency_id::text, '') AS agency_id, agency_name, COALESCE(agency_url, '') AS agency_url, agency_timezone FROM agency`

	qCalendar = `SELECT service_id,
       monday::int::text AS monday, tuesday::int::text AS tuesday, wednesday::int::text AS wednesday,
       thursday::int::text AS thursday, friday::int::text AS friday, saturday::int::text AS saturday,
       sunday::int::text AS sunday,
       to_char(start_date, 'YYYYMMDD') AS start_date, to_char(end_date, 'YYYYMMDD') AS end_date
FROM calendar`

	qCalendarDates = `SELECT service_id, to_char(date, 'YYYYMMDD') AS date, exception_type::int::text AS exception_type FROM calendar_dates`

	qFeedInfo = `SELECT feed_publisher_name, COALESCE(feed_lang, '') AS feed_lang,
       COALESCE(to_char(feed_start_date, 'YYYYMMDD'), '') AS feed_start_date,
       COALESCE(to_char(feed_end_date, 'YYYYMMDD'), '') AS feed_end_date,
       COALESCE(feed_version, '') AS feed_version
FROM feed_info`

	qRoutes = `SELECT route_id, COALESCE(agency_id::text, '') AS agency_id,
       COALESCE(route_short_name, '') AS route_short_name, COALESCE(route_long_name, '') AS route_long_name,
       route_type::text AS route_type, COALESCE(route_color, '') AS route_color,
       COALESCE(route_text_color, '') AS route_text_color
FROM routes`

	qShapes = `SELECT shape_id, shape_pt_lat::text AS shape_pt_lat, shape_pt_lon::text AS shape_pt_lon,
       shape_pt_sequence::text AS shape_pt_sequence
FROM shapes ORDER BY shape_id, shape_pt_sequence`

	qStopTimes = `SELECT trip_id, COALESCE(arrival_time::text, '') AS arrival_time,
       COALESCE(departure_time::text, '') AS departure_time, stop_id,
       %s, stop_sequence::text AS stop_sequence
FROM stop_times ORDER BY trip_id, stop_sequence`

	qStops = `SELECT stop_id, COALESCE(stop_code, '') AS stop_code, COALESCE(stop_name, '') AS stop_name,
       stop_lat::text AS stop_lat, stop_lon::text AS stop_lon
FROM stops`

	qTrips = `SELECT route_id, service_id, trip_id, COALESCE(trip_headsign, '') AS trip_headsign,
       COALESCE(direction_id::int::text, '') AS direction_id, COALESCE(block_id, '') AS block_id,
       %s, COALESCE(shape_id, '') AS shape_id, %s
FROM trips`

	qExtensionColumns = `SELECT table_name, column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name IN ('trips', 'stop_times')
  AND column_name IN ('block', 'display_code', 'stop_code')`
)

// columnSet holds "table.column" names present in the database.
type columnSet map[string]bool

// text selects column as text when the table has it, an empty string otherwise.
func (c columnSet) text(table, column string) string {
	if c[table+"."+column] {
		return fmt.Sprintf(`COALESCE("%s"::text, '') AS %s`, column, column)
	}
	return fmt.Sprintf("'' AS %s", column)
}

func (s *PostgresSource) extensionColumns(ctx context.Context) columnSet {
	var rows []struct {
		Table  string `db:"table_name"`
		Column string `db:"column_name"`
	}
	cols := columnSet{}
	if err := s.db.SelectContext(ctx, &rows, qExtensionColumns); err != nil {
		s.log.WithError(err).Warn("could not inspect GTFS extension columns, leaving them empty")
		return cols
	}
	for _, r := range rows {
		cols[r.Table+"."+r.Column] = true
	}
	return cols
}

// LoadFeed runs one query per table. Postgres imports carry no change
// marker, so every call returns a full feed. Optional tables that fail to
// load are logged and left empty.
func (s *PostgresSource) LoadFeed(ctx context.Context) (*Feed, error) {
	feed := &Feed{}
	cols := s.extensionColumns(ctx)
	stopTimes := fmt.Sprintf(qStopTimes, cols.text("stop_times", "stop_code"))
	trips := fmt.Sprintf(qTrips, cols.text("trips", "block"), cols.text("trips", "display_code"))
	steps := []struct {
		table    string
		dest     any
		query    string
		optional bool
	}{
		{"agency", &feed.Agency, qAgency, true},
		{"calendar", &feed.Calendar, qCalendar, true},
		{"calendar_dates", &feed.CalendarDates, qCalendarDates, true},
		{"feed_info", &feed.FeedInfo, qFeedInfo, true},
		{"routes", &feed.Routes, qRoutes, false},
		{"shapes", &feed.Shapes, qShapes, true},
		{"stop_times", &feed.StopTimes, stopTimes, false},
		{"stops", &feed.Stops, qStops, false},
		{"trips", &feed.Trips, trips, false},
	}
	for _, st := range steps {
		err := s.db.SelectContext(ctx, st.dest, st.query)
		if err != nil && st.optional {
			s.log.WithError(err).WithField("table", st.table).Warn("GTFS table unavailable, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", st.table, err)
		}
	}
	return feed, nil
}
