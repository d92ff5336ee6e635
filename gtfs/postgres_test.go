package gtfs

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgresSource(t *testing.T) (*PostgresSource, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	log, _ := nullLogger()
	src := NewPostgresSource(sqlx.NewDb(db, "sqlmock"), log)
	return src, mock, func() { _ = db.Close() }
}

func TestPostgresSource_LoadFeed(t *testing.T) {
	src, mock, cleanup := setupPostgresSource(t)
	defer cleanup()

	mock.ExpectQuery("information_schema.columns").WillReturnRows(sqlmock.NewRows(
		[]string{"table_name", "column_name"}).
		AddRow("trips", "display_code").
		AddRow("stop_times", "stop_code"))
	mock.ExpectQuery("FROM agency").WillReturnRows(sqlmock.NewRows(
		[]string{"agency_id", "agency_name", "agency_url", "agency_timezone"}).
		AddRow("TB", "TheBus", "https://www.thebus.org", "Pacific/Honolulu"))
	mock.ExpectQuery("FROM calendar$").WillReturnRows(sqlmock.NewRows(
		[]string{"service_id", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday", "start_date", "end_date"}).
		AddRow("WK", "1", "1", "1", "1", "1", "0", "0", "20240101", "20241231"))
	mock.ExpectQuery("FROM calendar_dates").WillReturnError(errors.New(`relation "calendar_dates" does not exist`))
	mock.ExpectQuery("FROM feed_info").WillReturnRows(sqlmock.NewRows(
		[]string{"feed_publisher_name", "feed_lang", "feed_start_date", "feed_end_date", "feed_version"}))
	mock.ExpectQuery("FROM routes").WillReturnRows(sqlmock.NewRows(
		[]string{"route_id", "agency_id", "route_short_name", "route_long_name", "route_type", "route_color", "route_text_color"}).
		AddRow("R1", "TB", "A", "CityExpress A", "3", "", ""))
	mock.ExpectQuery("FROM shapes").WillReturnRows(sqlmock.NewRows(
		[]string{"shape_id", "shape_pt_lat", "shape_pt_lon", "shape_pt_sequence"}).
		AddRow("SH1", "21.29", "-157.84", "1"))
	mock.ExpectQuery(`COALESCE\("stop_code"::text, ''\) AS stop_code, stop_sequence(.|\s)+FROM stop_times`).WillReturnRows(sqlmock.NewRows(
		[]string{"trip_id", "arrival_time", "departure_time", "stop_id", "stop_code", "stop_sequence"}).
		AddRow("T1", "25:10:00", "25:10:00", "S1", "", "1"))
	mock.ExpectQuery("FROM stops").WillReturnRows(sqlmock.NewRows(
		[]string{"stop_id", "stop_code", "stop_name", "stop_lat", "stop_lon"}).
		AddRow("S1", "100", "Ala Moana Center", "21.29", "-157.84"))
	mock.ExpectQuery(`'' AS block, COALESCE\(shape_id, ''\) AS shape_id, COALESCE\("display_code"::text, ''\) AS display_code\s+FROM trips`).WillReturnRows(sqlmock.NewRows(
		[]string{"route_id", "service_id", "trip_id", "trip_headsign", "direction_id", "block_id", "block", "shape_id", "display_code"}).
		AddRow("R1", "WK", "T1", "WAIKIKI", "0", "B1", "", "SH1", "A1"))

	feed, err := src.LoadFeed(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Empty(t, feed.CalendarDates, "optional table failure leaves it empty")
	require.Len(t, feed.StopTimes, 1)
	assert.Equal(t, "25:10:00", feed.StopTimes[0].ArrivalTime)
	require.Len(t, feed.Trips, 1)
	assert.Equal(t, "A1", feed.Trips[0].DisplayCode)

	log, _ := nullLogger()
	idx, err := NewIndex(feed, log)
	require.NoError(t, err)
	first, _, ok := idx.TripBounds("T1")
	require.True(t, ok)
	assert.Equal(t, 90600, first)
}

func TestPostgresSource_RequiredTableFails(t *testing.T) {
	src, mock, cleanup := setupPostgresSource(t)
	defer cleanup()

	mock.ExpectQuery("information_schema.columns").WillReturnError(errors.New("permission denied"))
	mock.ExpectQuery("FROM agency").WillReturnRows(sqlmock.NewRows([]string{"agency_id", "agency_name", "agency_url", "agency_timezone"}))
	mock.ExpectQuery("FROM calendar$").WillReturnRows(sqlmock.NewRows([]string{"service_id"}))
	mock.ExpectQuery("FROM calendar_dates").WillReturnRows(sqlmock.NewRows([]string{"service_id", "date", "exception_type"}))
	mock.ExpectQuery("FROM feed_info").WillReturnRows(sqlmock.NewRows([]string{"feed_publisher_name"}))
	mock.ExpectQuery("FROM routes").WillReturnError(errors.New("connection reset"))

	_, err := src.LoadFeed(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query routes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestColumnSet_Text(t *testing.T) {
	cols := columnSet{"trips.display_code": true}
	tests := []struct {
		table, column string
		want          string
	}{
		{"trips", "display_code", `COALESCE("display_code"::text, '') AS display_code`},
		{"trips", "block", "'' AS block"},
		{"stop_times", "stop_code", "'' AS stop_code"},
	}
	for _, tt := range tests {
		t.Run(tt.table+"."+tt.column, func(t *testing.T) {
			assert.Equal(t, tt.want, cols.text(tt.table, tt.column))
		})
	}
}
