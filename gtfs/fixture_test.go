package gtfs

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var fixtureFiles = map[string]string{
	"agency.txt": "\ufeffagency_id,agency_name,agency_url,agency_timezone\n" +
		"TB,TheBus,https://www.thebus.org,Pacific/Honolulu\n",
	"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"WK,1,1,1,1,1,0,0,20240101,20241231\n" +
		"SA,0,0,0,0,0,1,0,20240101,20241231\n",
	"calendar_dates.txt": "service_id,date,exception_type\n" +
		"WK,20240704,2\n" +
		"SA,20240704,1\n" +
		"WK,20240705,1\n" +
		"WK,20240705,2\n" +
		"SA,20240706,9\n",
	"feed_info.txt": "feed_publisher_name,feed_lang,feed_start_date,feed_end_date,feed_version\n" +
		"TheBus,en,20240101,20240630,42\n",
	"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
		"R1,TB,A,CityExpress A,3\n" +
		"R2,TB,2,School Street,3\n",
	"stops.txt": "stop_id,stop_code,stop_name,stop_lat,stop_lon\n" +
		"S1,100,Ala Moana Center,21.2900,-157.8400\n" +
		"S2,200,Kapiolani Bl,21.2950,-157.8300\n" +
		"S3,300,Kalakaua Av,21.3000,-157.8200\n" +
		"BAD,999,Broken,not-a-lat,-157.0\n",
	"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id,block_id,block,shape_id,display_code\n" +
		"R1,WK,T1,WAIKIKI,0,B1,1-101,SH1,A1\n" +
		"R1,WK,T2,WAIKIKI,0,B1,1-101,SH1,A1\n" +
		"R2,WK,T3,KALIHI,1,B1,1-101,SH2,B7\n" +
		"R1,SA,T4,WAIKIKI,0,B1,1-101,SH1,A1\n" +
		"R2,WK,T5,KALIHI,1,,,SH2,B7\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"T1,08:30:00,08:30:00,S2,2\n" +
		"T1,08:00:00,08:00:00,S1,1\n" +
		"T2,08:30:00,08:30:00,S2,1\n" +
		"T2,09:00:00,09:00:00,S3,2\n" +
		"T3,09:15:00,09:15:00,S3,1\n" +
		"T3,25:10:00,25:12:00,S1,2\n" +
		"T4,10:00:00,10:00:00,S1,1\n" +
		"T4,10:45:00,10:45:00,S3,2\n" +
		"T5,11:00:00,11:00:00,S3,1\n" +
		"T5,xx:yy,,S1,2\n" +
		"GHOST,12:00:00,12:00:00,S1,1\n",
	"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
		"SH1,21.3000,-157.8200,3\n" +
		"SH1,21.2900,-157.8400,1\n" +
		"SH1,21.2950,-157.8300,2\n" +
		"SH2,21.3000,-157.8200,1\n" +
		"SH2,21.2900,-157.8400,2\n",
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func nullLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}

func fixtureIndex(t *testing.T) *Index {
	t.Helper()
	log, _ := nullLogger()
	feed, err := LoadFeedFromZip(zipOf(t, fixtureFiles), log)
	require.NoError(t, err)
	idx, err := NewIndex(feed, log)
	require.NoError(t, err)
	return idx
}
