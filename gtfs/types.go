package gtfs

// Raw tables as they come out of a static feed. Every field is the unconverted
// GTFS text value; Index does the typed conversion.

type AgencyRow struct {
	AgencyID string `csv:"agency_id" db:"agency_id"`
	Name     string `csv:"agency_name" db:"agency_name"`
	URL      string `csv:"agency_url" db:"agency_url"`
	Timezone string `csv:"agency_timezone" db:"agency_timezone"`
}

type CalendarRow struct {
	ServiceID string `csv:"service_id" db:"service_id"`
	Monday    string `csv:"monday" db:"monday"`
	Tuesday   string `csv:"tuesday" db:"tuesday"`
	Wednesday string `csv:"wednesday" db:"wednesday"`
	Thursday  string `csv:"thursday" db:"thursday"`
	Friday    string `csv:"friday" db:"friday"`
	Saturday  string `csv:"saturday" db:"saturday"`
	Sunday    string `csv:"sunday" db:"sunday"`
	StartDate string `csv:"start_date" db:"start_date"`
	EndDate   string `csv:"end_date" db:"end_date"`
}

type CalendarDateRow struct {
	ServiceID     string `csv:"service_id" db:"service_id"`
	Date          string `csv:"date" db:"date"`
	ExceptionType string `csv:"exception_type" db:"exception_type"`
}

type FeedInfoRow struct {
	PublisherName string `csv:"feed_publisher_name" db:"feed_publisher_name"`
	Lang          string `csv:"feed_lang" db:"feed_lang"`
	StartDate     string `csv:"feed_start_date" db:"feed_start_date"`
	EndDate       string `csv:"feed_end_date" db:"feed_end_date"`
	Version       string `csv:"feed_version" db:"feed_version"`
}

type RouteRow struct {
	RouteID   string `csv:"route_id" db:"route_id"`
	AgencyID  string `csv:"agency_id" db:"agency_id"`
	ShortName string `csv:"route_short_name" db:"route_short_name"`
	LongName  string `csv:"route_long_name" db:"route_long_name"`
	Type      string `csv:"route_type" db:"route_type"`
	Color     string `csv:"route_color" db:"route_color"`
	TextColor string `csv:"route_text_color" db:"route_text_color"`
}

type ShapeRow struct {
	ShapeID  string `csv:"shape_id" db:"shape_id"`
	Lat      string `csv:"shape_pt_lat" db:"shape_pt_lat"`
	Lon      string `csv:"shape_pt_lon" db:"shape_pt_lon"`
	Sequence string `csv:"shape_pt_sequence" db:"shape_pt_sequence"`
}

type StopTimeRow struct {
	TripID        string `csv:"trip_id" db:"trip_id"`
	ArrivalTime   string `csv:"arrival_time" db:"arrival_time"`
	DepartureTime string `csv:"departure_time" db:"departure_time"`
	StopID        string `csv:"stop_id" db:"stop_id"`
	StopCode      string `csv:"stop_code" db:"stop_code"`
	StopSequence  string `csv:"stop_sequence" db:"stop_sequence"`
}

type StopRow struct {
	StopID string `csv:"stop_id" db:"stop_id"`
	Code   string `csv:"stop_code" db:"stop_code"`
	Name   string `csv:"stop_name" db:"stop_name"`
	Lat    string `csv:"stop_lat" db:"stop_lat"`
	Lon    string `csv:"stop_lon" db:"stop_lon"`
}

type TripRow struct {
	RouteID     string `csv:"route_id" db:"route_id"`
	ServiceID   string `csv:"service_id" db:"service_id"`
	TripID      string `csv:"trip_id" db:"trip_id"`
	Headsign    string `csv:"trip_headsign" db:"trip_headsign"`
	DirectionID string `csv:"direction_id" db:"direction_id"`
	BlockID     string `csv:"block_id" db:"block_id"`
	Block       string `csv:"block" db:"block"`
	ShapeID     string `csv:"shape_id" db:"shape_id"`
	DisplayCode string `csv:"display_code" db:"display_code"`
}

// Feed holds the raw tables of one static feed version.
type Feed struct {
	Agency        []AgencyRow
	Calendar      []CalendarRow
	CalendarDates []CalendarDateRow
	FeedInfo      []FeedInfoRow
	Routes        []RouteRow
	Shapes        []ShapeRow
	StopTimes     []StopTimeRow
	Stops         []StopRow
	Trips         []TripRow
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ScheduleTrip is one trips.txt row joined with its route's short name.
type ScheduleTrip struct {
	ID             string `json:"id"`
	RouteID        string `json:"routeId"`
	RouteShortName string `json:"routeCode"`
	Headsign       string `json:"headsign"`
	ShapeID        string `json:"shapeId"`
	DisplayCode    string `json:"displayCode"`
	Direction      int    `json:"direction"`
	BlockID        string `json:"blockId"`
	BlockName      string `json:"blockName"`
	ServiceID      string `json:"serviceId"`
}

// StopTime offsets are seconds from local midnight of the service day and
// may exceed 86400.
type StopTime struct {
	TripID    string `json:"tripId"`
	StopID    string `json:"stopId"`
	StopCode  string `json:"stopCode"`
	Arrival   int    `json:"arrival"`
	Departure int    `json:"departure"`
	Sequence  int    `json:"sequence"`
}

type ShapePoint struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Sequence int     `json:"sequence"`
}

func (p ShapePoint) Point() Point { return Point{Lat: p.Lat, Lon: p.Lon} }

// Shape is a polished shape: points sorted by sequence, length in meters.
type Shape struct {
	ID     string       `json:"id"`
	Points []ShapePoint `json:"points"`
	Length float64      `json:"length"`
}

type Stop struct {
	ID   string  `json:"id"`
	Code string  `json:"code"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

func (s Stop) Point() Point { return Point{Lat: s.Lat, Lon: s.Lon} }

type Route struct {
	ID        string `json:"id"`
	AgencyID  string `json:"agencyId"`
	ShortName string `json:"code"`
	LongName  string `json:"name"`
	Type      int    `json:"type"`
	Color     string `json:"color"`
	TextColor string `json:"textColor"`
}

// ExceptionType is calendar_dates.exception_type.
type ExceptionType int

const (
	ServiceAdded   ExceptionType = 1
	ServiceRemoved ExceptionType = 2
)

// Calendar is one weekly service pattern. Dates are YYYYMMDD and inclusive.
type Calendar struct {
	ServiceID string
	Weekdays  [7]bool // indexed by time.Weekday
	StartDate string
	EndDate   string
}
