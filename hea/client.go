package hea

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/internal"
	"github.com/theoremus-urban-solutions/transit-tracker/predict"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

// DefaultBaseURL is the public HEA endpoint.
const DefaultBaseURL = "https://api.thebus.org/"

// NullTrip is the placeholder the vehicle feed uses for "no trip".
const NullTrip = "null_trip"

// ErrUpstream is returned when the API answers with a non-200 status.
var ErrUpstream = errors.New("hea: upstream error")

type rawVehicle struct {
	Number         string `xml:"number"`
	Trip           string `xml:"trip"`
	Driver         string `xml:"driver"`
	Latitude       string `xml:"latitude"`
	Longitude      string `xml:"longitude"`
	Adherence      string `xml:"adherence"`
	LastMessage    string `xml:"last_message"`
	RouteShortName string `xml:"route_short_name"`
	Headsign       string `xml:"headsign"`
}

type vehiclesDoc struct {
	XMLName      xml.Name     `xml:"vehicles"`
	Timestamp    string       `xml:"timestamp"`
	ErrorMessage string       `xml:"errorMessage"`
	Vehicles     []rawVehicle `xml:"vehicle"`
}

type arrivalsDoc struct {
	Stop      string               `json:"stop"`
	Timestamp json.RawMessage      `json:"timestamp"`
	Arrivals  []predict.RawArrival `json:"arrivals"`
}

// Client fetches vehicles and arrivals from the HEA API.
type Client struct {
	BaseURL  string
	APIKey   string
	Location *time.Location
	HTTP     *http.Client
	Log      logrus.FieldLogger
	// RetryFor bounds the backoff of a single fetch.
	RetryFor time.Duration
}

func NewClient(baseURL, apiKey string, timeout time.Duration, loc *time.Location, log logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Location: loc,
		HTTP:     &http.Client{Timeout: timeout},
		Log:      log,
		RetryFor: 5 * time.Second,
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	q.Set("key", c.APIKey)
	u := c.BaseURL + path + "?" + q.Encode()
	return internal.Retry(ctx, c.RetryFor, c.Log, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, internal.Permanent(err)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("%w: HTTP %d from %s", ErrUpstream, resp.StatusCode, path)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, internal.Permanent(err)
			}
			return nil, err
		}
		return io.ReadAll(resp.Body)
	})
}

// FetchVehicles implements tracking.VehicleSource.
func (c *Client) FetchVehicles(ctx context.Context) ([]tracking.Report, error) {
	body, err := c.get(ctx, "vehicle/", url.Values{})
	if err != nil {
		return nil, err
	}
	doc, err := decodeVehicles(body)
	if err != nil {
		return nil, err
	}
	if doc.ErrorMessage != "" {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, doc.ErrorMessage)
	}
	reports := make([]tracking.Report, 0, len(doc.Vehicles))
	for _, v := range doc.Vehicles {
		reports = append(reports, c.toReport(v))
	}
	return reports, nil
}

// decodeVehicles parses the vehicle document leniently: the feed does not
// escape ampersands in headsigns.
func decodeVehicles(body []byte) (*vehiclesDoc, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	var doc vehiclesDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode vehicles: %w", err)
	}
	return &doc, nil
}

func (c *Client) toReport(v rawVehicle) tracking.Report {
	r := tracking.Report{
		Number: strings.TrimSpace(v.Number),
		Driver: strings.TrimSpace(v.Driver),
	}
	if trip := strings.TrimSpace(v.Trip); trip != NullTrip {
		r.TripID = trip
	}
	if r.Driver == "0" {
		r.Driver = ""
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(v.Latitude), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(v.Longitude), 64)
	if errLat == nil && errLon == nil {
		r.Position = gtfs.Point{Lat: lat, Lon: lon}
	}
	if adh, err := strconv.ParseFloat(strings.TrimSpace(v.Adherence), 64); err == nil {
		r.Adherence = adh
	}
	lm, err := ParseLastMessage(v.LastMessage, c.Location)
	if err != nil {
		c.Log.WithFields(logrus.Fields{"vehicle": r.Number, "last_message": v.LastMessage}).Warn("unparseable last_message")
	}
	r.LastMessage = lm
	return r
}

// ParseLastMessage reads a vehicle's "M/D/YYYY h:mm:ss AM" timestamp in loc.
// On failure it returns the zero time along with the error.
func ParseLastMessage(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("1/2/2006 3:04:05 PM", strings.ToUpper(strings.TrimSpace(s)), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last_message %q: %w", s, err)
	}
	return t, nil
}

// FetchArrivals returns the raw arrivals for a stop code.
func (c *Client) FetchArrivals(ctx context.Context, stopCode string) ([]predict.RawArrival, error) {
	body, err := c.get(ctx, "arrivalsJSON/", url.Values{"stop": {stopCode}})
	if err != nil {
		return nil, err
	}
	var doc arrivalsDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode arrivals for stop %s: %w", stopCode, err)
	}
	return doc.Arrivals, nil
}
