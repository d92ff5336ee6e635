package gtfs

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotModified is returned by a FeedSource when the upstream feed has not
// changed since the last successful load.
var ErrNotModified = errors.New("gtfs: feed not modified")

// FeedSource produces raw feed tables.
type FeedSource interface {
	LoadFeed(ctx context.Context) (*Feed, error)
}

var feedFiles = []string{
	"agency.txt",
	"calendar.txt",
	"calendar_dates.txt",
	"feed_info.txt",
	"routes.txt",
	"shapes.txt",
	"stop_times.txt",
	"stops.txt",
	"trips.txt",
}

// LoadFeedFromZip reads the feed tables out of a GTFS zip archive. Missing
// files are logged and skipped.
func LoadFeedFromZip(data []byte, log logrus.FieldLogger) (*Feed, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open GTFS zip: %w", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[strings.ToLower(path.Base(f.Name))] = f
	}
	feed := &Feed{}
	for _, name := range feedFiles {
		f, ok := files[name]
		if !ok {
			log.WithField("file", name).Warn("GTFS file missing from feed, skipping")
			continue
		}
		if err := feed.consumeCSV(f, log); err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
	}
	return feed, nil
}

func (feed *Feed) consumeCSV(f *zip.File, log logrus.FieldLogger) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	head, rows, err := readCSV(r, log.WithField("file", f.Name))
	if err != nil {
		return err
	}
	switch strings.ToLower(path.Base(f.Name)) {
	case "agency.txt":
		feed.Agency = decodeTable[AgencyRow](head, rows)
	case "calendar.txt":
		feed.Calendar = decodeTable[CalendarRow](head, rows)
	case "calendar_dates.txt":
		feed.CalendarDates = decodeTable[CalendarDateRow](head, rows)
	case "feed_info.txt":
		feed.FeedInfo = decodeTable[FeedInfoRow](head, rows)
	case "routes.txt":
		feed.Routes = decodeTable[RouteRow](head, rows)
	case "shapes.txt":
		feed.Shapes = decodeTable[ShapeRow](head, rows)
	case "stop_times.txt":
		feed.StopTimes = decodeTable[StopTimeRow](head, rows)
	case "stops.txt":
		feed.Stops = decodeTable[StopRow](head, rows)
	case "trips.txt":
		feed.Trips = decodeTable[TripRow](head, rows)
	}
	return nil
}

func readCSV(r io.Reader, log logrus.FieldLogger) ([]string, [][]string, error) {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1
	csvr.LazyQuotes = true
	csvr.ReuseRecord = false
	head, err := csvr.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if len(head) > 0 {
		head[0] = strings.TrimPrefix(head[0], "\ufeff")
	}
	var rows [][]string
	for line := 2; ; line++ {
		row, err := csvr.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			log.WithError(err).WithField("line", line).Warn("skipping malformed CSV row")
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return head, rows, nil
}

// decodeTable maps CSV rows onto T by matching header names against the
// csv struct tags. Absent columns leave the field empty.
func decodeTable[T any](head []string, rows [][]string) []T {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	idx := func(col string) int {
		for i, h := range head {
			if strings.EqualFold(strings.TrimSpace(h), col) {
				return i
			}
		}
		return -1
	}
	cols := make([]int, typ.NumField())
	for i := range cols {
		cols[i] = idx(typ.Field(i).Tag.Get("csv"))
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var rec T
		v := reflect.ValueOf(&rec).Elem()
		for i, c := range cols {
			if c >= 0 && c < len(row) {
				v.Field(i).SetString(strings.TrimSpace(row[c]))
			}
		}
		out = append(out, rec)
	}
	return out
}

// HTTPZipSource downloads the feed zip and skips reloading when the server
// reports the same Last-Modified value as the previous download.
type HTTPZipSource struct {
	URL    string
	Client *http.Client
	Log    logrus.FieldLogger

	mu           sync.Mutex
	lastModified string
}

func NewHTTPZipSource(url string, timeout time.Duration, log logrus.FieldLogger) *HTTPZipSource {
	return &HTTPZipSource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
		Log:    log,
	}
}

func (s *HTTPZipSource) LoadFeed(ctx context.Context) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	prev := s.lastModified
	s.mu.Unlock()
	if prev != "" {
		req.Header.Set("If-Modified-Since", prev)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, s.URL)
	}
	lm := resp.Header.Get("Last-Modified")
	if prev != "" && lm == prev {
		return nil, ErrNotModified
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.URL, err)
	}
	feed, err := LoadFeedFromZip(data, s.Log)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lastModified = lm
	s.mu.Unlock()
	return feed, nil
}

// FileZipSource reads a local GTFS zip, reloading only when its modification
// time changes.
type FileZipSource struct {
	Path string
	Log  logrus.FieldLogger

	mu      sync.Mutex
	modTime time.Time
}

func (s *FileZipSource) LoadFeed(_ context.Context) (*Feed, error) {
	st, err := os.Stat(s.Path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	unchanged := !s.modTime.IsZero() && st.ModTime().Equal(s.modTime)
	s.mu.Unlock()
	if unchanged {
		return nil, ErrNotModified
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	feed, err := LoadFeedFromZip(data, s.Log)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.modTime = st.ModTime()
	s.mu.Unlock()
	return feed, nil
}
