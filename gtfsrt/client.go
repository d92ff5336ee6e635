package gtfsrt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"

	"github.com/theoremus-urban-solutions/transit-tracker/internal"
)

// Client fetches and decodes GTFS-RT feed messages.
type Client struct {
	httpClient *http.Client
	log        logrus.FieldLogger
	retryFor   time.Duration
}

func NewClient(timeout time.Duration, log logrus.FieldLogger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		retryFor:   5 * time.Second,
	}
}

// Fetch downloads and decodes one feed. It returns nil when url is empty so
// optional feeds can be skipped.
func (c *Client) Fetch(ctx context.Context, url string) (*gtfsrtpb.FeedMessage, error) {
	if url == "" {
		return nil, nil
	}
	b, err := internal.Retry(ctx, c.retryFor, c.log.WithField("url", url), func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, internal.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, internal.Permanent(err)
			}
			return nil, err
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return &fm, nil
}
