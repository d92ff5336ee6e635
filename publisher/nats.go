// Package publisher fans reconciled vehicles out over NATS.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

const DefaultSubjectPrefix = "transit"

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

type Metrics interface {
	Published(err error)
	SetConnected(connected bool)
}

type NATSPublisher struct {
	conn    Conn
	nc      *nats.Conn
	prefix  string
	log     logrus.FieldLogger
	metrics Metrics
}

// Connect dials url and returns a publisher writing under prefix.
func Connect(url, prefix string, log logrus.FieldLogger, m Metrics) (*NATSPublisher, error) {
	setConnected := func(v bool) {
		if m != nil {
			m.SetConnected(v)
		}
	}
	nc, err := nats.Connect(url,
		nats.Name("transit-tracker"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			setConnected(false)
			log.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			setConnected(true)
			log.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			setConnected(false)
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	setConnected(true)
	p := New(nc, prefix, log, m)
	p.nc = nc
	return p, nil
}

// New wraps an existing connection.
func New(conn Conn, prefix string, log logrus.FieldLogger, m Metrics) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix, log: log, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

type VehicleMessage struct {
	PollID      uuid.UUID `json:"pollId"`
	Number      string    `json:"number"`
	TripID      string    `json:"tripId,omitempty"`
	RouteCode   string    `json:"routeCode,omitempty"`
	BlockID     string    `json:"blockId,omitempty"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Adherence   float64   `json:"adherence"`
	LastMessage time.Time `json:"lastMessage"`
}

type PollMessage struct {
	PollID   uuid.UUID `json:"pollId"`
	At       time.Time `json:"at"`
	Vehicles int       `json:"vehicles"`
}

// VehicleSubject is <prefix>.vehicles.<route>.<number>; vehicles without a
// known route use "_".
func (p *NATSPublisher) VehicleSubject(v tracking.Vehicle) string {
	return fmt.Sprintf("%s.vehicles.%s.%s", p.prefix, subjectToken(v.RouteCode()), subjectToken(v.Number))
}

func (p *NATSPublisher) PollSubject() string {
	return p.prefix + ".polls"
}

// ObservePoll publishes every vehicle and then a poll summary. All vehicles
// are attempted; the joined publish errors are returned.
func (p *NATSPublisher) ObservePoll(_ context.Context, pollID uuid.UUID, at time.Time, vehicles []tracking.Vehicle) error {
	var errs []error
	for _, v := range vehicles {
		msg := VehicleMessage{
			PollID:      pollID,
			Number:      v.Number,
			TripID:      v.TripID,
			RouteCode:   v.RouteCode(),
			Lat:         v.Position.Lat,
			Lon:         v.Position.Lon,
			Adherence:   v.Adherence,
			LastMessage: v.LastMessage,
		}
		if v.Block != nil {
			msg.BlockID = v.Block.ID
		}
		if err := p.publish(p.VehicleSubject(v), msg); err != nil {
			errs = append(errs, fmt.Errorf("vehicle %s: %w", v.Number, err))
		}
	}
	if err := p.publish(p.PollSubject(), PollMessage{PollID: pollID, At: at, Vehicles: len(vehicles)}); err != nil {
		errs = append(errs, fmt.Errorf("poll summary: %w", err))
	}
	if len(errs) > 0 {
		p.log.WithField("failed", len(errs)).Warn("nats publish errors")
	}
	return errors.Join(errs...)
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.Published(err)
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain whitespace, '.', '>' or '*'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

var _ tracking.Observer = (*NATSPublisher)(nil)
