package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/teranos/trellis/errors"
)

// DefaultSubject is the NATS subject progress events are published on.
const DefaultSubject = "trellis.progress.updated"

// NATSSink publishes JSON-encoded events to a NATS subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to url with automatic reconnection. Extra options are
// appended to the defaults.
func NewNATSSink(url, subject string, opts ...nats.Option) (*NATSSink, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	defaults := []nats.Option{
		nats.Name("trellis-analytics"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to NATS at %s", url)
	}
	return &NATSSink{conn: nc, subject: subject}, nil
}

// Write implements Sink.
func (s *NATSSink) Write(_ context.Context, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal progress event")
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", s.subject)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (s *NATSSink) Close() error {
	err := s.conn.Drain()
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}
