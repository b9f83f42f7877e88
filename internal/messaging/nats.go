package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"

	"github.com/nats-io/nats.go"
)

// natsPublisher publishes events on subjects of the form <prefix>.<event type>
type natsPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to NATS
func NewNATSPublisher(cfg config.NATSConfig, source string) (Publisher, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name(source))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &natsPublisher{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event type is published on
func Subject(prefix string, eventType EventType) string {
	if prefix == "" {
		return string(eventType)
	}
	return prefix + "." + string(eventType)
}

func (p *natsPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := nats.NewMsg(Subject(p.prefix, event.Type))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Header.Set("Device-Id", event.DeviceID)

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *natsPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
