package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType names a domain event
type EventType string

const (
	EventCommandIssued       EventType = "command.issued"
	EventCommandAcknowledged EventType = "command.acknowledged"
	EventDevicePaired        EventType = "device.paired"
	EventDeviceUnpaired      EventType = "device.unpaired"
	EventOTAJobCreated       EventType = "ota.job_created"
	EventOTAJobProgress      EventType = "ota.job_progress"
)

// Event is a domain event published after a successful write
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	DeviceID   string      `json:"device_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data,omitempty"`
}

// NewEvent stamps an event with an id and time
func NewEvent(eventType EventType, deviceID string, data interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		DeviceID:   deviceID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers domain events to the fleet event stream
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NewPublisher builds the publisher selected by configuration
func NewPublisher(cfg *config.Config, log *logrus.Logger) (Publisher, error) {
	switch cfg.Messaging.Driver {
	case "servicebus":
		if cfg.ServiceBus.ConnectionString == "" {
			log.Warn("Service Bus connection string not set, events will only be logged")
			return NewLogPublisher(log), nil
		}
		return NewServiceBusPublisher(cfg.ServiceBus, cfg.Messaging.Source)
	case "nats":
		return NewNATSPublisher(cfg.NATS, cfg.Messaging.Source)
	case "log", "":
		return NewLogPublisher(log), nil
	default:
		return nil, fmt.Errorf("unknown messaging driver %q", cfg.Messaging.Driver)
	}
}

// logPublisher only logs events, for local development
type logPublisher struct {
	log *logrus.Logger
}

// NewLogPublisher returns a publisher that logs events
func NewLogPublisher(log *logrus.Logger) Publisher {
	return &logPublisher{log: log}
}

func (p *logPublisher) Publish(ctx context.Context, event Event) error {
	p.log.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"device_id":  event.DeviceID,
	}).Debug("Event published")
	return nil
}

func (p *logPublisher) Close() error {
	return nil
}
